package mcpserver

// DatabaseFormatContract describes database notes and the actions that
// edit them, for LLM consumers dispatching actions.
const DatabaseFormatContract = `# dbfolder Database Format Contract

A database is a Markdown note whose frontmatter carries ` + "`" + `database-plugin: basic` + "`" + `
and whose body holds one fenced ` + "`" + `yaml:dbfolder` + "`" + ` block. Every other note the
database selects is a row; row cells are the row note's frontmatter fields.

## Structure

` + "```" + `markdown
---
database-plugin: basic
---
` + "```" + `yaml:dbfolder
name: Reading list
description: books to read
columns:
  status:
    input: select          # text, number, select, tags, markdown, calendar,
                           # calendar_time, checkbox, task, formula, relation, rollup
    key: status            # frontmatter field the cell reads and writes
    accessorKey: status
    label: Status
    position: 0
    options:
      - label: Todo
        color: red
config:
  source_data: current_folder   # current_folder, tag, incoming_link, outgoing_link, query
  show_metadata_created: false
filters:
  enabled: false
  conditions: []
` + "```" + `
` + "```" + `

## Rules

1. **Do not edit the block by hand** while the service runs; dispatch actions instead.
   Actions keep column ids, keys and row frontmatter consistent.
2. **Paths** are vault-relative, use forward slashes and end with ` + "`" + `.md` + "`" + `.
3. **Metadata columns** (` + "`" + `__file__` + "`" + `, ` + "`" + `__created__` + "`" + `, ` + "`" + `__modified__` + "`" + `,
   ` + "`" + `__tasks__` + "`" + `, ` + "`" + `__inlinks__` + "`" + `, ` + "`" + `__outlinks__` + "`" + `) are computed and cannot be written.
4. **Relations** store wikilinks (` + "`" + `[[note]]` + "`" + `); rollups and formulas are computed on read.
5. **Media** is attached with the ` + "`" + `attach_media` + "`" + ` tool. Files land in the
   ` + "`" + `attachments/` + "`" + ` folder next to the database note and cells hold an embed
   (` + "`" + `![[books/attachments/cover.png]]` + "`" + `).

## Actions

Call ` + "`" + `dispatch_action` + "`" + ` with a domain, a type and a payload object.

| Domain | Type | Payload |
|--------|------|---------|
| data | add_row | ` + "`" + `{"filename": "Dune", "values": {"status": "Todo"}}` + "`" + ` |
| data | update_cell | ` + "`" + `{"path": "books/Dune.md", "key": "status", "value": "Done"}` + "`" + ` |
| data | remove_row | ` + "`" + `{"path": "books/Dune.md"}` + "`" + ` |
| data | rename_file | ` + "`" + `{"path": "books/Dune.md", "new_name": "Dune Messiah"}` + "`" + ` |
| columns | add_column | ` + "`" + `{"label": "Rating", "input": "number"}` + "`" + ` |
| columns | remove_column | ` + "`" + `{"id": "rating"}` + "`" + ` |
| columns | alter_label | ` + "`" + `{"id": "rating", "label": "Score"}` + "`" + ` |
| columns | add_option | ` + "`" + `{"id": "status", "option": "Reading", "color": "blue"}` + "`" + ` |
| config | alter_config | ` + "`" + `{"config": {"show_metadata_created": true}}` + "`" + ` |
| config | toggle_filters | none |
| sorting | add_sort | ` + "`" + `{"id": "status", "desc": true}` + "`" + ` |
| sorting | clear_sorting | none |
| automation | toggle_formulas | ` + "`" + `{"enabled": true}` + "`" + ` |
| row_templates | select_template | ` + "`" + `{"path": "templates/book.md"}` + "`" + ` |

Failed actions return a tool error naming the cause (unknown action, missing row,
invalid input, conflicting name). The database is left unchanged.
`
