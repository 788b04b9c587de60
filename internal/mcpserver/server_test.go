package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/dbfolder/internal/noteservice"
	"github.com/starford/dbfolder/internal/persist"
	"github.com/starford/dbfolder/internal/query"
	"github.com/starford/dbfolder/internal/settings"
	"github.com/starford/dbfolder/internal/storage"
	"github.com/starford/dbfolder/internal/testutil"
	"github.com/starford/dbfolder/internal/view"
)

const booksNote = "---\ndatabase-plugin: basic\n---\n```yaml:dbfolder\nname: Books\ndescription: reading list\n" +
	`columns:
  status:
    input: select
    key: status
    accessorKey: status
    label: Status
    position: 0
  cover:
    input: text
    key: cover
    accessorKey: cover
    label: Cover
    position: 1
config:
  source_data: current_folder
filters:
  enabled: false
  conditions: []
` + "```\n"

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()
	store, db := testutil.IndexedVault(t, map[string]string{
		"books/books.md": booksNote,
		"books/dune.md":  "---\nstatus: Todo\n---\n# Dune\nA desert planet.\n",
		"notes/plain.md": "# Plain\n",
	})
	logger := testutil.Logger()
	tracker := persist.NewTracker(logger)
	t.Cleanup(func() { _ = tracker.Flush(context.Background()) })
	global, err := settings.Open("", logger)
	if err != nil {
		t.Fatal(err)
	}
	views := view.NewManager(view.Deps{
		Store:   store,
		Index:   db,
		Query:   query.NewService(db, store, logger),
		Global:  global,
		Tracker: tracker,
		Logger:  logger,
	}, nil)
	return New(views, noteservice.NewService(store, db, global, logger)), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_databases":
		result, err = srv.listDatabases(ctx, req)
	case "read_table":
		result, err = srv.readTable(ctx, req)
	case "dispatch_action":
		result, err = srv.dispatchAction(ctx, req)
	case "attach_media":
		result, err = srv.attachMedia(ctx, req)
	case "get_database_contract":
		result, err = srv.getDatabaseContract(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

type tableResult struct {
	Name string `json:"name"`
	Rows []struct {
		Path   string         `json:"path"`
		Values map[string]any `json:"values"`
	} `json:"rows"`
}

func decodeTable(t *testing.T, r *mcp.CallToolResult) tableResult {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	var tr tableResult
	if err := json.Unmarshal([]byte(resultText(r)), &tr); err != nil {
		t.Fatalf("decode table: %v", err)
	}
	return tr
}

func TestListDatabases(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_databases", nil)
	var items []noteservice.DatabaseItem
	if err := json.Unmarshal([]byte(resultText(r)), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Path != "books/books.md" {
		t.Errorf("databases = %+v", items)
	}
}

func TestReadTable(t *testing.T) {
	srv, _ := testServer(t)

	tr := decodeTable(t, callTool(t, srv, "read_table", map[string]any{"path": "books/books.md"}))
	if tr.Name != "Books" || len(tr.Rows) != 1 || tr.Rows[0].Path != "books/dune.md" {
		t.Errorf("table = %+v", tr)
	}

	for _, p := range []string{"books/missing.md", "notes/plain.md"} {
		if r := callTool(t, srv, "read_table", map[string]any{"path": p}); !r.IsError {
			t.Errorf("read_table %s: expected tool error", p)
		}
	}
}

func TestDispatchAction(t *testing.T) {
	srv, store := testServer(t)

	tr := decodeTable(t, callTool(t, srv, "dispatch_action", map[string]any{
		"path":    "books/books.md",
		"domain":  "data",
		"type":    "update_cell",
		"payload": map[string]any{"path": "books/dune.md", "key": "status", "value": "Done"},
	}))
	if got := tr.Rows[0].Values["status"]; got != "Done" {
		t.Errorf("status = %v, want Done", got)
	}
	content, err := store.Read("books/dune.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "status: Done") {
		t.Errorf("row note not rewritten:\n%s", content)
	}

	r := callTool(t, srv, "dispatch_action", map[string]any{
		"path": "books/books.md", "domain": "data", "type": "explode",
	})
	if !r.IsError {
		t.Error("unknown action: expected tool error")
	}
	r = callTool(t, srv, "dispatch_action", map[string]any{"path": "books/books.md", "domain": "data"})
	if !r.IsError {
		t.Error("missing type: expected tool error")
	}
}

func TestAttachMedia(t *testing.T) {
	srv, store := testServer(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

	r := callTool(t, srv, "attach_media", map[string]any{
		"path":     "books/books.md",
		"url":      "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		"filename": "cover.png",
		"row":      "books/dune.md",
		"key":      "cover",
	})
	if r.IsError {
		t.Fatalf("attach_media: %s", resultText(r))
	}
	if _, err := store.Read("books/attachments/cover.png"); err != nil {
		t.Errorf("media file not stored: %v", err)
	}
	content, err := store.Read("books/dune.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "![[books/attachments/cover.png]]") {
		t.Errorf("cell not updated:\n%s", content)
	}

	r = callTool(t, srv, "attach_media", map[string]any{"path": "books/books.md", "url": "ftp://example.com/a.png"})
	if !r.IsError {
		t.Error("ftp url: expected tool error")
	}
}

func TestContract(t *testing.T) {
	srv, _ := testServer(t)

	text := resultText(callTool(t, srv, "get_database_contract", nil))
	if diff := cmp.Diff(DatabaseFormatContract, text); diff != "" {
		t.Errorf("contract mismatch (-want +got):\n%s", diff)
	}
	contents, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != FormatURI {
		t.Errorf("resource = %#v", contents[0])
	}
}

func TestReadNote(t *testing.T) {
	srv, _ := testServer(t)

	if got := resultText(callTool(t, srv, "read_note", map[string]any{"path": "notes/plain.md"})); got != "# Plain\n" {
		t.Errorf("read result = %q", got)
	}
	if r := callTool(t, srv, "read_note", map[string]any{"path": "nope.md"}); !r.IsError {
		t.Error("expected error for missing note")
	}
	if r := callTool(t, srv, "search_notes", map[string]any{"query": "desert"}); r.IsError {
		t.Errorf("search: %s", resultText(r))
	}
}

func TestToolsRegistered(t *testing.T) {
	srv, _ := testServer(t)

	msg := srv.MCPServer().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	out, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"list_databases", "read_table", "dispatch_action", "attach_media", "get_database_contract"} {
		if !strings.Contains(string(out), `"`+name+`"`) {
			t.Errorf("tool %s not listed", name)
		}
	}
}
