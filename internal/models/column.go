package models

import "sort"

// SelectOption is one choice of a select or tags column.
type SelectOption struct {
	Label string `yaml:"label" json:"label"`
	Color string `yaml:"color" json:"color"`
}

// ColumnConfig holds type-specific column behaviour.
type ColumnConfig struct {
	EnableMediaView     bool   `yaml:"enable_media_view" json:"enable_media_view"`
	LinkAliasEnabled    bool   `yaml:"link_alias_enabled" json:"link_alias_enabled"`
	MediaWidth          int    `yaml:"media_width" json:"media_width"`
	MediaHeight         int    `yaml:"media_height" json:"media_height"`
	IsInline            bool   `yaml:"isInline" json:"isInline"`
	TaskHideCompleted   bool   `yaml:"task_hide_completed" json:"task_hide_completed"`
	ContentAlignment    string `yaml:"content_alignment,omitempty" json:"content_alignment,omitempty"`
	FormulaQuery        string `yaml:"formula_query,omitempty" json:"formula_query,omitempty"`
	RelatedNotePath     string `yaml:"related_note_path,omitempty" json:"related_note_path,omitempty"`
	AsociatedRelationID string `yaml:"asociated_relation_id,omitempty" json:"asociated_relation_id,omitempty"`
	RollupAction        string `yaml:"rollup_action,omitempty" json:"rollup_action,omitempty"`
	RollupKey           string `yaml:"rollup_key,omitempty" json:"rollup_key,omitempty"`
}

// DefaultColumnConfig returns the configuration every new column starts with.
func DefaultColumnConfig() ColumnConfig {
	return ColumnConfig{
		EnableMediaView:   true,
		LinkAliasEnabled:  true,
		MediaWidth:        100,
		MediaHeight:       100,
		IsInline:          false,
		TaskHideCompleted: true,
	}
}

// Column is one typed column of a database.
type Column struct {
	ID             string         `yaml:"id,omitempty" json:"id"`
	Key            string         `yaml:"key" json:"key"`
	AccessorKey    string         `yaml:"accessorKey" json:"accessorKey"`
	Label          string         `yaml:"label" json:"label"`
	Input          InputType      `yaml:"input" json:"input"`
	Position       int            `yaml:"position" json:"position"`
	Width          int            `yaml:"width,omitempty" json:"width,omitempty"`
	MinSize        int            `yaml:"minSize,omitempty" json:"minSize,omitempty"`
	MaxSize        int            `yaml:"maxSize,omitempty" json:"maxSize,omitempty"`
	IsHidden       bool           `yaml:"isHidden,omitempty" json:"isHidden,omitempty"`
	SortIndex      int            `yaml:"sortIndex,omitempty" json:"sortIndex,omitempty"`
	IsSorted       bool           `yaml:"isSorted,omitempty" json:"isSorted,omitempty"`
	IsSortedDesc   bool           `yaml:"isSortedDesc,omitempty" json:"isSortedDesc,omitempty"`
	IsMetadata     bool           `yaml:"isMetadata,omitempty" json:"isMetadata,omitempty"`
	SkipPersist    bool           `yaml:"skipPersist,omitempty" json:"skipPersist,omitempty"`
	IsDragDisabled bool           `yaml:"isDragDisabled,omitempty" json:"isDragDisabled,omitempty"`
	CSVCandidate   bool           `yaml:"csvCandidate,omitempty" json:"csvCandidate,omitempty"`
	Options        []SelectOption `yaml:"options,omitempty" json:"options,omitempty"`
	Config         ColumnConfig   `yaml:"config" json:"config"`
}

// NewColumn returns a user column built from the column template.
func NewColumn(id, label string, input InputType) *Column {
	if input == "" {
		input = InputText
	}
	return &Column{
		ID:           id,
		Key:          id,
		AccessorKey:  id,
		Label:        label,
		Input:        input,
		CSVCandidate: true,
		Options:      []SelectOption{},
		Config:       DefaultColumnConfig(),
	}
}

// Clone returns a deep copy of c.
func (c *Column) Clone() *Column {
	if c == nil {
		return nil
	}
	out := *c
	if c.Options != nil {
		out.Options = append([]SelectOption(nil), c.Options...)
	}
	return &out
}

// FindOption returns the index of the option with label, or -1.
func (c *Column) FindOption(label string) int {
	for i, o := range c.Options {
		if o.Label == label {
			return i
		}
	}
	return -1
}

// Columns maps column id to column definition.
type Columns map[string]*Column

// Ordered returns the columns sorted by position, then id.
func (c Columns) Ordered() []*Column {
	out := make([]*Column, 0, len(c))
	for id, col := range c {
		if col.ID == "" {
			col.ID = id
		}
		out = append(out, col)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ByKey returns the column whose key matches, or nil.
func (c Columns) ByKey(key string) *Column {
	for _, col := range c {
		if col.Key == key {
			return col
		}
	}
	return nil
}

// Clone returns a deep copy of the column map.
func (c Columns) Clone() Columns {
	out := make(Columns, len(c))
	for id, col := range c {
		out[id] = col.Clone()
	}
	return out
}

// NextPosition returns the position after the last column.
func (c Columns) NextPosition() int {
	next := 0
	for _, col := range c {
		if col.Position >= next {
			next = col.Position + 1
		}
	}
	return next
}

func metadataColumn(id, label string, input InputType, csv bool) *Column {
	return &Column{
		ID:           id,
		Key:          id,
		AccessorKey:  id,
		Label:        label,
		Input:        input,
		IsMetadata:   true,
		CSVCandidate: csv,
		Config:       DefaultColumnConfig(),
	}
}

// MetadataColumn returns the definition of a metadata column, or nil when
// id is not a metadata identifier.
func MetadataColumn(id string) *Column {
	switch id {
	case MetadataFile:
		col := metadataColumn(id, "File", InputMarkdown, true)
		col.Config.IsInline = true
		return col
	case MetadataCreated:
		return metadataColumn(id, "Created", InputMetadataTime, true)
	case MetadataModified:
		return metadataColumn(id, "Modified", InputMetadataTime, true)
	case MetadataTasks:
		return metadataColumn(id, "Task", InputTask, false)
	case MetadataInlinks:
		return metadataColumn(id, "Inlinks", InputInlinks, false)
	case MetadataOutlinks:
		return metadataColumn(id, "Outlinks", InputOutlinks, false)
	case MetadataAddColumn:
		col := metadataColumn(id, "+", InputNewColumn, false)
		col.IsDragDisabled = true
		col.SkipPersist = true
		return col
	case MetadataRowContextMenu:
		col := metadataColumn(id, id, InputCheckbox, false)
		col.IsDragDisabled = true
		col.SkipPersist = true
		col.MinSize, col.MaxSize, col.Width = 15, 15, 15
		return col
	}
	return nil
}
