package models

import "time"

// Row is one note rendered as a table row. Values is keyed by column key.
type Row struct {
	Path      string         `json:"path"`
	Values    map[string]any `json:"values"`
	Tasks     []Task         `json:"tasks,omitempty"`
	Inlinks   []string       `json:"inlinks,omitempty"`
	Outlinks  []string       `json:"outlinks,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Value returns the cell stored under key.
func (r *Row) Value(key string) (any, bool) {
	if r.Values == nil {
		return nil, false
	}
	v, ok := r.Values[key]
	return v, ok
}
