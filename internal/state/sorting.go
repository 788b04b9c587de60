package state

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/filter"
	"github.com/starford/dbfolder/internal/models"
)

// Sorting actions.
const (
	ActionAddSort      = "add_sort"
	ActionRemoveSort   = "remove_sort"
	ActionClearSorting = "clear_sorting"
)

var sortingActions = []string{ActionAddSort, ActionRemoveSort, ActionClearSorting}

// SortCriterion orders rows by one column.
type SortCriterion struct {
	ID   string `json:"id"`
	Desc bool   `json:"desc"`
}

// SortingStore keeps the sort criteria of a view in the columns' isSorted,
// sortIndex, and isSortedDesc fields.
type SortingStore struct {
	cfg *diskconfig.Config
}

// Criteria returns the active criteria in priority order.
func (s *SortingStore) Criteria() []SortCriterion {
	return CriteriaOf(s.cfg.Yaml().Columns)
}

// CriteriaOf reads the sort criteria stored on cols.
func CriteriaOf(cols models.Columns) []SortCriterion {
	var sorted []*models.Column
	for _, col := range cols.Ordered() {
		if col.IsSorted {
			sorted = append(sorted, col)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SortIndex < sorted[j].SortIndex })
	out := make([]SortCriterion, len(sorted))
	for i, col := range sorted {
		out[i] = SortCriterion{ID: col.ID, Desc: col.IsSortedDesc}
	}
	return out
}

// Set replaces the criteria. Each column may appear once.
func (s *SortingStore) Set(criteria []SortCriterion) error {
	seen := make(map[string]struct{}, len(criteria))
	for _, c := range criteria {
		if _, dup := seen[c.ID]; dup {
			return invalid("column %s sorted twice", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return s.cfg.Mutate(func(db *models.DatabaseYaml) error {
		for _, c := range criteria {
			if _, ok := db.Columns[c.ID]; !ok {
				return fmt.Errorf("state: sort column %s: %w", c.ID, apperr.ErrNotFound)
			}
		}
		for _, col := range db.Columns {
			col.IsSorted, col.IsSortedDesc, col.SortIndex = false, false, 0
		}
		for i, c := range criteria {
			col := db.Columns[c.ID]
			col.IsSorted, col.IsSortedDesc, col.SortIndex = true, c.Desc, i
		}
		return nil
	})
}

// AddSort appends a criterion, or changes the direction of an existing one.
func (s *SortingStore) AddSort(id string, desc bool) error {
	criteria := s.Criteria()
	for i := range criteria {
		if criteria[i].ID == id {
			criteria[i].Desc = desc
			return s.Set(criteria)
		}
	}
	return s.Set(append(criteria, SortCriterion{ID: id, Desc: desc}))
}

// RemoveSort drops the criterion on column id.
func (s *SortingStore) RemoveSort(id string) error {
	criteria := s.Criteria()
	out := criteria[:0]
	for _, c := range criteria {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return s.Set(out)
}

// Clear removes every criterion.
func (s *SortingStore) Clear() error {
	return s.Set(nil)
}

// SortRows returns rows ordered by criteria. Empty cells sort last in both
// directions.
func SortRows(rows []*models.Row, cols models.Columns, criteria []SortCriterion) []*models.Row {
	out := append([]*models.Row(nil), rows...)
	if len(criteria) == 0 {
		return out
	}
	keys := make([]string, 0, len(criteria))
	timed := make([]bool, 0, len(criteria))
	for _, c := range criteria {
		if col, ok := cols[c.ID]; ok {
			keys = append(keys, col.Key)
			timed = append(timed, col.Input == models.InputCalendar || col.Input == models.InputCalendarTime)
		} else {
			keys = append(keys, c.ID)
			timed = append(timed, false)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for n, c := range criteria {
			a, _ := out[i].Value(keys[n])
			b, _ := out[j].Value(keys[n])
			aEmpty, bEmpty := emptyCell(a), emptyCell(b)
			switch {
			case aEmpty && bEmpty:
				continue
			case aEmpty:
				return false
			case bEmpty:
				return true
			}
			cmp := compareCells(a, b, timed[n])
			if cmp == 0 {
				continue
			}
			if c.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return out
}

func emptyCell(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	}
	return false
}

// compareCells orders two non-empty cells. Date columns compare parsed
// instants, so "03/15/2024" sorts after "2024-02-01".
func compareCells(a, b any, timed bool) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if timed {
		ta, okA := filter.ParseTime(a)
		tb, okB := filter.ParseTime(b)
		if okA && okB {
			return ta.Compare(tb)
		}
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(strings.ToLower(cast.ToString(a)), strings.ToLower(cast.ToString(b)))
}

func number(v any) (float64, bool) {
	switch v.(type) {
	case bool, nil:
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}

type sortPayload struct {
	ID   string `json:"id"`
	Desc bool   `json:"desc"`
}

func (s *SortingStore) chain() *chain.Chain[*Response] {
	return chain.New(
		on(ActionAddSort, func(_ context.Context, a Action) error {
			p, err := decodePayload[sortPayload](a)
			if err != nil {
				return err
			}
			return s.AddSort(p.ID, p.Desc)
		}),
		on(ActionRemoveSort, func(_ context.Context, a Action) error {
			p, err := decodePayload[sortPayload](a)
			if err != nil {
				return err
			}
			return s.RemoveSort(p.ID)
		}),
		on(ActionClearSorting, func(context.Context, Action) error {
			return s.Clear()
		}),
	)
}
