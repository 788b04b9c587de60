package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/models"
)

func row(values map[string]any) *models.Row {
	return &models.Row{Path: "r.md", Values: values}
}

func atom(field, op, value string) *models.AtomicFilter {
	return &models.AtomicFilter{Field: field, Operator: op, Type: "text", Value: value}
}

func TestMatches_Operators(t *testing.T) {
	r := row(map[string]any{
		"status": "Done",
		"rating": float64(4),
		"tags":   []any{"scifi", "classic"},
		"empty":  "",
		"title":  "The Left Hand of Darkness",
	})
	cases := []struct {
		name string
		f    *models.AtomicFilter
		want bool
	}{
		{"equal", atom("status", models.OperatorEqual, "Done"), true},
		{"equal case sensitive", atom("status", models.OperatorEqual, "done"), false},
		{"not equal", atom("status", models.OperatorNotEqual, "Todo"), true},
		{"numeric equal", atom("rating", models.OperatorEqual, "4.0"), true},
		{"greater", atom("rating", models.OperatorGreaterThan, "3"), true},
		{"greater numeric not lexical", atom("rating", models.OperatorGreaterThan, "10"), false},
		{"less or equal", atom("rating", models.OperatorLessThanOrEqual, "4"), true},
		{"list equal", atom("tags", models.OperatorEqual, "classic"), true},
		{"list contains", atom("tags", models.OperatorContains, "SCI"), true},
		{"list not contains", atom("tags", models.OperatorNotContains, "fantasy"), true},
		{"starts", atom("title", models.OperatorStartsWith, "the left"), true},
		{"ends", atom("title", models.OperatorEndsWith, "darkness"), true},
		{"is empty", atom("empty", models.OperatorIsEmpty, ""), true},
		{"missing is empty", atom("missing", models.OperatorIsEmpty, ""), true},
		{"is not empty", atom("status", models.OperatorIsNotEmpty, ""), true},
		{"less than on missing", atom("missing", models.OperatorLessThan, "3"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Matches(tc.f, r); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMatches_EmptyGroupSatisfied(t *testing.T) {
	g := &models.ConditionGroup{Condition: models.ConditionAnd, Filters: models.Filters{}}
	if !Matches(g, row(nil)) {
		t.Error("empty group should be satisfied")
	}
	disabled := &models.ConditionGroup{
		Condition: models.ConditionAnd,
		Disabled:  true,
		Filters:   models.Filters{atom("x", models.OperatorIsNotEmpty, "")},
	}
	if !Matches(disabled, row(nil)) {
		t.Error("disabled group should be satisfied")
	}
}

func TestMatches_OrAnd(t *testing.T) {
	r := row(map[string]any{"a": "1", "b": "2"})
	or := &models.ConditionGroup{Condition: models.ConditionOr, Filters: models.Filters{
		atom("a", models.OperatorEqual, "9"),
		atom("b", models.OperatorEqual, "2"),
	}}
	and := &models.ConditionGroup{Condition: models.ConditionAnd, Filters: models.Filters{
		atom("a", models.OperatorEqual, "9"),
		atom("b", models.OperatorEqual, "2"),
	}}
	if !Matches(or, r) {
		t.Error("OR group should match")
	}
	if Matches(and, r) {
		t.Error("AND group should not match")
	}
}

func deepTree(depth int) models.Filters {
	var node models.Filter = atom("status", models.OperatorEqual, "Done")
	for i := 1; i < depth; i++ {
		node = &models.ConditionGroup{Condition: models.ConditionAnd, Filters: models.Filters{node}}
	}
	return models.Filters{node}
}

func TestDeepTree(t *testing.T) {
	tree := deepTree(8)
	if got := Depth(tree); got != 8 {
		t.Errorf("Depth = %d, want 8", got)
	}
	if !Evaluate(tree, row(map[string]any{"status": "Done"})) {
		t.Error("deep tree should match")
	}
	if Evaluate(tree, row(map[string]any{"status": "Todo"})) {
		t.Error("deep tree should not match")
	}
}

func TestApply(t *testing.T) {
	rows := []*models.Row{
		row(map[string]any{"status": "Done"}),
		row(map[string]any{"status": "Todo"}),
	}
	settings := models.FilterSettings{Enabled: true, Conditions: models.Filters{atom("status", models.OperatorEqual, "Done")}}
	if got := Apply(settings, rows); len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
	settings.Enabled = false
	if got := Apply(settings, rows); len(got) != 2 {
		t.Errorf("disabled: len = %d, want 2", len(got))
	}
}

func TestWalk(t *testing.T) {
	tree := models.Filters{
		atom("a", models.OperatorIsEmpty, ""),
		&models.ConditionGroup{Condition: models.ConditionOr, Filters: models.Filters{
			atom("b", models.OperatorIsEmpty, ""),
			atom("c", models.OperatorIsEmpty, ""),
		}},
	}
	var got []string
	Walk(tree, func(p Path, _ models.Filter) bool {
		got = append(got, p.String())
		return true
	})
	if diff := cmp.Diff([]string{"0", "1", "1.0", "1.1"}, got); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}
}

func TestEditing(t *testing.T) {
	tree := models.Filters{
		&models.ConditionGroup{Condition: models.ConditionAnd, Filters: models.Filters{
			atom("a", models.OperatorIsEmpty, ""),
		}},
	}

	inserted, err := Insert(tree, Path{0}, atom("b", models.OperatorIsEmpty, ""))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(tree[0].(*models.ConditionGroup).Filters) != 1 {
		t.Error("Insert mutated the input tree")
	}
	node, err := At(inserted, Path{0, 1})
	if err != nil || node.(*models.AtomicFilter).Field != "b" {
		t.Fatalf("At(0.1) = %v, %v", node, err)
	}

	replaced, err := Replace(inserted, Path{0, 0}, atom("z", models.OperatorIsEmpty, ""))
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if n, _ := At(replaced, Path{0, 0}); n.(*models.AtomicFilter).Field != "z" {
		t.Errorf("replaced node = %+v", n)
	}

	removed, err := Remove(replaced, Path{0, 0})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	g := removed[0].(*models.ConditionGroup)
	if len(g.Filters) != 1 || g.Filters[0].(*models.AtomicFilter).Field != "b" {
		t.Errorf("after remove = %+v", g.Filters)
	}

	if _, err := At(removed, Path{3}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := Insert(removed, Path{0, 0}, atom("x", models.OperatorIsEmpty, "")); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("insert into atomic: err = %v, want ErrInvalidInput", err)
	}
}

func TestParsePath(t *testing.T) {
	p, err := ParsePath("2.0.5")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Path{2, 0, 5}, p); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if _, err := ParsePath("a.1"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestMatches_Dates(t *testing.T) {
	r := row(map[string]any{
		"due":      "03/15/2024",
		"read":     "Mar 15, 2024",
		"meeting":  "2024-03-15T10:30:00Z",
		"created":  time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		"undated":  "someday",
		"noChange": "2024-03-15",
	})
	date := func(field, input, op, value string) *models.AtomicFilter {
		return &models.AtomicFilter{Field: field, Operator: op, Type: input, Value: value}
	}
	cases := []struct {
		name string
		f    *models.AtomicFilter
		want bool
	}{
		{"calendar equal across layouts", date("due", "calendar", models.OperatorEqual, "2024-03-15"), true},
		{"calendar ignores time of day", date("read", "calendar", models.OperatorEqual, "2024-03-15 18:00"), true},
		{"calendar after", date("due", "calendar", models.OperatorGreaterThan, "2024-02-29"), true},
		{"calendar before", date("due", "calendar", models.OperatorLessThan, "2024-02-29"), false},
		{"calendar_time keeps time", date("meeting", "calendar_time", models.OperatorGreaterThan, "2024-03-15 10:00"), true},
		{"metadata time value", date("created", "metadata_time", models.OperatorLessThanOrEqual, "2024-01-02"), false},
		{"unparsable falls back", date("undated", "calendar", models.OperatorEqual, "someday"), true},
		{"contains stays textual", date("noChange", "calendar", models.OperatorContains, "03-15"), true},
		{"empty cell", date("missing", "calendar", models.OperatorIsEmpty, ""), true},
	}
	for _, tc := range cases {
		if got := Matches(tc.f, r); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
