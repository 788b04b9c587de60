package rollup

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/dbfolder/internal/apperr"
	"github.com/starford/dbfolder/internal/models"
)

func related() []*models.Row {
	return []*models.Row{
		{Path: "a.md", Values: map[string]any{"pages": float64(100), "read": true, "genre": "scifi"},
			Tasks: []models.Task{{Text: "buy", Completed: true}, {Text: "read", Completed: false}}},
		{Path: "b.md", Values: map[string]any{"pages": "250", "read": "false", "genre": "scifi"}},
		{Path: "c.md", Values: map[string]any{"genre": "fantasy"},
			Tasks: []models.Task{{Text: "review", Completed: false}}},
		{Path: "d.md", Values: map[string]any{"pages": "n/a", "genre": ""}},
	}
}

func TestRequiresKey(t *testing.T) {
	for _, a := range EmbedActions() {
		if RequiresKey(a) {
			t.Errorf("embed action %q requires a key", a)
		}
	}
	for _, a := range ValueActions() {
		if !RequiresKey(a) {
			t.Errorf("value action %q does not require a key", a)
		}
	}
}

func TestCompute_ValueActions(t *testing.T) {
	cases := []struct {
		action, key string
		want        any
	}{
		{ActionSum, "pages", float64(350)},
		{ActionCountAll, "genre", 4},
		{ActionCountUnique, "genre", 2},
		{ActionOriginalValue, "genre", "scifi, scifi, fantasy"},
		{ActionTruthyCount, "read", 1},
		{ActionFalsyCount, "read", 3},
		{ActionPercentEmpty, "pages", float64(25)},
		{ActionPercentFilled, "pages", float64(75)},
	}
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			got, err := Compute(tc.action, tc.key, related())
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompute_KeyRequired(t *testing.T) {
	_, err := Compute(ActionSum, "", related())
	if !errors.Is(err, ErrKeyRequired) {
		t.Errorf("err = %v, want ErrKeyRequired", err)
	}
	if _, err := Compute(ActionAllTasks, "", related()); err != nil {
		t.Errorf("embed action without key: %v", err)
	}
	if _, err := Compute("Median", "pages", related()); !errors.Is(err, apperr.ErrUnknownAction) {
		t.Errorf("err = %v, want ErrUnknownAction", err)
	}
}

func TestCompute_Tasks(t *testing.T) {
	all, _ := Compute(ActionAllTasks, "", related())
	todo, _ := Compute(ActionTaskTodo, "", related())
	done, _ := Compute(ActionTaskCompleted, "", related())
	if n := len(all.([]models.Task)); n != 3 {
		t.Errorf("all tasks = %d, want 3", n)
	}
	if n := len(todo.([]models.Task)); n != 2 {
		t.Errorf("todo tasks = %d, want 2", n)
	}
	if n := len(done.([]models.Task)); n != 1 {
		t.Errorf("completed tasks = %d, want 1", n)
	}
}

func TestLinks(t *testing.T) {
	got := Links([]any{"[[Dune]]", "[[Emma|E]] and [[Dune]]"})
	if diff := cmp.Diff([]string{"Dune", "Emma"}, got); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
	if got := Links("[[Solo]]"); len(got) != 1 || got[0] != "Solo" {
		t.Errorf("Links(string) = %v", got)
	}
}

func TestFields(t *testing.T) {
	got := Fields(related())
	if diff := cmp.Diff([]string{"genre", "pages", "read"}, got); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}
