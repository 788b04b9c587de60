// Package marshal turns a raw database configuration block into a fully
// populated models.DatabaseYaml. Missing or mistyped keys are repaired from
// the canonical defaults and every repair is reported as a warning.
package marshal

import (
	"bytes"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/starford/dbfolder/internal/chain"
	"github.com/starford/dbfolder/internal/models"
)

// Response is threaded through the marshalling chain.
type Response struct {
	Yaml   map[string]any
	Errors map[string][]string
}

// ErrorMap implements chain.Response.
func (r *Response) ErrorMap() map[string][]string {
	return r.Errors
}

// Handler titles, used as warning map keys.
const (
	TitleDatabaseInfo = "database information"
	TitleColumns      = "columns"
	TitleConfig       = "configuration"
	TitleFilters      = "filters"
)

var (
	pipelineOnce sync.Once
	pipeline     *chain.Chain[*Response]
)

// Pipeline returns the shared database marshalling chain.
func Pipeline() *chain.Chain[*Response] {
	pipelineOnce.Do(func() {
		pipeline = chain.New[*Response](
			databaseInfoHandler(),
			columnsHandler(),
			configurationHandler(),
			filtersHandler(),
		)
	})
	return pipeline
}

// Unmarshal decodes block text and runs the pipeline over it.
func Unmarshal(text []byte) (*models.DatabaseYaml, map[string][]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(text, &raw); err != nil {
		return nil, nil, fmt.Errorf("marshal: decode block: %w", err)
	}
	return Marshal(raw)
}

// Marshal repairs raw in place and decodes it into the typed configuration.
// Only decoding failures are returned as errors.
func Marshal(raw map[string]any) (*models.DatabaseYaml, map[string][]string, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	r := Pipeline().Handle(&Response{Yaml: raw, Errors: map[string][]string{}})

	out, err := yaml.Marshal(r.Yaml)
	if err != nil {
		return nil, r.Errors, fmt.Errorf("marshal: encode repaired block: %w", err)
	}
	var db models.DatabaseYaml
	if err := yaml.Unmarshal(out, &db); err != nil {
		return nil, r.Errors, fmt.Errorf("marshal: decode repaired block: %w", err)
	}
	if db.Columns == nil {
		db.Columns = models.Columns{}
	}
	for id, col := range db.Columns {
		col.ID = id
	}
	if db.Filters.Conditions == nil {
		db.Filters.Conditions = models.Filters{}
	}
	return &db, r.Errors, nil
}

// Serialize renders a configuration as block text.
func Serialize(db *models.DatabaseYaml) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(db); err != nil {
		return "", fmt.Errorf("marshal: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("marshal: encode: %w", err)
	}
	return buf.String(), nil
}
