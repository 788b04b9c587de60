package models

// DatabaseYaml is the typed content of a database configuration block.
type DatabaseYaml struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Columns     Columns        `yaml:"columns" json:"columns"`
	Config      LocalSettings  `yaml:"config" json:"config"`
	Filters     FilterSettings `yaml:"filters" json:"filters"`
}

// Clone returns a deep copy of y.
func (y *DatabaseYaml) Clone() *DatabaseYaml {
	if y == nil {
		return nil
	}
	return &DatabaseYaml{
		Name:        y.Name,
		Description: y.Description,
		Columns:     y.Columns.Clone(),
		Config:      y.Config,
		Filters:     y.Filters.Clone(),
	}
}

// NewDatabaseYaml returns the configuration of a freshly created database.
func NewDatabaseYaml(name string, local LocalSettings) *DatabaseYaml {
	col := NewColumn("column1", "Column 1", InputText)
	return &DatabaseYaml{
		Name:        name,
		Description: "new description",
		Columns:     Columns{col.ID: col},
		Config:      local,
		Filters:     FilterSettings{Conditions: Filters{}},
	}
}
