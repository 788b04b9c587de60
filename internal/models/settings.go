package models

// MediaSettings controls how media links are rendered.
type MediaSettings struct {
	EnableMediaView  bool `yaml:"enable_media_view" json:"enable_media_view"`
	LinkAliasEnabled bool `yaml:"link_alias_enabled" json:"link_alias_enabled"`
	Width            int  `yaml:"width" json:"width"`
	Height           int  `yaml:"height" json:"height"`
}

// GlobalSettings are plugin-wide and persisted once per process.
type GlobalSettings struct {
	EnableDebugMode        bool          `yaml:"enable_debug_mode" json:"enable_debug_mode"`
	LoggerLevelInfo        string        `yaml:"logger_level_info" json:"logger_level_info"`
	MediaSettings          MediaSettings `yaml:"media_settings" json:"media_settings"`
	EnableShowState        bool          `yaml:"enable_show_state" json:"enable_show_state"`
	CSVFileHeaderKey       string        `yaml:"csv_file_header_key" json:"csv_file_header_key"`
	EnableRowShadow        bool          `yaml:"enable_row_shadow" json:"enable_row_shadow"`
	EnableAutoUpdate       bool          `yaml:"enable_auto_update" json:"enable_auto_update"`
	ShowSearchBarByDefault bool          `yaml:"show_search_bar_by_default" json:"show_search_bar_by_default"`
}

// LocalSettings are per view and persisted inside the database note.
type LocalSettings struct {
	RemoveFieldWhenDeleteColumn   bool   `yaml:"remove_field_when_delete_column" json:"remove_field_when_delete_column"`
	CellSize                      string `yaml:"cell_size" json:"cell_size"`
	StickyFirstColumn             bool   `yaml:"sticky_first_column" json:"sticky_first_column"`
	GroupFolderColumn             string `yaml:"group_folder_column" json:"group_folder_column"`
	RemoveEmptyFolders            bool   `yaml:"remove_empty_folders" json:"remove_empty_folders"`
	AutomaticallyGroupFiles       bool   `yaml:"automatically_group_files" json:"automatically_group_files"`
	HoistFilesWithEmptyAttributes bool   `yaml:"hoist_files_with_empty_attributes" json:"hoist_files_with_empty_attributes"`
	ShowMetadataCreated           bool   `yaml:"show_metadata_created" json:"show_metadata_created"`
	ShowMetadataModified          bool   `yaml:"show_metadata_modified" json:"show_metadata_modified"`
	ShowMetadataTasks             bool   `yaml:"show_metadata_tasks" json:"show_metadata_tasks"`
	ShowMetadataInlinks           bool   `yaml:"show_metadata_inlinks" json:"show_metadata_inlinks"`
	ShowMetadataOutlinks          bool   `yaml:"show_metadata_outlinks" json:"show_metadata_outlinks"`
	SourceData                    string `yaml:"source_data" json:"source_data"`
	SourceFormResult              string `yaml:"source_form_result" json:"source_form_result"`
	SourceDestinationPath         string `yaml:"source_destination_path" json:"source_destination_path"`
	FrontmatterQuoteWrap          bool   `yaml:"frontmatter_quote_wrap" json:"frontmatter_quote_wrap"`
	RowTemplatesFolder            string `yaml:"row_templates_folder" json:"row_templates_folder"`
	CurrentRowTemplate            string `yaml:"current_row_template" json:"current_row_template"`
	PaginationSize                int    `yaml:"pagination_size" json:"pagination_size"`
	EnableJSFormulas              bool   `yaml:"enable_js_formulas" json:"enable_js_formulas"`
	FormulaFolderPath             string `yaml:"formula_folder_path" json:"formula_folder_path"`
	InlineDefault                 bool   `yaml:"inline_default" json:"inline_default"`
	InlineNewPosition             string `yaml:"inline_new_position" json:"inline_new_position"`
	DateFormat                    string `yaml:"date_format" json:"date_format"`
	DatetimeFormat                string `yaml:"datetime_format" json:"datetime_format"`
}

// DatabaseSettings groups global settings and the local defaults applied to
// new databases.
type DatabaseSettings struct {
	GlobalSettings GlobalSettings `yaml:"global_settings" json:"global_settings"`
	LocalSettings  LocalSettings  `yaml:"local_settings" json:"local_settings"`
}

// DefaultLocalSettings is the canonical defaults record for LocalSettings.
func DefaultLocalSettings() LocalSettings {
	return LocalSettings{
		RemoveFieldWhenDeleteColumn:   false,
		CellSize:                      CellSizeNormal,
		StickyFirstColumn:             false,
		GroupFolderColumn:             "",
		RemoveEmptyFolders:            false,
		AutomaticallyGroupFiles:       false,
		HoistFilesWithEmptyAttributes: true,
		ShowMetadataCreated:           false,
		ShowMetadataModified:          false,
		ShowMetadataTasks:             false,
		ShowMetadataInlinks:           false,
		ShowMetadataOutlinks:          false,
		SourceData:                    SourceCurrentFolder,
		SourceFormResult:              "root",
		SourceDestinationPath:         "/",
		FrontmatterQuoteWrap:          false,
		RowTemplatesFolder:            "/",
		CurrentRowTemplate:            "",
		PaginationSize:                10,
		EnableJSFormulas:              false,
		FormulaFolderPath:             "/",
		InlineDefault:                 false,
		InlineNewPosition:             InlinePositionTop,
		DateFormat:                    "yyyy-MM-dd",
		DatetimeFormat:                "yyyy-MM-dd HH:mm:ss",
	}
}

// DefaultSettings returns the plugin-wide defaults.
func DefaultSettings() DatabaseSettings {
	col := DefaultColumnConfig()
	return DatabaseSettings{
		GlobalSettings: GlobalSettings{
			EnableDebugMode:  false,
			LoggerLevelInfo:  "error",
			EnableShowState:  false,
			CSVFileHeaderKey: "File",
			EnableRowShadow:  true,
			MediaSettings: MediaSettings{
				EnableMediaView:  col.EnableMediaView,
				LinkAliasEnabled: col.LinkAliasEnabled,
				Width:            col.MediaWidth,
				Height:           col.MediaHeight,
			},
		},
		LocalSettings: DefaultLocalSettings(),
	}
}
