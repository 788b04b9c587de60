package models

// InputType tags the kind of data a column holds.
type InputType string

// Column input types.
const (
	InputNumber       InputType = "number"
	InputText         InputType = "text"
	InputSelect       InputType = "select"
	InputTags         InputType = "tags"
	InputMarkdown     InputType = "markdown"
	InputSorting      InputType = "sorting"
	InputCalendar     InputType = "calendar"
	InputCalendarTime InputType = "calendar_time"
	InputMetadataTime InputType = "metadata_time"
	InputTask         InputType = "task"
	InputInlinks      InputType = "inlinks"
	InputOutlinks     InputType = "outlinks"
	InputCheckbox     InputType = "checkbox"
	InputNewColumn    InputType = "new_column"
	InputFormula      InputType = "formula"
	InputRelation     InputType = "relation"
	InputRollup       InputType = "rollup"
)

var inputTypes = map[InputType]struct{}{
	InputNumber: {}, InputText: {}, InputSelect: {}, InputTags: {},
	InputMarkdown: {}, InputSorting: {}, InputCalendar: {}, InputCalendarTime: {},
	InputMetadataTime: {}, InputTask: {}, InputInlinks: {}, InputOutlinks: {},
	InputCheckbox: {}, InputNewColumn: {}, InputFormula: {}, InputRelation: {},
	InputRollup: {},
}

// Valid reports whether t belongs to the closed set of input types.
func (t InputType) Valid() bool {
	_, ok := inputTypes[t]
	return ok
}

// UserSelectable lists the input types a user may assign to a column.
func UserSelectable() []InputType {
	return []InputType{
		InputText, InputNumber, InputSelect, InputTags, InputMarkdown,
		InputCalendar, InputCalendarTime, InputCheckbox, InputFormula,
		InputRelation, InputRollup,
	}
}

// FrontmatterKey marks a note as a database.
const FrontmatterKey = "database-plugin"

// Metadata column identifiers.
const (
	MetadataFile           = "__file__"
	MetadataCreated        = "__created__"
	MetadataModified       = "__modified__"
	MetadataAddColumn      = "__add_column__"
	MetadataTasks          = "__tasks__"
	MetadataOutlinks       = "__outlinks__"
	MetadataInlinks        = "__inlinks__"
	MetadataRowContextMenu = "__rowContextMenu__"
)

// Limits applied to database structures.
const (
	MaxColumns      = 100
	MaxRows         = 99999
	MaxOptions      = 100
	MinColumnHeight = 30
	MaxColumnHeight = 350
)

// Text alignment values for ColumnConfig.ContentAlignment.
const (
	AlignLeft    = "text-align-left"
	AlignCenter  = "text-align-center"
	AlignRight   = "text-align-right"
	AlignJustify = "text-align-justify"
	AlignNoWrap  = "text-nowrap"
	AlignWrap    = "text-wrap"
)

// Cell sizes.
const (
	CellSizeCompact = "compact"
	CellSizeNormal  = "normal"
	CellSizeWide    = "wide"
)

// Row source kinds.
const (
	SourceCurrentFolder             = "current_folder"
	SourceCurrentFolderNoSubfolders = "current_folder_without_subfolders"
	SourceTag                       = "tag"
	SourceOutgoingLink              = "outgoing_link"
	SourceIncomingLink              = "incoming_link"
	SourceQuery                     = "query"
)

// Inline field positions for new rows.
const (
	InlinePositionTop    = "top"
	InlinePositionBottom = "bottom"
)

// Filter group conditions.
const (
	ConditionAnd = "AND"
	ConditionOr  = "OR"
)

// Filter operators.
const (
	OperatorEqual              = "EQUAL"
	OperatorNotEqual           = "NOT_EQUAL"
	OperatorGreaterThan        = "GREATER_THAN"
	OperatorLessThan           = "LESS_THAN"
	OperatorGreaterThanOrEqual = "GREATER_THAN_OR_EQUAL"
	OperatorLessThanOrEqual    = "LESS_THAN_OR_EQUAL"
	OperatorContains           = "CONTAINS"
	OperatorNotContains        = "NOT_CONTAINS"
	OperatorStartsWith         = "STARTS_WITH"
	OperatorEndsWith           = "ENDS_WITH"
	OperatorIsEmpty            = "IS_EMPTY"
	OperatorIsNotEmpty         = "IS_NOT_EMPTY"
)

// Operators lists every filter operator in display order.
func Operators() []string {
	return []string{
		OperatorEqual, OperatorNotEqual, OperatorGreaterThan, OperatorLessThan,
		OperatorGreaterThanOrEqual, OperatorLessThanOrEqual, OperatorContains,
		OperatorNotContains, OperatorStartsWith, OperatorEndsWith,
		OperatorIsEmpty, OperatorIsNotEmpty,
	}
}
