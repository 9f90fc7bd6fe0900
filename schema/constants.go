package schema

// Custom string types for type safety.
type (
	// ElementType represents the structural kind of a code element.
	ElementType string

	// EdgeKind represents the relation carried by a dependency edge.
	EdgeKind string

	// SnippetType represents the closed set of fragment kinds the miner extracts.
	SnippetType string

	// ApprovalStatus represents the review state of a pattern version.
	ApprovalStatus string

	// PatternCategory represents the broad purpose of a pattern.
	PatternCategory string

	// ComplexityTier represents how involved a pattern is to apply.
	ComplexityTier string

	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents the database backend for caching.
	DatabaseBackend string
)

// All element types supported.
const (
	FunctionElement  ElementType = "function"
	MethodElement    ElementType = "method"
	ClassElement     ElementType = "class"
	InterfaceElement ElementType = "interface"
	VariableElement  ElementType = "variable"
	ImportElement    ElementType = "import"
)

// All edge kinds supported.
const (
	ImportEdge EdgeKind = "import"
	CallEdge   EdgeKind = "call"
)

// All snippet types supported.
const (
	FunctionCallSnippet        SnippetType = "function_call"
	ImportStatementSnippet     SnippetType = "import_statement"
	VariableDeclarationSnippet SnippetType = "variable_declaration"
	ControlStructureSnippet    SnippetType = "control_structure"
	ErrorHandlingSnippet       SnippetType = "error_handling"
	APIUsageSnippet            SnippetType = "api_usage"
	ConfigurationSnippet       SnippetType = "configuration"
)

// All approval states supported.
const (
	PendingStatus  ApprovalStatus = "PENDING" // default
	ApprovedStatus ApprovalStatus = "APPROVED"
	RejectedStatus ApprovalStatus = "REJECTED"
)

// All pattern categories supported.
const (
	UtilityCategory        PatternCategory = "utility"
	ErrorHandlingCategory  PatternCategory = "error_handling"
	DataProcessingCategory PatternCategory = "data_processing"
	APIIntegrationCategory PatternCategory = "api_integration"
	ConfigurationCategory  PatternCategory = "configuration"
	ControlFlowCategory    PatternCategory = "control_flow"
	SetupCategory          PatternCategory = "setup"
)

// All complexity tiers supported.
const (
	SimpleTier   ComplexityTier = "simple"
	ModerateTier ComplexityTier = "moderate"
	ComplexTier  ComplexityTier = "complex"
)

// All output modes supported.
const (
	CSVOut     OutputMode = "csv"
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	ParquetOut OutputMode = "parquet"
)

// All cache backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// AllSnippetTypes lists every snippet type in a stable order.
var AllSnippetTypes = []SnippetType{
	FunctionCallSnippet,
	ImportStatementSnippet,
	VariableDeclarationSnippet,
	ControlStructureSnippet,
	ErrorHandlingSnippet,
	APIUsageSnippet,
	ConfigurationSnippet,
}

// ValidSnippetTypes lists all valid snippet types.
var ValidSnippetTypes = map[SnippetType]struct{}{
	FunctionCallSnippet:        {},
	ImportStatementSnippet:     {},
	VariableDeclarationSnippet: {},
	ControlStructureSnippet:    {},
	ErrorHandlingSnippet:       {},
	APIUsageSnippet:            {},
	ConfigurationSnippet:       {},
}

// ValidApprovalStatuses lists all valid approval states.
var ValidApprovalStatuses = map[ApprovalStatus]struct{}{
	PendingStatus:  {},
	ApprovedStatus: {},
	RejectedStatus: {},
}

// ValidPatternCategories lists all valid pattern categories.
var ValidPatternCategories = map[PatternCategory]struct{}{
	UtilityCategory:        {},
	ErrorHandlingCategory:  {},
	DataProcessingCategory: {},
	APIIntegrationCategory: {},
	ConfigurationCategory:  {},
	ControlFlowCategory:    {},
	SetupCategory:          {},
}

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	CSVOut:     {},
	TextOut:    {},
	JSONOut:    {},
	ParquetOut: {},
}

// ValidDatabaseBackends lists all valid database backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// CategoryForSnippet maps a snippet type onto the pattern category it most naturally seeds.
func CategoryForSnippet(t SnippetType) PatternCategory {
	switch t {
	case ErrorHandlingSnippet:
		return ErrorHandlingCategory
	case ConfigurationSnippet:
		return ConfigurationCategory
	case APIUsageSnippet:
		return APIIntegrationCategory
	case ImportStatementSnippet:
		return SetupCategory
	case ControlStructureSnippet:
		return ControlFlowCategory
	case VariableDeclarationSnippet:
		return DataProcessingCategory
	case FunctionCallSnippet:
		return UtilityCategory
	default:
		return UtilityCategory
	}
}
