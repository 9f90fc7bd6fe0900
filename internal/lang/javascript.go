package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/huangsam/codeintel/schema"
)

func init() {
	Languages["javascript"] = newECMALanguage("javascript", []string{".js", ".jsx", ".mjs", ".cjs"}, javascript.GetLanguage())
	Languages["typescript"] = newECMALanguage("typescript", []string{".ts", ".mts", ".cts"}, typescript.GetLanguage())
	Languages["tsx"] = newECMALanguage("tsx", []string{".tsx"}, tsx.GetLanguage())
}

// newECMALanguage builds the shared configuration of the JavaScript family.
func newECMALanguage(name string, exts []string, grammar *sitter.Language) *Language {
	return &Language{
		Name:        name,
		Extensions:  exts,
		lang:        grammar,
		LineComment: "//",
		Definitions: map[string]schema.ElementType{
			"function_declaration":           schema.FunctionElement,
			"generator_function_declaration": schema.FunctionElement,
			"method_definition":              schema.MethodElement,
			"class_declaration":              schema.ClassElement,
			"interface_declaration":          schema.InterfaceElement,
			"variable_declarator":            schema.VariableElement,
		},
		ImportTypes:   []string{"import_statement"},
		ImportCallees: []string{"require"},
		CallTypes:     []string{"call_expression"},
		DecisionTypes: []string{
			"if_statement",
			"for_statement",
			"for_in_statement",
			"while_statement",
			"do_statement",
			"switch_case",
			"catch_clause",
			"ternary_expression",
			"binary_expression",
			"optional_chain_expression",
		},
		NestingTypes: []string{
			"if_statement",
			"for_statement",
			"for_in_statement",
			"while_statement",
			"do_statement",
			"switch_statement",
			"try_statement",
			"arrow_function",
			"function_expression",
		},
		ControlTypes:     []string{"if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement", "switch_statement"},
		ErrorTypes:       []string{"try_statement", "catch_clause", "throw_statement"},
		DeclarationTypes: []string{"lexical_declaration", "variable_declaration"},
		Keywords: []string{
			"function", "var", "let", "const", "class", "extends", "import", "export", "from",
			"async", "await", "yield", "typeof", "instanceof", "undefined", "void", "delete",
			"interface", "type", "implements",
		},
		ClassifyDefinition: ecmaClassifyDefinition,
		ImportPath:         ecmaImportPath,
	}
}

// ecmaClassifyDefinition promotes declarators bound to functions into functions.
func ecmaClassifyDefinition(node *sitter.Node, _ []byte, base schema.ElementType) (schema.ElementType, bool) {
	if node.Type() != "variable_declarator" {
		return base, true
	}
	name := node.ChildByFieldName("name")
	if name == nil || name.Type() != "identifier" {
		return base, false
	}
	if v := node.ChildByFieldName("value"); v != nil {
		switch v.Type() {
		case "arrow_function", "function", "function_expression", "generator_function":
			return schema.FunctionElement, true
		}
	}
	return schema.VariableElement, true
}

// ecmaImportPath reads the source string of an import statement.
func ecmaImportPath(node *sitter.Node, source []byte) []string {
	if s := node.ChildByFieldName("source"); s != nil {
		return []string{stringLiteralPath(s, source)}
	}
	return nil
}
