package lang

import (
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/huangsam/codeintel/schema"
)

var goErrCheckRe = regexp.MustCompile(`\berr\w*\s*!=\s*nil\b`)

func init() {
	Languages["go"] = &Language{
		Name:        "go",
		Extensions:  []string{".go"},
		lang:        golang.GetLanguage(),
		LineComment: "//",
		Definitions: map[string]schema.ElementType{
			"function_declaration": schema.FunctionElement,
			"method_declaration":   schema.MethodElement,
			"type_spec":            schema.ClassElement,
			"var_spec":             schema.VariableElement,
			"const_spec":           schema.VariableElement,
		},
		ImportTypes: []string{"import_spec"},
		CallTypes:   []string{"call_expression"},
		DecisionTypes: []string{
			"if_statement",
			"for_statement",
			"expression_case",
			"type_case",
			"communication_case",
			"binary_expression",
		},
		NestingTypes: []string{
			"if_statement",
			"for_statement",
			"select_statement",
			"type_switch_statement",
			"expression_switch_statement",
			"func_literal",
		},
		ControlTypes: []string{
			"if_statement",
			"for_statement",
			"expression_switch_statement",
			"type_switch_statement",
			"select_statement",
		},
		DeclarationTypes: []string{"short_var_declaration"},
		Keywords: []string{
			"func", "var", "const", "type", "struct", "interface", "range", "go", "defer",
			"select", "chan", "map", "package", "import", "fallthrough", "goto",
		},
		ClassifyDefinition: goClassifyDefinition,
		ImportPath:         goImportPath,
		IsErrorCheck:       goIsErrorCheck,
	}
}

// goClassifyDefinition keeps only struct and interface type specs.
func goClassifyDefinition(node *sitter.Node, _ []byte, base schema.ElementType) (schema.ElementType, bool) {
	if node.Type() != "type_spec" {
		return base, true
	}
	t := node.ChildByFieldName("type")
	if t == nil {
		return base, false
	}
	switch t.Type() {
	case "struct_type":
		return schema.ClassElement, true
	case "interface_type":
		return schema.InterfaceElement, true
	}
	return base, false
}

// goImportPath reads the quoted path of an import_spec.
func goImportPath(node *sitter.Node, source []byte) []string {
	if p := node.ChildByFieldName("path"); p != nil {
		return []string{stringLiteralPath(p, source)}
	}
	return nil
}

// goIsErrorCheck matches `if err != nil` guards, including ones with an initializer.
func goIsErrorCheck(node *sitter.Node, source []byte) bool {
	if node.Type() != "if_statement" {
		return false
	}
	cond := node.ChildByFieldName("condition")
	if cond == nil {
		return false
	}
	return goErrCheckRe.MatchString(NodeText(cond, source))
}
