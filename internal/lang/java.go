package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/huangsam/codeintel/schema"
)

func init() {
	Languages["java"] = &Language{
		Name:        "java",
		Extensions:  []string{".java"},
		lang:        java.GetLanguage(),
		LineComment: "//",
		Definitions: map[string]schema.ElementType{
			"method_declaration":      schema.MethodElement,
			"constructor_declaration": schema.MethodElement,
			"class_declaration":       schema.ClassElement,
			"enum_declaration":        schema.ClassElement,
			"record_declaration":      schema.ClassElement,
			"interface_declaration":   schema.InterfaceElement,
			"field_declaration":       schema.VariableElement,
		},
		ImportTypes: []string{"import_declaration"},
		CallTypes:   []string{"method_invocation"},
		DecisionTypes: []string{
			"if_statement",
			"for_statement",
			"enhanced_for_statement",
			"while_statement",
			"do_statement",
			"switch_expression",
			"switch_block_statement_group",
			"catch_clause",
			"ternary_expression",
			"binary_expression",
		},
		NestingTypes: []string{
			"if_statement",
			"for_statement",
			"enhanced_for_statement",
			"while_statement",
			"do_statement",
			"switch_expression",
			"try_statement",
			"lambda_expression",
		},
		ControlTypes:     []string{"if_statement", "for_statement", "enhanced_for_statement", "while_statement", "do_statement", "switch_expression"},
		ErrorTypes:       []string{"try_statement", "try_with_resources_statement", "catch_clause", "throw_statement"},
		DeclarationTypes: []string{"local_variable_declaration"},
		Keywords: []string{
			"class", "interface", "enum", "record", "extends", "implements", "public", "private",
			"protected", "static", "final", "abstract", "void", "var", "import", "package",
			"super", "instanceof", "synchronized", "throws",
		},
		DefinitionName: javaDefinitionName,
		ImportPath:     javaImportPath,
		CallTarget:     javaCallTarget,
	}
}

// javaDefinitionName reads the declarator name for fields.
func javaDefinitionName(node *sitter.Node, source []byte) string {
	if node.Type() == "field_declaration" {
		if d := node.ChildByFieldName("declarator"); d != nil {
			return defaultDefinitionName(d, source)
		}
		return ""
	}
	return defaultDefinitionName(node, source)
}

// javaImportPath strips the import keyword and terminator.
func javaImportPath(node *sitter.Node, source []byte) []string {
	text := CollapseWhitespace(NodeText(node, source))
	text = strings.TrimPrefix(text, "import ")
	text = strings.TrimPrefix(text, "static ")
	return []string{strings.TrimSuffix(text, ";")}
}

// javaCallTarget combines the optional object with the method name.
func javaCallTarget(node *sitter.Node, source []byte) (string, bool, *sitter.Node) {
	name := node.ChildByFieldName("name")
	if name == nil {
		return "", false, nil
	}
	callee := NodeText(name, source)
	member := false
	if obj := node.ChildByFieldName("object"); obj != nil {
		callee = CollapseWhitespace(NodeText(obj, source)) + "." + callee
		member = true
	}
	return callee, member, node.ChildByFieldName("arguments")
}
