package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/huangsam/codeintel/schema"
)

func init() {
	Languages["rust"] = &Language{
		Name:        "rust",
		Extensions:  []string{".rs"},
		lang:        rust.GetLanguage(),
		LineComment: "//",
		Definitions: map[string]schema.ElementType{
			"function_item": schema.FunctionElement,
			"struct_item":   schema.ClassElement,
			"enum_item":     schema.ClassElement,
			"impl_item":     schema.ClassElement,
			"trait_item":    schema.InterfaceElement,
			"const_item":    schema.VariableElement,
			"static_item":   schema.VariableElement,
		},
		ImportTypes: []string{"use_declaration"},
		CallTypes:   []string{"call_expression", "macro_invocation"},
		DecisionTypes: []string{
			"if_expression",
			"match_expression",
			"match_arm",
			"while_expression",
			"loop_expression",
			"for_expression",
			"binary_expression",
		},
		NestingTypes: []string{
			"if_expression",
			"match_expression",
			"while_expression",
			"loop_expression",
			"for_expression",
			"closure_expression",
		},
		ControlTypes:     []string{"if_expression", "match_expression", "while_expression", "loop_expression", "for_expression"},
		ErrorTypes:       []string{"try_expression"},
		DeclarationTypes: []string{"let_declaration"},
		Keywords: []string{
			"fn", "let", "mut", "pub", "impl", "struct", "enum", "trait", "use", "mod", "crate",
			"super", "match", "loop", "move", "ref", "where", "as", "Some", "Ok", "Err",
		},
		DefinitionName: rustDefinitionName,
		ImportPath:     rustImportPath,
		CallTarget:     rustCallTarget,
	}
}

// rustDefinitionName names impl blocks after the implemented type.
func rustDefinitionName(node *sitter.Node, source []byte) string {
	if node.Type() == "impl_item" {
		if t := node.ChildByFieldName("type"); t != nil {
			return NodeText(t, source)
		}
		return ""
	}
	return defaultDefinitionName(node, source)
}

// rustImportPath reads the argument of a use declaration.
func rustImportPath(node *sitter.Node, source []byte) []string {
	if a := node.ChildByFieldName("argument"); a != nil {
		return []string{CollapseWhitespace(NodeText(a, source))}
	}
	return nil
}

// rustCallTarget handles macro invocations in addition to plain calls.
func rustCallTarget(node *sitter.Node, source []byte) (string, bool, *sitter.Node) {
	if node.Type() == "macro_invocation" {
		m := node.ChildByFieldName("macro")
		if m == nil {
			return "", false, nil
		}
		name := NodeText(m, source)
		return name + "!", strings.Contains(name, "::"), nil
	}
	return defaultCallTarget(node, source)
}
