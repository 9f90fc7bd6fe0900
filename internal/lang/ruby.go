package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"

	"github.com/huangsam/codeintel/schema"
)

func init() {
	Languages["ruby"] = &Language{
		Name:        "ruby",
		Extensions:  []string{".rb"},
		lang:        ruby.GetLanguage(),
		LineComment: "#",
		Definitions: map[string]schema.ElementType{
			"method":           schema.FunctionElement,
			"singleton_method": schema.MethodElement,
			"class":            schema.ClassElement,
			"module":           schema.ClassElement,
			"assignment":       schema.VariableElement,
		},
		ImportCallees: []string{"require", "require_relative", "load"},
		CallTypes:     []string{"call"},
		DecisionTypes: []string{
			"if",
			"elsif",
			"unless",
			"while",
			"until",
			"for",
			"when",
			"rescue",
			"conditional",
			"binary",
		},
		NestingTypes: []string{
			"if",
			"unless",
			"while",
			"until",
			"for",
			"case",
			"begin",
			"block",
			"do_block",
			"lambda",
		},
		ControlTypes:     []string{"if", "unless", "while", "until", "for", "case"},
		ErrorTypes:       []string{"begin", "rescue", "ensure"},
		DeclarationTypes: []string{"assignment"},
		Keywords: []string{
			"def", "end", "class", "module", "unless", "until", "elsif", "when", "then", "begin",
			"rescue", "ensure", "yield", "require", "require_relative", "attr_accessor", "puts",
		},
		DefinitionName: rubyDefinitionName,
		CallTarget:     rubyCallTarget,
	}
}

// rubyDefinitionName handles constant assignments and scoped class names.
func rubyDefinitionName(node *sitter.Node, source []byte) string {
	if node.Type() == "assignment" {
		left := node.ChildByFieldName("left")
		if left == nil {
			return ""
		}
		switch left.Type() {
		case "identifier", "constant":
			return NodeText(left, source)
		}
		return ""
	}
	return defaultDefinitionName(node, source)
}

// rubyCallTarget combines the optional receiver with the method name.
func rubyCallTarget(node *sitter.Node, source []byte) (string, bool, *sitter.Node) {
	method := node.ChildByFieldName("method")
	if method == nil {
		return "", false, nil
	}
	callee := NodeText(method, source)
	member := false
	if recv := node.ChildByFieldName("receiver"); recv != nil {
		callee = CollapseWhitespace(NodeText(recv, source)) + "." + callee
		member = true
	}
	return callee, member, node.ChildByFieldName("arguments")
}
