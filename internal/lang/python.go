package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/huangsam/codeintel/schema"
)

func init() {
	Languages["python"] = &Language{
		Name:        "python",
		Extensions:  []string{".py"},
		lang:        python.GetLanguage(),
		LineComment: "#",
		Definitions: map[string]schema.ElementType{
			"function_definition": schema.FunctionElement,
			"class_definition":    schema.ClassElement,
			"assignment":          schema.VariableElement,
		},
		ImportTypes: []string{"import_statement", "import_from_statement"},
		CallTypes:   []string{"call"},
		DecisionTypes: []string{
			"if_statement",
			"elif_clause",
			"for_statement",
			"while_statement",
			"except_clause",
			"with_statement",
			"boolean_operator",
			"conditional_expression",
			"list_comprehension",
			"dictionary_comprehension",
			"set_comprehension",
			"generator_expression",
		},
		NestingTypes: []string{
			"if_statement",
			"for_statement",
			"while_statement",
			"try_statement",
			"with_statement",
			"lambda",
			"list_comprehension",
			"dictionary_comprehension",
			"set_comprehension",
			"generator_expression",
		},
		ControlTypes:     []string{"if_statement", "for_statement", "while_statement", "with_statement", "match_statement"},
		ErrorTypes:       []string{"try_statement", "except_clause", "raise_statement"},
		DeclarationTypes: []string{"assignment"},
		Keywords: []string{
			"def", "class", "import", "from", "as", "with", "elif", "except", "raise", "pass",
			"lambda", "yield", "global", "nonlocal", "assert", "del", "async", "await",
		},
		DefinitionName: pythonDefinitionName,
		ImportPath:     pythonImportPath,
	}
}

// pythonDefinitionName reads the name field, or the assigned identifier for assignments.
func pythonDefinitionName(node *sitter.Node, source []byte) string {
	if node.Type() == "assignment" {
		left := node.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			return ""
		}
		return NodeText(left, source)
	}
	return defaultDefinitionName(node, source)
}

// pythonImportPath returns every module named by an import statement.
func pythonImportPath(node *sitter.Node, source []byte) []string {
	if node.Type() == "import_from_statement" {
		if m := node.ChildByFieldName("module_name"); m != nil {
			return []string{NodeText(m, source)}
		}
		return nil
	}
	var paths []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		switch c.Type() {
		case "dotted_name":
			paths = append(paths, NodeText(c, source))
		case "aliased_import":
			if n := c.ChildByFieldName("name"); n != nil {
				paths = append(paths, NodeText(n, source))
			}
		}
	}
	return paths
}
