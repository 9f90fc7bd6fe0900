package analyzer

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/huangsam/codeintel/internal/lang"
	"github.com/huangsam/codeintel/schema"
)

// Prefixes of unresolved edge targets inside a single FileAnalysis.
// The workspace pass rewrites them to module and element ids when it can.
const (
	importTargetPrefix = "import:"
	symbolTargetPrefix = "symbol:"
)

// ElementID returns the deterministic id of an element.
func ElementID(filePath string, startLine int, typ schema.ElementType, name string) string {
	return fmt.Sprintf("%s:%d:%s:%s", filePath, startLine, typ, name)
}

// isCallable reports whether elements of this type have a body worth comparing.
func isCallable(t schema.ElementType) bool {
	return t == schema.FunctionElement || t == schema.MethodElement
}

// buildFileAnalysis converts one extraction into a FileAnalysis.
func buildFileAnalysis(l *lang.Language, display string, src []byte, ext *lang.Extraction) *schema.FileAnalysis {
	fa := &schema.FileAnalysis{
		FilePath:        display,
		Language:        l.Name,
		Elements:        make([]schema.CodeElement, 0, len(ext.Definitions)),
		DependencyEdges: []schema.DependencyEdge{},
		ComplexityScore: max(1, ext.Complexity),
		LineCount:       countLines(src),
		AnalyzedAt:      time.Now(),
	}

	ids := make([]string, len(ext.Definitions))
	localNames := make(map[string]int)
	for i, d := range ext.Definitions {
		ids[i] = ElementID(display, d.StartLine, d.Type, d.Name)
		el := schema.CodeElement{
			ID:         ids[i],
			Type:       d.Type,
			Name:       d.Name,
			FilePath:   display,
			StartLine:  d.StartLine,
			EndLine:    d.EndLine,
			Language:   l.Name,
			Complexity: d.Complexity,
		}
		if isCallable(d.Type) {
			el.Normalized = strings.Join(d.Tokens, " ")
		}
		switch d.Type {
		case schema.FunctionElement, schema.MethodElement, schema.ClassElement:
			if _, seen := localNames[d.Name]; seen {
				localNames[d.Name] = -1 // ambiguous
			} else {
				localNames[d.Name] = i
			}
		}
		fa.Elements = append(fa.Elements, el)
	}

	moduleID := fa.ModuleID()
	scopeID := func(i int) string {
		if i < 0 || i >= len(ids) {
			return moduleID
		}
		return ids[i]
	}

	for _, imp := range ext.Imports {
		fa.DependencyEdges = append(fa.DependencyEdges, schema.DependencyEdge{
			From: scopeID(imp.Scope),
			To:   importTargetPrefix + imp.Path,
			Kind: schema.ImportEdge,
			Line: imp.Line,
		})
	}

	for _, c := range ext.Calls {
		fa.References = append(fa.References, schema.Reference{Name: c.Name, Line: c.Line})
		to := symbolTargetPrefix + c.Name
		if idx, ok := localNames[c.Name]; ok && idx >= 0 && idx != c.Scope {
			to = ids[idx]
			fa.Elements[idx].ReferenceCount++
		}
		fa.DependencyEdges = append(fa.DependencyEdges, schema.DependencyEdge{
			From: scopeID(c.Scope),
			To:   to,
			Kind: schema.CallEdge,
			Line: c.Line,
		})
	}
	return fa
}

// countLines counts lines, including a final line without a newline.
func countLines(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := bytes.Count(src, []byte{'\n'})
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}

// firstErrorLine finds the first ERROR or missing node, depth first.
func firstErrorLine(node *sitter.Node) (int, bool) {
	if node == nil || !node.HasError() {
		return 0, false
	}
	if node.Type() == "ERROR" || node.IsMissing() {
		return int(node.StartPoint().Row) + 1, true
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if line, ok := firstErrorLine(node.Child(i)); ok {
			return line, true
		}
	}
	return int(node.StartPoint().Row) + 1, true
}
