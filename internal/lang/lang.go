// Package lang provides a language registry mapping file extensions to
// tree-sitter grammars and the node-type tables used to walk them.
package lang

import (
	"context"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/huangsam/codeintel/schema"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	// LineComment is the line comment prefix ("//" or "#").
	LineComment string

	// Definitions maps definition node types to the element type they produce.
	Definitions map[string]schema.ElementType

	// ImportTypes are import statement node types.
	ImportTypes []string

	// ImportCallees are plain function names whose calls load a module (require).
	ImportCallees []string

	// CallTypes are call-site node types.
	CallTypes []string

	// DecisionTypes count towards cyclomatic complexity.
	DecisionTypes []string

	// NestingTypes increase nesting depth.
	NestingTypes []string

	// ControlTypes are control structures surfaced to the miner.
	ControlTypes []string

	// ErrorTypes are error-handling constructs surfaced to the miner.
	ErrorTypes []string

	// DeclarationTypes are variable declaration statements surfaced to the miner.
	DeclarationTypes []string

	// Keywords are identifiers kept verbatim by fingerprint normalization.
	Keywords []string

	// ClassifyDefinition refines the element type of a definition node.
	// Returning false skips the node.
	ClassifyDefinition func(node *sitter.Node, source []byte, base schema.ElementType) (schema.ElementType, bool)

	// DefinitionName returns the name of a definition node.
	DefinitionName func(node *sitter.Node, source []byte) string

	// ImportPath returns the imported module path of an import node.
	ImportPath func(node *sitter.Node, source []byte) []string

	// CallTarget returns the callee expression text, whether it is a member access,
	// and the arguments node of a call-site node.
	CallTarget func(node *sitter.Node, source []byte) (callee string, member bool, args *sitter.Node)

	// IsErrorCheck reports whether a control node is really error handling.
	IsErrorCheck func(node *sitter.Node, source []byte) bool

	keywordOnce sync.Once
	keywordSet  map[string]bool
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Parse parses source with a dedicated parser. Cancellation of ctx aborts the parse.
func (l *Language) Parse(ctx context.Context, source []byte) (*sitter.Tree, error) {
	p := l.NewParser()
	defer p.Close()
	return p.ParseCtx(ctx, nil, source)
}

// IsKeyword reports whether word is kept verbatim during normalization.
func (l *Language) IsKeyword(word string) bool {
	l.keywordOnce.Do(func() {
		l.keywordSet = make(map[string]bool, len(l.Keywords)+len(commonKeywords))
		for _, k := range commonKeywords {
			l.keywordSet[k] = true
		}
		for _, k := range l.Keywords {
			l.keywordSet[k] = true
		}
	})
	return l.keywordSet[word]
}

// commonKeywords are shared literals and control words across the supported grammars.
var commonKeywords = []string{
	"if", "else", "for", "while", "do", "switch", "case", "default", "break", "continue",
	"return", "try", "catch", "finally", "throw", "in", "of", "new", "true", "false", "null",
	"nil", "None", "True", "False", "this", "self", "not", "and", "or", "is",
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var (
	extensionMap  map[string]string
	extensionOnce sync.Once
)

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[strings.ToLower(ext)]
}

// ForPath returns the language for a file path, or nil if unsupported.
func ForPath(path string) *Language {
	name := ForExtension(filepath.Ext(path))
	if name == "" {
		return nil
	}
	return Languages[name]
}

// Names returns every registered language name in sorted order.
func Names() []string {
	names := make([]string, 0, len(Languages))
	for name := range Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Allowed resolves a language for path restricted to an allow-list.
// An empty allow-list admits every registered language.
func Allowed(path string, allow []string) *Language {
	l := ForPath(path)
	if l == nil {
		return nil
	}
	if len(allow) > 0 && !slices.Contains(allow, l.Name) {
		return nil
	}
	return l
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// FirstLine returns the first line of a node's text without trailing block openers.
func FirstLine(node *sitter.Node, source []byte) string {
	text := NodeText(node, source)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "{")
	text = strings.TrimSuffix(text, ":")
	return CollapseWhitespace(text)
}

// defaultDefinitionName reads the "name" field.
func defaultDefinitionName(node *sitter.Node, source []byte) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return NodeText(n, source)
	}
	return ""
}

// memberExpressionTypes are callee node types that denote member access.
var memberExpressionTypes = map[string]bool{
	"selector_expression": true, // go
	"attribute":           true, // python
	"member_expression":   true, // javascript, typescript
	"field_expression":    true, // rust
	"scoped_identifier":   true, // rust
}

// defaultCallTarget reads the "function" and "arguments" fields.
func defaultCallTarget(node *sitter.Node, source []byte) (string, bool, *sitter.Node) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return "", false, nil
	}
	return CollapseWhitespace(NodeText(fn, source)), memberExpressionTypes[fn.Type()], node.ChildByFieldName("arguments")
}

// stringLiteralPath strips quotes from a string literal node's text.
func stringLiteralPath(node *sitter.Node, source []byte) string {
	return strings.Trim(NodeText(node, source), "\"'`")
}
