package lang

import (
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/huangsam/codeintel/schema"
)

// ConstructKind classifies statements surfaced to the miner.
type ConstructKind int

// All construct kinds.
const (
	ControlConstruct ConstructKind = iota
	ErrorConstruct
	DeclarationConstruct
)

// Definition is a structural element found in a syntax tree.
type Definition struct {
	Type       schema.ElementType
	Name       string
	StartLine  int
	EndLine    int
	Complexity int
	Parent     int      // Index of the enclosing definition, -1 at module level
	Tokens     []string // Normalized body tokens of callables and classes
}

// CallSite is a call expression.
type CallSite struct {
	Callee string // Full callee expression, e.g. "fmt.Println"
	Text   string // Whole call expression with collapsed whitespace
	Name   string // Last segment of the callee, e.g. "Println"
	Member bool
	Arity  int
	Line   int
	Column int
	Scope  int // Index of the enclosing definition, -1 at module level
}

// ImportSite is an imported module path.
type ImportSite struct {
	Path   string
	Text   string
	Line   int
	Column int
	Scope  int
}

// Construct is a control, error-handling or declaration statement.
type Construct struct {
	Kind   ConstructKind
	Text   string
	Line   int
	Column int
	Scope  int
}

// Extraction is everything a single walk over a syntax tree yields.
type Extraction struct {
	Definitions []Definition
	Calls       []CallSite
	Imports     []ImportSite
	Constructs  []Construct
	Complexity  int // 1 + decision points + max nesting depth
	HasError    bool
}

// Scope returns the definition at index i, or nil for module level.
func (e *Extraction) Scope(i int) *Definition {
	if i < 0 || i >= len(e.Definitions) {
		return nil
	}
	return &e.Definitions[i]
}

// frame tracks an open definition during the walk.
type frame struct {
	def          int
	decisions    int
	entryNesting int
	maxNesting   int
}

// walker carries the state of one extraction.
type walker struct {
	l       *Language
	src     []byte
	out     *Extraction
	stack   []frame
	nesting int

	decisions  int
	maxNesting int
}

// Extract walks root once and collects definitions, calls, imports, constructs and complexity.
func (l *Language) Extract(root *sitter.Node, source []byte) *Extraction {
	w := &walker{l: l, src: source, out: &Extraction{HasError: root.HasError()}}
	w.visit(root)
	w.out.Complexity = 1 + w.decisions + w.maxNesting
	return w.out
}

func (w *walker) scope() int {
	if len(w.stack) == 0 {
		return -1
	}
	return w.stack[len(w.stack)-1].def
}

func (w *walker) insideCallable() bool {
	for _, f := range w.stack {
		switch w.out.Definitions[f.def].Type {
		case schema.FunctionElement, schema.MethodElement:
			return true
		}
	}
	return false
}

func (w *walker) insideClass() bool {
	if len(w.stack) == 0 {
		return false
	}
	switch w.out.Definitions[w.stack[len(w.stack)-1].def].Type {
	case schema.ClassElement, schema.InterfaceElement:
		return true
	}
	return false
}

func (w *walker) visit(node *sitter.Node) {
	if node == nil {
		return
	}
	nodeType := node.Type()
	line := int(node.StartPoint().Row) + 1
	col := int(node.StartPoint().Column) + 1

	pushed := false
	if base, ok := w.l.Definitions[nodeType]; ok {
		pushed = w.define(node, base)
	}

	if slices.Contains(w.l.ImportTypes, nodeType) && w.l.ImportPath != nil {
		for _, p := range w.l.ImportPath(node, w.src) {
			w.addImport(p, FirstLine(node, w.src), line, col)
		}
	}

	if slices.Contains(w.l.CallTypes, nodeType) {
		w.call(node, line, col)
	}

	switch {
	case slices.Contains(w.l.ErrorTypes, nodeType):
		w.construct(ErrorConstruct, node, line, col)
	case slices.Contains(w.l.ControlTypes, nodeType):
		kind := ControlConstruct
		if w.l.IsErrorCheck != nil && w.l.IsErrorCheck(node, w.src) {
			kind = ErrorConstruct
		}
		w.construct(kind, node, line, col)
	case slices.Contains(w.l.DeclarationTypes, nodeType):
		w.construct(DeclarationConstruct, node, line, col)
	}

	if slices.Contains(w.l.DecisionTypes, nodeType) && countsAsDecision(node) {
		w.decisions++
		for i := range w.stack {
			w.stack[i].decisions++
		}
	}

	nests := slices.Contains(w.l.NestingTypes, nodeType)
	if nests {
		w.nesting++
		w.maxNesting = max(w.maxNesting, w.nesting)
		for i := range w.stack {
			w.stack[i].maxNesting = max(w.stack[i].maxNesting, w.nesting-w.stack[i].entryNesting)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		w.visit(node.Child(i))
	}

	if nests {
		w.nesting--
	}
	if pushed {
		f := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		d := &w.out.Definitions[f.def]
		switch d.Type {
		case schema.FunctionElement, schema.MethodElement, schema.ClassElement, schema.InterfaceElement:
			d.Complexity = 1 + f.decisions + f.maxNesting
		}
	}
}

// define records a definition and reports whether it opened a new scope.
func (w *walker) define(node *sitter.Node, base schema.ElementType) bool {
	typ := base
	if w.l.ClassifyDefinition != nil {
		var ok bool
		typ, ok = w.l.ClassifyDefinition(node, w.src, base)
		if !ok {
			return false
		}
	}
	if typ == schema.VariableElement && w.insideCallable() {
		return false
	}
	if typ == schema.FunctionElement && w.insideClass() {
		typ = schema.MethodElement
	}

	nameFn := w.l.DefinitionName
	if nameFn == nil {
		nameFn = defaultDefinitionName
	}
	name := nameFn(node, w.src)
	if name == "" {
		return false
	}

	d := Definition{
		Type:      typ,
		Name:      name,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Parent:    w.scope(),
	}
	switch typ {
	case schema.FunctionElement, schema.MethodElement, schema.ClassElement, schema.InterfaceElement:
		d.Tokens = NormalizeTokens(w.l, NodeText(node, w.src), false)
	}
	w.out.Definitions = append(w.out.Definitions, d)
	w.stack = append(w.stack, frame{def: len(w.out.Definitions) - 1, entryNesting: w.nesting})
	return true
}

func (w *walker) addImport(path, text string, line, col int) {
	if path == "" {
		return
	}
	w.out.Imports = append(w.out.Imports, ImportSite{Path: path, Text: text, Line: line, Column: col, Scope: w.scope()})
	w.out.Definitions = append(w.out.Definitions, Definition{
		Type:      schema.ImportElement,
		Name:      path,
		StartLine: line,
		EndLine:   line,
		Parent:    w.scope(),
	})
}

func (w *walker) call(node *sitter.Node, line, col int) {
	target := w.l.CallTarget
	if target == nil {
		target = defaultCallTarget
	}
	callee, member, args := target(node, w.src)
	if callee == "" {
		return
	}

	arity := 0
	var firstArg *sitter.Node
	if args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			c := args.NamedChild(i)
			if c.Type() == "comment" {
				continue
			}
			if firstArg == nil {
				firstArg = c
			}
			arity++
		}
	}

	if !member && slices.Contains(w.l.ImportCallees, callee) && firstArg != nil && isStringNode(firstArg) {
		w.addImport(stringLiteralPath(firstArg, w.src), FirstLine(node, w.src), line, col)
		return
	}

	w.out.Calls = append(w.out.Calls, CallSite{
		Callee: callee,
		Text:   CollapseWhitespace(NodeText(node, w.src)),
		Name:   lastSegment(callee),
		Member: member,
		Arity:  arity,
		Line:   line,
		Column: col,
		Scope:  w.scope(),
	})
}

func (w *walker) construct(kind ConstructKind, node *sitter.Node, line, col int) {
	text := FirstLine(node, w.src)
	if text == "" {
		return
	}
	w.out.Constructs = append(w.out.Constructs, Construct{Kind: kind, Text: text, Line: line, Column: col, Scope: w.scope()})
}

// countsAsDecision filters binary expressions down to short-circuit boolean operators.
func countsAsDecision(node *sitter.Node) bool {
	switch node.Type() {
	case "binary_expression", "boolean_operator", "binary":
	default:
		return true
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		switch node.Child(i).Type() {
		case "&&", "||", "and", "or":
			return true
		}
	}
	return false
}

func isStringNode(n *sitter.Node) bool {
	return strings.Contains(n.Type(), "string")
}

// lastSegment returns the final identifier of a dotted or scoped callee.
func lastSegment(callee string) string {
	i := strings.LastIndexAny(callee, ".:>")
	if i < 0 {
		return callee
	}
	return callee[i+1:]
}
