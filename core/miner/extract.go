package miner

import (
	"fmt"
	"regexp"

	"github.com/huangsam/codeintel/internal/lang"
	"github.com/huangsam/codeintel/schema"
)

// maxFragmentLength bounds the source text a snippet may carry.
const maxFragmentLength = 240

// configRe marks fragments that read configuration or the environment.
var configRe = regexp.MustCompile(`(?i)(getenv|environ|process\.env|\bconfig|settings|viper\.|dotenv|\bflag\.|argparse|ENV\[)`)

// occurrence is one fragment observed at a source location.
type occurrence struct {
	typ         schema.SnippetType
	fingerprint string
	code        string
	context     string
	line        int
	column      int
}

// key is the source-location key recorded in CodeSnippet.Sources.
func (o occurrence) key() string {
	return fmt.Sprintf("%d:%d", o.line, o.column)
}

// collectOccurrences classifies everything an extraction surfaced into snippet occurrences.
func (m *Miner) collectOccurrences(l *lang.Language, filePath string, ext *lang.Extraction) []occurrence {
	contextOf := func(scope int) string {
		if d := ext.Scope(scope); d != nil {
			return schema.ContextFingerprint(l.Name, d.Type, d.Name)
		}
		return schema.ModuleContext(l.Name, filePath)
	}

	var out []occurrence
	add := func(t schema.SnippetType, fingerprint, code string, scope, line, col int) {
		if !m.cfg.AllowsType(t) || fingerprint == "" || len(code) > maxFragmentLength {
			return
		}
		out = append(out, occurrence{
			typ:         t,
			fingerprint: fingerprint,
			code:        code,
			context:     contextOf(scope),
			line:        line,
			column:      col,
		})
	}

	for _, imp := range ext.Imports {
		add(schema.ImportStatementSnippet, "import "+imp.Path, imp.Text, imp.Scope, imp.Line, imp.Column)
	}

	for _, c := range ext.Calls {
		t := schema.FunctionCallSnippet
		switch {
		case configRe.MatchString(c.Callee):
			t = schema.ConfigurationSnippet
		case c.Member:
			t = schema.APIUsageSnippet
		}
		add(t, lang.Normalize(l, c.Text, true), c.Text, c.Scope, c.Line, c.Column)
	}

	for _, c := range ext.Constructs {
		var t schema.SnippetType
		switch c.Kind {
		case lang.ErrorConstruct:
			t = schema.ErrorHandlingSnippet
		case lang.ControlConstruct:
			t = schema.ControlStructureSnippet
		case lang.DeclarationConstruct:
			t = schema.VariableDeclarationSnippet
			if configRe.MatchString(c.Text) {
				t = schema.ConfigurationSnippet
			}
		}
		add(t, lang.Normalize(l, c.Text, true), c.Text, c.Scope, c.Line, c.Column)
	}
	return out
}
