package lang

import (
	"regexp"
	"strings"
)

// MaxTokens caps how many normalized tokens are kept per body.
const MaxTokens = 2000

// Placeholders substituted during normalization.
const (
	StringPlaceholder     = "$str"
	NumberPlaceholder     = "$num"
	IdentifierPlaceholder = "$id"
)

var (
	tokenRe = regexp.MustCompile(
		`"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'|` + "`[^`]*`" +
			`|\d[\w.]*` +
			`|[A-Za-z_$][\w$]*` +
			`|:=|==|!=|<=|>=|&&|\|\||->|=>|::|\+\+|--|\S`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	slashCommentRe = regexp.MustCompile(`(?m)//.*$`)
	hashCommentRe  = regexp.MustCompile(`(?m)#.*$`)
)

// StripComments removes comments for the language's comment syntax.
func StripComments(l *Language, text string) string {
	if l != nil && l.LineComment == "#" {
		return hashCommentRe.ReplaceAllString(text, "")
	}
	text = blockCommentRe.ReplaceAllString(text, "")
	return slashCommentRe.ReplaceAllString(text, "")
}

// Tokenize splits source text into coarse lexical tokens.
func Tokenize(text string) []string {
	return tokenRe.FindAllString(text, -1)
}

// NormalizeTokens tokenizes text and replaces literals with placeholders.
// When abstractIdentifiers is set, plain identifiers also collapse to a placeholder,
// except keywords, called names and member names.
func NormalizeTokens(l *Language, text string, abstractIdentifiers bool) []string {
	raw := Tokenize(StripComments(l, text))
	if len(raw) > MaxTokens {
		raw = raw[:MaxTokens]
	}
	out := make([]string, len(raw))
	for i, tok := range raw {
		switch {
		case isStringToken(tok):
			out[i] = StringPlaceholder
		case tok[0] >= '0' && tok[0] <= '9':
			out[i] = NumberPlaceholder
		case abstractIdentifiers && isIdentifier(tok) && !keepIdentifier(l, raw, i):
			out[i] = IdentifierPlaceholder
		default:
			out[i] = tok
		}
	}
	return out
}

// Normalize returns the space-joined normalized form of text.
func Normalize(l *Language, text string, abstractIdentifiers bool) string {
	return strings.Join(NormalizeTokens(l, text, abstractIdentifiers), " ")
}

func keepIdentifier(l *Language, raw []string, i int) bool {
	tok := raw[i]
	if l != nil && l.IsKeyword(tok) {
		return true
	}
	if i+1 < len(raw) && (raw[i+1] == "(" || raw[i+1] == "." || raw[i+1] == "::") {
		return true
	}
	if i > 0 && (raw[i-1] == "." || raw[i-1] == "::" || raw[i-1] == "->") {
		return true
	}
	// Uppercase names are types or constants in every supported language
	return tok[0] >= 'A' && tok[0] <= 'Z'
}

func isStringToken(tok string) bool {
	switch tok[0] {
	case '"', '\'', '`':
		return len(tok) > 1
	}
	return false
}

func isIdentifier(tok string) bool {
	c := tok[0]
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
