package lang

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huangsam/codeintel/schema"
)

// extract parses src with the named language and walks it once.
func extract(t *testing.T, name, src string) *Extraction {
	t.Helper()
	l := Languages[name]
	require.NotNil(t, l)
	tree, err := l.Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return l.Extract(tree.RootNode(), []byte(src))
}

func findDefinition(e *Extraction, name string) *Definition {
	for i := range e.Definitions {
		if e.Definitions[i].Name == name {
			return &e.Definitions[i]
		}
	}
	return nil
}

const goSource = `package sample

import (
	"fmt"
	"os"
)

type Store struct {
	path string
}

type Reader interface {
	Read() error
}

type ID string

var defaultPath = "/tmp"

func Bounded(x int) int {
	if x > 0 && x < 10 {
		for i := 0; i < x; i++ {
			fmt.Println(i)
		}
	}
	return x
}

func (s *Store) Open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return nil
}
`

func TestExtractGo(t *testing.T) {
	e := extract(t, "go", goSource)
	assert.False(t, e.HasError)

	tests := []struct {
		name string
		typ  schema.ElementType
	}{
		{"fmt", schema.ImportElement},
		{"os", schema.ImportElement},
		{"Store", schema.ClassElement},
		{"Reader", schema.InterfaceElement},
		{"defaultPath", schema.VariableElement},
		{"Bounded", schema.FunctionElement},
		{"Open", schema.MethodElement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := findDefinition(e, tt.name)
			require.NotNil(t, d)
			assert.Equal(t, tt.typ, d.Type)
		})
	}
	assert.Nil(t, findDefinition(e, "ID"), "named non-struct types are skipped")
	assert.Nil(t, findDefinition(e, "f"), "locals are not elements")

	bounded := findDefinition(e, "Bounded")
	// 3 decisions (if, &&, for) and nesting depth 2
	assert.Equal(t, 6, bounded.Complexity)
	assert.NotEmpty(t, bounded.Tokens)
	assert.GreaterOrEqual(t, e.Complexity, bounded.Complexity)

	assert.Len(t, e.Imports, 2)
	assert.Equal(t, "fmt", e.Imports[0].Path)

	var println *CallSite
	for i := range e.Calls {
		if e.Calls[i].Callee == "fmt.Println" {
			println = &e.Calls[i]
		}
	}
	require.NotNil(t, println)
	assert.Equal(t, "Println", println.Name)
	assert.True(t, println.Member)
	assert.Equal(t, 1, println.Arity)
	assert.Equal(t, "Bounded", e.Scope(println.Scope).Name)

	var errChecks int
	for _, c := range e.Constructs {
		if c.Kind == ErrorConstruct {
			errChecks++
			assert.Equal(t, "if err != nil", c.Text)
			assert.Equal(t, "Open", e.Scope(c.Scope).Name)
		}
	}
	assert.Equal(t, 1, errChecks)
}

func TestExtractPython(t *testing.T) {
	src := `import os
from collections import defaultdict

TIMEOUT = 30

class Service:
    def run(self, items):
        try:
            for item in items:
                self.handle(item)
        except ValueError:
            raise

def helper():
    return os.getenv("HOME")

foo()
`
	e := extract(t, "python", src)

	assert.Equal(t, schema.ClassElement, findDefinition(e, "Service").Type)
	assert.Equal(t, schema.MethodElement, findDefinition(e, "run").Type)
	assert.Equal(t, schema.FunctionElement, findDefinition(e, "helper").Type)
	assert.Equal(t, schema.VariableElement, findDefinition(e, "TIMEOUT").Type)

	paths := make([]string, 0, len(e.Imports))
	for _, imp := range e.Imports {
		paths = append(paths, imp.Path)
	}
	assert.Equal(t, []string{"os", "collections"}, paths)

	var moduleCall *CallSite
	for i := range e.Calls {
		if e.Calls[i].Callee == "foo" {
			moduleCall = &e.Calls[i]
		}
	}
	require.NotNil(t, moduleCall)
	assert.Equal(t, -1, moduleCall.Scope)
	assert.Nil(t, e.Scope(moduleCall.Scope))
	assert.Equal(t, 17, moduleCall.Line)

	kinds := map[ConstructKind]int{}
	for _, c := range e.Constructs {
		kinds[c.Kind]++
	}
	assert.GreaterOrEqual(t, kinds[ErrorConstruct], 2)
	assert.GreaterOrEqual(t, kinds[ControlConstruct], 1)
	assert.GreaterOrEqual(t, findDefinition(e, "run").Complexity, 3)
}

func TestExtractJavaScript(t *testing.T) {
	src := `const fs = require("fs");
import path from "path";

const load = (name) => fs.readFileSync(path.join(__dirname, name));

class Loader {
  read(name) {
    try {
      return load(name);
    } catch (e) {
      throw e;
    }
  }
}
`
	e := extract(t, "javascript", src)
	assert.Equal(t, schema.FunctionElement, findDefinition(e, "load").Type)
	assert.Equal(t, schema.ClassElement, findDefinition(e, "Loader").Type)
	assert.Equal(t, schema.MethodElement, findDefinition(e, "read").Type)
	assert.Equal(t, schema.VariableElement, findDefinition(e, "fs").Type)

	paths := map[string]bool{}
	for _, imp := range e.Imports {
		paths[imp.Path] = true
	}
	assert.True(t, paths["fs"])
	assert.True(t, paths["path"])
	for _, c := range e.Calls {
		assert.NotEqual(t, "require", c.Callee)
	}
}

func TestExtractComplexityFloor(t *testing.T) {
	for name, src := range map[string]string{
		"go":   "package empty\n",
		"rust": "fn noop() {}\n",
		"ruby": "puts 1\n",
		"java": "class A {}\n",
	} {
		t.Run(name, func(t *testing.T) {
			e := extract(t, name, src)
			assert.GreaterOrEqual(t, e.Complexity, 1)
			for _, d := range e.Definitions {
				if d.Type != schema.VariableElement && d.Type != schema.ImportElement {
					assert.GreaterOrEqual(t, d.Complexity, 1)
				}
			}
		})
	}
}

func TestExtractRubyAndRust(t *testing.T) {
	rb := extract(t, "ruby", "require \"json\"\n\nclass Parser\n  def parse(text)\n    JSON.parse(text)\n  end\nend\n")
	assert.Equal(t, schema.ClassElement, findDefinition(rb, "Parser").Type)
	assert.Equal(t, schema.MethodElement, findDefinition(rb, "parse").Type)
	require.Len(t, rb.Imports, 1)
	assert.Equal(t, "json", rb.Imports[0].Path)

	rs := extract(t, "rust", "use std::io;\n\ntrait Shape {}\n\nfn main() {\n    println!(\"hi\");\n}\n")
	assert.Equal(t, schema.InterfaceElement, findDefinition(rs, "Shape").Type)
	assert.Equal(t, schema.FunctionElement, findDefinition(rs, "main").Type)
	require.Len(t, rs.Imports, 1)
	assert.Equal(t, "std::io", rs.Imports[0].Path)
	require.NotEmpty(t, rs.Calls)
	assert.Equal(t, "println!", rs.Calls[0].Callee)
}
