package handler

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every routed handler carries a complete swag block.
func TestRouteAnnotations(t *testing.T) {
	file, err := parser.ParseFile(token.NewFileSet(), "handler.go", nil, parser.ParseComments)
	require.NoError(t, err)

	routed := 0
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Doc == nil {
			continue
		}
		doc := fn.Doc.Text()
		if !strings.Contains(doc, "@Router") {
			continue
		}
		routed++
		for _, tag := range []string{"@Summary", "@Description", "@Tags", "@Success"} {
			assert.Contains(t, doc, tag, "%s is missing %s", fn.Name.Name, tag)
		}
	}
	assert.Equal(t, 16, routed)
}
