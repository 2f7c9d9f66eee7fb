package parser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codemaphq/codemap/internal/store"
)

// walkC extracts function definitions, named structs, typedefs,
// includes, and call expressions.
func (e *extraction) walkC(n *sitter.Node, enclosing int) {
	switch n.Type() {
	case "preproc_include":
		line, _ := lineRange(n)
		e.addRef(enclosing, stripQuotes(childText(n, "path", e.src)), store.EdgeImports, line)
		return

	case "function_definition":
		name := cDeclaratorName(n.ChildByFieldName("declarator"), e.src)
		if name == "" {
			return
		}
		idx := e.addSymbol(name, name, store.SymbolFunction, n)
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkCChildren(body, idx)
		}
		return

	case "struct_specifier":
		// Only definitions (with a body); bare references to `struct foo`
		// show up all over and are not declarations.
		name := childText(n, "name", e.src)
		if name != "" && n.ChildByFieldName("body") != nil {
			e.addSymbol(name, name, store.SymbolStruct, n)
		}

	case "type_definition":
		if d := n.ChildByFieldName("declarator"); d != nil {
			if name := cDeclaratorName(d, e.src); name != "" {
				e.addSymbol(name, name, store.SymbolTypedef, n)
			}
		}

	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil {
			line := int(n.StartPoint().Row) + 1
			name := ""
			if fn.Type() == "identifier" {
				name = fn.Content(e.src)
			} else if fn.Type() == "field_expression" {
				name = childText(fn, "field", e.src)
			}
			e.addRef(enclosing, name, store.EdgeCalls, line)
		}
	}

	e.walkCChildren(n, enclosing)
}

func (e *extraction) walkCChildren(n *sitter.Node, enclosing int) {
	for i := 0; i < int(n.ChildCount()); i++ {
		e.walkC(n.Child(i), enclosing)
	}
}

// cDeclaratorName unwraps pointer/function declarators down to the
// declared identifier.
func cDeclaratorName(n *sitter.Node, src []byte) string {
	for n != nil {
		switch n.Type() {
		case "identifier", "type_identifier":
			return n.Content(src)
		case "pointer_declarator", "function_declarator", "array_declarator", "parenthesized_declarator":
			n = n.ChildByFieldName("declarator")
		default:
			return ""
		}
	}
	return ""
}
