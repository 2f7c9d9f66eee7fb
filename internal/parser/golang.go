package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codemaphq/codemap/internal/store"
)

// walkGo extracts functions, methods (FQN "Receiver.Name"), type
// declarations, imports, and calls.
func (e *extraction) walkGo(n *sitter.Node, enclosing int) {
	switch n.Type() {
	case "function_declaration":
		name := childText(n, "name", e.src)
		if name == "" {
			return
		}
		idx := e.addSymbol(name, name, store.SymbolFunction, n)
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkGo(body, idx)
		}
		return

	case "method_declaration":
		name := childText(n, "name", e.src)
		if name == "" {
			return
		}
		fqn := name
		if recv := goReceiverType(n, e.src); recv != "" {
			fqn = recv + "." + name
		}
		idx := e.addSymbol(fqn, name, store.SymbolMethod, n)
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkGo(body, idx)
		}
		return

	case "type_declaration":
		eachChild(n, func(spec *sitter.Node) {
			if spec.Type() != "type_spec" {
				return
			}
			name := childText(spec, "name", e.src)
			if name == "" {
				return
			}
			kind := store.SymbolTypedef
			if t := spec.ChildByFieldName("type"); t != nil {
				switch t.Type() {
				case "struct_type":
					kind = store.SymbolStruct
				case "interface_type":
					kind = store.SymbolInterface
				}
			}
			e.addSymbol(name, name, kind, n)
		})
		return

	case "import_spec":
		line, _ := lineRange(n)
		e.addRef(enclosing, stripQuotes(childText(n, "path", e.src)), store.EdgeImports, line)
		return

	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil {
			line := int(n.StartPoint().Row) + 1
			e.addRef(enclosing, goCallee(fn, e.src), store.EdgeCalls, line)
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		e.walkGo(n.Child(i), enclosing)
	}
}

// goReceiverType pulls the bare receiver type name, dropping pointers
// and type parameters: `(s *Server[T])` yields `Server`.
func goReceiverType(n *sitter.Node, src []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil || recv.NamedChildCount() == 0 {
		return ""
	}
	decl := recv.NamedChild(0)
	t := decl.ChildByFieldName("type")
	if t == nil {
		return ""
	}
	name := strings.TrimPrefix(t.Content(src), "*")
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}

func goCallee(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "identifier":
		return n.Content(src)
	case "selector_expression":
		return childText(n, "field", src)
	case "parenthesized_expression":
		if n.NamedChildCount() > 0 {
			return goCallee(n.NamedChild(0), src)
		}
	}
	return ""
}
