package parser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codemaphq/codemap/internal/store"
)

// walkJava extracts classes, interfaces, enums, methods, constructors,
// imports, and the extends/implements edges.
func (e *extraction) walkJava(n *sitter.Node, scope []string, enclosing int) {
	switch n.Type() {
	case "import_declaration":
		line, _ := lineRange(n)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "scoped_identifier" || c.Type() == "identifier" {
				e.addRef(enclosing, c.Content(e.src), store.EdgeImports, line)
				break
			}
		}
		return

	case "class_declaration":
		name := childText(n, "name", e.src)
		if name == "" {
			return
		}
		idx := e.addSymbol(joinScope(scope, name), name, store.SymbolClass, n)
		line, _ := lineRange(n)
		if super := n.ChildByFieldName("superclass"); super != nil {
			eachChild(super, func(t *sitter.Node) {
				e.addRef(idx, javaTypeName(t, e.src), store.EdgeInherits, line)
			})
		}
		if ifaces := n.ChildByFieldName("interfaces"); ifaces != nil {
			eachChild(ifaces, func(list *sitter.Node) {
				if list.Type() != "type_list" {
					return
				}
				eachChild(list, func(t *sitter.Node) {
					e.addRef(idx, javaTypeName(t, e.src), store.EdgeImplements, line)
				})
			})
		}
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkJavaChildren(body, append(scope, name), idx)
		}
		return

	case "interface_declaration":
		name := childText(n, "name", e.src)
		if name == "" {
			return
		}
		idx := e.addSymbol(joinScope(scope, name), name, store.SymbolInterface, n)
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkJavaChildren(body, append(scope, name), idx)
		}
		return

	case "enum_declaration":
		name := childText(n, "name", e.src)
		if name == "" {
			return
		}
		idx := e.addSymbol(joinScope(scope, name), name, store.SymbolClass, n)
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkJavaChildren(body, append(scope, name), idx)
		}
		return

	case "method_declaration", "constructor_declaration":
		name := childText(n, "name", e.src)
		if name == "" {
			return
		}
		idx := e.addSymbol(joinScope(scope, name), name, store.SymbolMethod, n)
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkJavaChildren(body, append(scope, name), idx)
		}
		return

	case "method_invocation":
		line := int(n.StartPoint().Row) + 1
		e.addRef(enclosing, childText(n, "name", e.src), store.EdgeCalls, line)

	case "object_creation_expression":
		if t := n.ChildByFieldName("type"); t != nil {
			line := int(n.StartPoint().Row) + 1
			e.addRef(enclosing, javaTypeName(t, e.src), store.EdgeCalls, line)
		}
	}

	e.walkJavaChildren(n, scope, enclosing)
}

func (e *extraction) walkJavaChildren(n *sitter.Node, scope []string, enclosing int) {
	for i := 0; i < int(n.ChildCount()); i++ {
		e.walkJava(n.Child(i), scope, enclosing)
	}
}

// javaTypeName reduces a type reference to its simple name: `List<T>`
// yields `List`, `java.util.Map` yields `Map`.
func javaTypeName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "type_identifier", "identifier":
		return n.Content(src)
	case "generic_type":
		if n.NamedChildCount() > 0 {
			return javaTypeName(n.NamedChild(0), src)
		}
	case "scoped_type_identifier", "scoped_identifier":
		if n.NamedChildCount() > 0 {
			return javaTypeName(n.NamedChild(int(n.NamedChildCount())-1), src)
		}
	}
	return ""
}
