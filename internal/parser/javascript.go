package parser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codemaphq/codemap/internal/store"
)

// walkJS covers javascript, typescript, and tsx; the three grammars
// share node names for everything extracted here except the class
// heritage shape, which jsHeritage handles both ways.
func (e *extraction) walkJS(n *sitter.Node, scope []string, enclosing int) {
	switch n.Type() {
	case "import_statement":
		line, _ := lineRange(n)
		e.addRef(enclosing, stripQuotes(childText(n, "source", e.src)), store.EdgeImports, line)
		return

	case "function_declaration", "generator_function_declaration":
		name := childText(n, "name", e.src)
		if name == "" {
			return
		}
		idx := e.addSymbol(joinScope(scope, name), name, store.SymbolFunction, n)
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkJSChildren(body, append(scope, name), idx)
		}
		return

	case "variable_declarator":
		// const f = () => {} and friends count as functions.
		name := childText(n, "name", e.src)
		value := n.ChildByFieldName("value")
		if name == "" || value == nil || !isJSFunctionValue(value.Type()) {
			break
		}
		idx := e.addSymbol(joinScope(scope, name), name, store.SymbolFunction, n)
		e.walkJSChildren(value, append(scope, name), idx)
		return

	case "class_declaration":
		name := childText(n, "name", e.src)
		if name == "" {
			return
		}
		idx := e.addSymbol(joinScope(scope, name), name, store.SymbolClass, n)
		e.jsHeritage(n, idx)
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkJSChildren(body, append(scope, name), idx)
		}
		return

	case "method_definition":
		name := childText(n, "name", e.src)
		if name == "" {
			return
		}
		idx := e.addSymbol(joinScope(scope, name), name, store.SymbolMethod, n)
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkJSChildren(body, append(scope, name), idx)
		}
		return

	case "interface_declaration":
		if name := childText(n, "name", e.src); name != "" {
			e.addSymbol(joinScope(scope, name), name, store.SymbolInterface, n)
		}
		return

	case "type_alias_declaration", "enum_declaration":
		if name := childText(n, "name", e.src); name != "" {
			e.addSymbol(joinScope(scope, name), name, store.SymbolTypedef, n)
		}
		return

	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil {
			line := int(n.StartPoint().Row) + 1
			e.addRef(enclosing, jsCallee(fn, e.src), store.EdgeCalls, line)
		}

	case "new_expression":
		if ctor := n.ChildByFieldName("constructor"); ctor != nil {
			line := int(n.StartPoint().Row) + 1
			e.addRef(enclosing, jsCallee(ctor, e.src), store.EdgeCalls, line)
		}
	}

	e.walkJSChildren(n, scope, enclosing)
}

func (e *extraction) walkJSChildren(n *sitter.Node, scope []string, enclosing int) {
	for i := 0; i < int(n.ChildCount()); i++ {
		e.walkJS(n.Child(i), scope, enclosing)
	}
}

// jsHeritage records extends/implements edges. The typescript grammar
// wraps them in extends_clause/implements_clause; plain javascript puts
// the superclass expression directly under class_heritage.
func (e *extraction) jsHeritage(class *sitter.Node, idx int) {
	line, _ := lineRange(class)
	for i := 0; i < int(class.NamedChildCount()); i++ {
		h := class.NamedChild(i)
		if h.Type() != "class_heritage" {
			continue
		}
		sawClause := false
		eachChild(h, func(c *sitter.Node) {
			switch c.Type() {
			case "extends_clause":
				sawClause = true
				eachChild(c, func(t *sitter.Node) {
					e.addRef(idx, jsCallee(t, e.src), store.EdgeInherits, line)
				})
			case "implements_clause":
				sawClause = true
				eachChild(c, func(t *sitter.Node) {
					e.addRef(idx, jsCallee(t, e.src), store.EdgeImplements, line)
				})
			}
		})
		if !sawClause && h.NamedChildCount() > 0 {
			e.addRef(idx, jsCallee(h.NamedChild(0), e.src), store.EdgeInherits, line)
		}
	}
}

func isJSFunctionValue(nodeType string) bool {
	switch nodeType {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}

func jsCallee(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "identifier", "type_identifier", "property_identifier":
		return n.Content(src)
	case "member_expression":
		return childText(n, "property", src)
	case "generic_type":
		if name := n.ChildByFieldName("name"); name != nil {
			return jsCallee(name, src)
		}
	}
	return ""
}
