package parser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codemaphq/codemap/internal/store"
)

// walkPython extracts def/class declarations, imports, base classes, and
// calls. Methods get the enclosing class name as FQN prefix; nested
// scopes join with dots.
func (e *extraction) walkPython(n *sitter.Node, scope []string, enclosing int) {
	switch n.Type() {
	case "class_definition":
		name := childText(n, "name", e.src)
		if name == "" {
			return
		}
		idx := e.addSymbol(joinScope(scope, name), name, store.SymbolClass, n)
		if bases := n.ChildByFieldName("superclasses"); bases != nil {
			line, _ := lineRange(n)
			eachChild(bases, func(base *sitter.Node) {
				e.addRef(idx, pythonCallee(base, e.src), store.EdgeInherits, line)
			})
		}
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkPythonChildren(body, append(scope, name), idx)
		}
		return

	case "function_definition":
		name := childText(n, "name", e.src)
		if name == "" {
			return
		}
		kind := store.SymbolFunction
		if enclosing >= 0 && e.symbols[enclosing].Kind == store.SymbolClass {
			kind = store.SymbolMethod
		}
		idx := e.addSymbol(joinScope(scope, name), name, kind, n)
		if body := n.ChildByFieldName("body"); body != nil {
			e.walkPythonChildren(body, append(scope, name), idx)
		}
		return

	case "import_statement":
		line, _ := lineRange(n)
		eachChild(n, func(c *sitter.Node) {
			switch c.Type() {
			case "dotted_name":
				e.addRef(enclosing, c.Content(e.src), store.EdgeImports, line)
			case "aliased_import":
				e.addRef(enclosing, childText(c, "name", e.src), store.EdgeImports, line)
			}
		})
		return

	case "import_from_statement":
		line, _ := lineRange(n)
		e.addRef(enclosing, childText(n, "module_name", e.src), store.EdgeImports, line)
		return

	case "call":
		if fn := n.ChildByFieldName("function"); fn != nil {
			line := int(n.StartPoint().Row) + 1
			e.addRef(enclosing, pythonCallee(fn, e.src), store.EdgeCalls, line)
		}
		// Arguments can contain lambdas and further calls.
	}

	e.walkPythonChildren(n, scope, enclosing)
}

func (e *extraction) walkPythonChildren(n *sitter.Node, scope []string, enclosing int) {
	for i := 0; i < int(n.ChildCount()); i++ {
		e.walkPython(n.Child(i), scope, enclosing)
	}
}

// pythonCallee reduces a call target to a bare name: `foo` stays `foo`,
// `obj.method` becomes `method`.
func pythonCallee(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "identifier":
		return n.Content(src)
	case "attribute":
		return childText(n, "attribute", src)
	}
	return ""
}
