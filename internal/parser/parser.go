// Package parser turns source files into symbols, outgoing references,
// and retrievable chunks. Tree-sitter does the heavy lifting for the
// grammar-backed languages; SQL files go through a line-oriented
// extractor since no grammar is bundled.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	cmerrors "github.com/codemaphq/codemap/internal/errors"
	"github.com/codemaphq/codemap/internal/store"
)

// Ref is one outgoing reference recorded at parse time. FromIdx indexes
// into Result.Symbols; -1 means file scope (imports outside any symbol).
// The target is a bare name; resolving it to a symbol id is the
// indexer's job.
type Ref struct {
	FromIdx int
	ToName  string
	Type    store.EdgeType
	Line    int
}

// Result is the extraction for one file.
type Result struct {
	Symbols []store.Symbol
	Refs    []Ref
}

// Parser extracts symbols and references. Tree-sitter parsers are not
// goroutine-safe, so each language keeps a pool; one Parser is shared
// by all workers.
type Parser struct {
	logger *slog.Logger
	pools  map[string]*sync.Pool
}

var grammars = map[string]func() *sitter.Language{
	"python":     python.GetLanguage,
	"javascript": javascript.GetLanguage,
	"typescript": typescript.GetLanguage,
	"tsx":        tsx.GetLanguage,
	"go":         golang.GetLanguage,
	"java":       java.GetLanguage,
	"c":          c.GetLanguage,
}

// New creates a Parser with pools for every supported grammar.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	pools := make(map[string]*sync.Pool, len(grammars))
	for lang, get := range grammars {
		get := get
		pools[lang] = &sync.Pool{New: func() any {
			p := sitter.NewParser()
			p.SetLanguage(get())
			return p
		}}
	}
	return &Parser{logger: logger, pools: pools}
}

// Supported reports whether the language has an extractor.
func (p *Parser) Supported(language string) bool {
	if language == "sql" {
		return true
	}
	_, ok := p.pools[language]
	return ok
}

// Parse extracts symbols and references from one file.
func (p *Parser) Parse(ctx context.Context, path, language string, content []byte) (*Result, error) {
	if language == "sql" {
		return extractSQL(content), nil
	}

	pool, ok := p.pools[language]
	if !ok {
		return nil, cmerrors.ParseFailure(path, fmt.Errorf("unsupported language %q", language))
	}
	tsParser := pool.Get().(*sitter.Parser)
	defer pool.Put(tsParser)

	tree, err := tsParser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, cmerrors.ParseFailure(path, err)
	}
	if tree == nil {
		return nil, cmerrors.ParseFailure(path, fmt.Errorf("nil parse tree"))
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		// Partial extraction still proceeds; tree-sitter recovers around
		// ERROR nodes and most of the file is usually intact.
		p.logger.Warn("parse errors in file", "path", path, "language", language)
	}

	e := &extraction{src: content, language: language}
	switch language {
	case "python":
		e.walkPython(root, nil, -1)
	case "javascript", "typescript", "tsx":
		e.walkJS(root, nil, -1)
	case "go":
		e.walkGo(root, -1)
	case "java":
		e.walkJava(root, nil, -1)
	case "c":
		e.walkC(root, -1)
	}
	return &Result{Symbols: e.symbols, Refs: e.refs}, nil
}

// extraction accumulates symbols and refs during one walk.
type extraction struct {
	src      []byte
	language string
	symbols  []store.Symbol
	refs     []Ref
}

func (e *extraction) addSymbol(fqn, simple string, kind store.SymbolKind, n *sitter.Node) int {
	start, end := lineRange(n)
	e.symbols = append(e.symbols, store.Symbol{
		FQN:        fqn,
		SimpleName: simple,
		Kind:       kind,
		StartLine:  start,
		EndLine:    end,
		Signature:  signatureOf(n, e.src),
		Language:   e.language,
	})
	return len(e.symbols) - 1
}

func (e *extraction) addRef(from int, toName string, t store.EdgeType, line int) {
	if toName == "" {
		return
	}
	e.refs = append(e.refs, Ref{FromIdx: from, ToName: toName, Type: t, Line: line})
}

func lineRange(n *sitter.Node) (int, int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}

// signatureOf is the declaration's first source line, trimmed.
func signatureOf(n *sitter.Node, src []byte) string {
	text := n.Content(src)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimRight(strings.TrimSpace(text), "{:")
}

func childText(n *sitter.Node, field string, src []byte) string {
	c := n.ChildByFieldName(field)
	if c == nil {
		return ""
	}
	return c.Content(src)
}

func joinScope(scope []string, name string) string {
	if len(scope) == 0 {
		return name
	}
	return strings.Join(scope, ".") + "." + name
}

// eachChild calls fn for every named child of n.
func eachChild(n *sitter.Node, fn func(*sitter.Node)) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		fn(n.NamedChild(i))
	}
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	return strings.Trim(s, `"'`+"`<>")
}
