package parser

import (
	"regexp"
	"strings"

	"github.com/codemaphq/codemap/internal/store"
)

// createStmtRe matches the CREATE statements recorded as symbols. No
// tree-sitter grammar is bundled for SQL, so extraction is line based:
// each statement spans from its CREATE line to the next terminating
// semicolon.
var createStmtRe = regexp.MustCompile(
	`(?i)^\s*CREATE\s+(?:OR\s+REPLACE\s+)?` +
		`(TABLE|MATERIALIZED\s+VIEW|VIEW|FUNCTION|PROCEDURE|UNIQUE\s+INDEX|INDEX)\s+` +
		`(?:IF\s+NOT\s+EXISTS\s+)?(?:CONCURRENTLY\s+)?([A-Za-z0-9_."]+)`)

var sqlKinds = map[string]store.SymbolKind{
	"TABLE":             store.SymbolTable,
	"VIEW":              store.SymbolView,
	"MATERIALIZED VIEW": store.SymbolView,
	"FUNCTION":          store.SymbolFunction,
	"PROCEDURE":         store.SymbolProcedure,
	"INDEX":             store.SymbolIndex,
	"UNIQUE INDEX":      store.SymbolIndex,
}

func extractSQL(content []byte) *Result {
	lines := strings.Split(string(content), "\n")
	e := &extraction{src: content, language: "sql"}

	for i := 0; i < len(lines); i++ {
		m := createStmtRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		what := strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
		kind, ok := sqlKinds[what]
		if !ok {
			continue
		}
		name := sqlObjectName(m[2])
		if name == "" {
			continue
		}

		end := i
		for end < len(lines) && !strings.Contains(lines[end], ";") {
			end++
		}
		if end == len(lines) {
			end = len(lines) - 1
		}

		sig := strings.TrimSpace(lines[i])
		e.symbols = append(e.symbols, store.Symbol{
			FQN:        name,
			SimpleName: simpleSQLName(name),
			Kind:       kind,
			StartLine:  i + 1,
			EndLine:    end + 1,
			Signature:  sig,
			Language:   "sql",
		})
	}
	return &Result{Symbols: e.symbols}
}

// sqlObjectName strips quoting and any trailing parameter list from the
// matched object name.
func sqlObjectName(raw string) string {
	raw = strings.ReplaceAll(raw, `"`, "")
	if i := strings.IndexByte(raw, '('); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

// simpleSQLName drops the schema qualifier: "public.users" -> "users".
func simpleSQLName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
