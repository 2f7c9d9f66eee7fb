package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/codemaphq/codemap/internal/store"
)

// HashContent is the embedding dedup key: the first 16 hex characters
// of the content's SHA-256. Equal content always hashes equal, so a
// vector computed for one chunk serves every chunk with the same hash.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// MakeChunks splits a file into retrievable units: one file-header
// chunk covering the region before the first top-level symbol (imports,
// package docs, module constants) and one chunk per top-level symbol.
// Nested symbols ride inside their parent's chunk. Chunks come back
// ordered by start line with contiguous, non-overlapping ranges.
func MakeChunks(language string, content []byte, symbols []store.Symbol) []store.IngestChunk {
	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}

	top := topLevelIndices(symbols)
	var chunks []store.IngestChunk

	headerEnd := len(lines)
	if len(top) > 0 {
		headerEnd = symbols[top[0]].StartLine - 1
	}
	if headerEnd > 0 {
		content := strings.Join(lines[:headerEnd], "\n")
		chunks = append(chunks, store.IngestChunk{
			Chunk: store.Chunk{
				StartLine:   1,
				EndLine:     headerEnd,
				Content:     content,
				ContentHash: HashContent(content),
				Language:    language,
				Kind:        store.ChunkFileHeader,
			},
			SymbolIdx: -1,
		})
	}

	for _, idx := range top {
		sym := symbols[idx]
		start, end := sym.StartLine, sym.EndLine
		if start < 1 {
			start = 1
		}
		if end > len(lines) {
			end = len(lines)
		}
		if start > end {
			continue
		}
		content := strings.Join(lines[start-1:end], "\n")
		chunks = append(chunks, store.IngestChunk{
			Chunk: store.Chunk{
				StartLine:   start,
				EndLine:     end,
				Content:     content,
				ContentHash: HashContent(content),
				Language:    language,
				Kind:        store.ChunkSymbol,
			},
			SymbolIdx: idx,
		})
	}
	return chunks
}

// topLevelIndices returns, in start-line order, the symbols not
// enclosed by any other symbol's line range.
func topLevelIndices(symbols []store.Symbol) []int {
	var top []int
	for i, s := range symbols {
		nested := false
		for j, other := range symbols {
			if i == j {
				continue
			}
			if other.StartLine <= s.StartLine && other.EndLine >= s.EndLine &&
				(other.StartLine < s.StartLine || other.EndLine > s.EndLine) {
				nested = true
				break
			}
		}
		if !nested {
			top = append(top, i)
		}
	}
	sort.Slice(top, func(a, b int) bool {
		return symbols[top[a]].StartLine < symbols[top[b]].StartLine
	})
	return top
}
