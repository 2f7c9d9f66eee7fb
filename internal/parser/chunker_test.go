package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemaphq/codemap/internal/store"
)

func TestHashContent(t *testing.T) {
	h := HashContent("hello")
	assert.Len(t, h, 16)
	assert.Equal(t, h, HashContent("hello"))
	assert.NotEqual(t, h, HashContent("hello "))
}

func TestMakeChunksHeaderAndSymbols(t *testing.T) {
	src := []byte(`import os

def first():
    return 1

def second():
    return 2
`)
	symbols := []store.Symbol{
		{FQN: "first", SimpleName: "first", StartLine: 3, EndLine: 4},
		{FQN: "second", SimpleName: "second", StartLine: 6, EndLine: 7},
	}

	chunks := MakeChunks("python", src, symbols)
	require.Len(t, chunks, 3)

	header := chunks[0]
	assert.Equal(t, store.ChunkFileHeader, header.Kind)
	assert.Equal(t, -1, header.SymbolIdx)
	assert.Equal(t, 1, header.StartLine)
	assert.Equal(t, 2, header.EndLine)
	assert.Equal(t, "import os\n", header.Content)

	assert.Equal(t, store.ChunkSymbol, chunks[1].Kind)
	assert.Equal(t, 0, chunks[1].SymbolIdx)
	assert.Equal(t, "def first():\n    return 1", chunks[1].Content)
	assert.Equal(t, 1, chunks[2].SymbolIdx)

	// Ranges are contiguous and ordered.
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].StartLine, chunks[i-1].EndLine)
	}
	for _, c := range chunks {
		assert.Equal(t, HashContent(c.Content), c.ContentHash)
		assert.Equal(t, "python", c.Language)
	}
}

func TestMakeChunksNestedSymbolsStayInParent(t *testing.T) {
	src := []byte(`class Box:
    def get(self):
        return self.v
`)
	symbols := []store.Symbol{
		{FQN: "Box", SimpleName: "Box", StartLine: 1, EndLine: 3},
		{FQN: "Box.get", SimpleName: "get", StartLine: 2, EndLine: 3},
	}

	chunks := MakeChunks("python", src, symbols)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].SymbolIdx)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
}

func TestMakeChunksNoSymbols(t *testing.T) {
	src := []byte("-- just comments\n-- nothing declared\n")
	chunks := MakeChunks("sql", src, nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, store.ChunkFileHeader, chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
}

func TestMakeChunksSymbolAtLineOne(t *testing.T) {
	src := []byte("func main() {\n}\n")
	symbols := []store.Symbol{{FQN: "main", SimpleName: "main", StartLine: 1, EndLine: 2}}
	chunks := MakeChunks("go", src, symbols)
	require.Len(t, chunks, 1)
	assert.Equal(t, store.ChunkSymbol, chunks[0].Kind)
}

func TestMakeChunksEmptyFile(t *testing.T) {
	assert.Nil(t, MakeChunks("go", nil, nil))
	assert.Nil(t, MakeChunks("go", []byte(""), nil))
}

func TestEqualContentSharesHash(t *testing.T) {
	srcA := []byte("def f():\n    return 1\n")
	srcB := []byte("def f():\n    return 1\n")
	sym := []store.Symbol{{FQN: "f", SimpleName: "f", StartLine: 1, EndLine: 2}}

	a := MakeChunks("python", srcA, sym)
	b := MakeChunks("python", srcB, sym)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].ContentHash, b[0].ContentHash)
}
