package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Static is a deterministic in-process provider: each text hashes to a
// reproducible unit vector. It exists for tests and offline smoke runs
// where no model server is available; equal texts always produce equal
// vectors, which is exactly the property the hash-dedup pipeline needs.
type Static struct {
	dims int
}

func NewStatic(dims int) *Static {
	if dims <= 0 {
		dims = 768
	}
	return &Static{dims: dims}
}

func (s *Static) Name() string { return "static" }

func (s *Static) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = s.vector(text)
	}
	return out, nil
}

func (s *Static) vector(text string) []float32 {
	seed := sha256.Sum256([]byte(text))
	vec := make([]float32, s.dims)
	var norm float64

	// Stretch the 32-byte seed over the full dimension by re-hashing
	// with a counter.
	buf := seed[:]
	for i := 0; i < s.dims; i++ {
		if i*4+4 > len(buf) {
			next := sha256.Sum256(buf)
			buf = append(buf, next[:]...)
		}
		bits := binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
		v := float32(int32(bits)) / float32(math.MaxInt32)
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
