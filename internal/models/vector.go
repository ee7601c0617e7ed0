package models

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EmbeddingDimensions is the size of vectors produced by the embedding model
// (text-embedding-3-small) and of the vector(1536) database columns.
const EmbeddingDimensions = 1536

// Vector is a semantic embedding stored in a pgvector column. It marshals
// to and from pgvector's text representation ("[0.1,0.2,...]").
type Vector []float64

// Value implements driver.Valuer for pgvector columns.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String(), nil
}

// Scan implements sql.Scanner for pgvector columns.
func (v *Vector) Scan(src interface{}) error {
	if src == nil {
		*v = nil
		return nil
	}

	var raw string
	switch s := src.(type) {
	case string:
		raw = s
	case []byte:
		raw = string(s)
	default:
		return fmt.Errorf("cannot scan %T into Vector", src)
	}

	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
		return fmt.Errorf("malformed vector literal: %q", raw)
	}

	raw = strings.Trim(raw, "[]")
	if raw == "" {
		*v = Vector{}
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make(Vector, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("malformed vector element %q: %w", p, err)
		}
		out = append(out, f)
	}

	*v = out
	return nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 for mismatched lengths or zero-magnitude vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
