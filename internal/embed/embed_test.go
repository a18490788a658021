package embed

import (
	"context"
	"math"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	h := NewHash(384)
	a, err := h.Embed(context.Background(), "Hearing on Jan 8th.")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := h.Embed(context.Background(), "Hearing on Jan 8th.")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(a) != 384 {
		t.Fatalf("vector length = %d, want 384", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("identical input produced different vectors at %d", i)
		}
	}

	c, _ := h.Embed(context.Background(), "something else")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different inputs produced identical vectors")
	}
}

func TestHashUnitNorm(t *testing.T) {
	h := NewHash(64)
	vec, err := h.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-5 {
		t.Errorf("norm = %v, want 1", math.Sqrt(norm))
	}
}

func TestHashDimensionsDefault(t *testing.T) {
	if got := NewHash(0).Dimensions(); got != 384 {
		t.Errorf("default dimensions = %d, want 384", got)
	}
	if got := NewHash(128).Dimensions(); got != 128 {
		t.Errorf("dimensions = %d, want 128", got)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	got := Normalize(zero)
	for i, v := range got {
		if v != 0 {
			t.Errorf("Normalize(zero)[%d] = %v, want 0", i, v)
		}
	}
}
