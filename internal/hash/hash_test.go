package hash

import "testing"

func TestContentNormalizesWhitespace(t *testing.T) {
	t.Parallel()

	a := Content("rust  ownership\nexplained")
	b := Content("rust ownership explained")
	if a != b {
		t.Fatalf("expected identical hashes after normalization, got %s and %s", a, b)
	}
}

func TestContentDistinguishesText(t *testing.T) {
	t.Parallel()

	if Content("alpha") == Content("beta") {
		t.Fatal("different content must not share a hash")
	}
}

func TestContentIsHexSHA256(t *testing.T) {
	t.Parallel()

	h := Content("anything")
	if len(h) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h))
	}
}
