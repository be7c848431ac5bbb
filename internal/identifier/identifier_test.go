package identifier

import "testing"

func TestRandomSuffixIsNonEmptyAndURLSafe(t *testing.T) {
	s, err := RandomSuffix()
	if err != nil {
		t.Fatalf("RandomSuffix failed: %v", err)
	}
	if s == "" {
		t.Fatal("RandomSuffix returned an empty string")
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			t.Fatalf("RandomSuffix returned a non-alphanumeric character: %q in %q", r, s)
		}
	}
}

func TestRandomSuffixIsNotConstant(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		s, err := RandomSuffix()
		if err != nil {
			t.Fatalf("RandomSuffix failed: %v", err)
		}
		seen[s] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected RandomSuffix to produce varying output across calls")
	}
}
