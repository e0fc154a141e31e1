package ids

import "testing"

func TestNewIsSortableAndValid(t *testing.T) {
	a, b := New(), New()
	if !Valid(a) || !Valid(b) {
		t.Fatalf("generated ids must be valid: %s %s", a, b)
	}
	if a >= b {
		t.Fatalf("ids not monotonic: %s >= %s", a, b)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "abc", "01J0000000000000000000USER", "../../etc/passwd"} {
		if Valid(s) {
			t.Fatalf("Valid(%q) = true", s)
		}
	}
	if !Valid("01J00000000000000000000001") {
		t.Fatal("seeded id should be valid")
	}
}
