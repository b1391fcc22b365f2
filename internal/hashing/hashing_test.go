package hashing

import "testing"

func TestContentStable(t *testing.T) {
	a := Content([]byte("def login(): pass"))
	b := Content([]byte("def login(): pass"))
	if a != b {
		t.Errorf("same input hashed differently: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16 hex chars, got %d (%s)", len(a), a)
	}
	if a == Content([]byte("def login(): return 1")) {
		t.Error("different input should hash differently")
	}
}

func TestFieldsSeparatesBoundaries(t *testing.T) {
	if Fields("ab", "c") == Fields("a", "bc") {
		t.Error("field boundaries must affect the hash")
	}
}

func TestSetIgnoresOrder(t *testing.T) {
	if Set([]string{"b.py", "a.py"}) != Set([]string{"a.py", "b.py"}) {
		t.Error("set hash should not depend on order")
	}
	if Set([]string{"a.py"}) == Set([]string{"a.py", "b.py"}) {
		t.Error("different membership should hash differently")
	}
}

func TestShort(t *testing.T) {
	if got := Short("0123456789abcdef", 8); got != "01234567" {
		t.Errorf("Short = %q", got)
	}
	if got := Short("abc", 8); got != "abc" {
		t.Errorf("Short on short input = %q", got)
	}
}
