package jitcat

import "testing"

func TestCategoryForMatchesPrefix(t *testing.T) {
	m := NewManager()
	m.AddCategory("V8", "v8::internal::")
	m.AddCategory("JVM", "JVM_")

	if got := m.CategoryFor("v8::internal::Interpret"); got != "V8" {
		t.Errorf("got %q, want V8", got)
	}
	if got := m.CategoryFor("JVM_DoCall"); got != "JVM" {
		t.Errorf("got %q, want JVM", got)
	}
	if got := m.CategoryFor("unknown_fn"); got != DefaultCategory {
		t.Errorf("got %q, want %q", got, DefaultCategory)
	}
}
