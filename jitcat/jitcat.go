// Package jitcat is a minimal JIT category manager: it assigns a
// human-readable category label to a demangled JIT symbol name, for
// the JIT mapping path of the object-file loader (spec §4.4 step 11,
// "routed through the JIT category manager"). The upstream JIT
// category manager classifies by matching configurable symbol-name
// prefixes/patterns against known JIT engines (V8, SpiderMonkey, the
// JVM, ...); this keeps that shape without hardcoding every engine's
// table, since nothing in scope here needs more than a label per
// mapping.
package jitcat

import "strings"

// Category is a named bucket JIT-emitted mappings are grouped under.
type Category struct {
	Name   string
	Prefix string
}

// DefaultCategory is used when no registered prefix matches.
const DefaultCategory = "JIT"

// Manager holds an ordered list of prefix-matched categories.
type Manager struct {
	categories []Category
}

// NewManager creates a Manager with no categories registered; callers
// add categories with AddCategory, most-specific first.
func NewManager() *Manager {
	return &Manager{}
}

// AddCategory registers a category matched by symbol-name prefix.
func (m *Manager) AddCategory(name, prefix string) {
	m.categories = append(m.categories, Category{Name: name, Prefix: prefix})
}

// CategoryFor returns the category label for a (demangled) JIT symbol
// name, falling back to DefaultCategory.
func (m *Manager) CategoryFor(symbolName string) string {
	for _, c := range m.categories {
		if strings.HasPrefix(symbolName, c.Prefix) {
			return c.Name
		}
	}
	return DefaultCategory
}
