package billing

import "strings"

// IsConfiguredCredential reports whether a credential value is usable.
// Shipped configuration uses placeholder sentinels of the form
// "...YOUR_<something>_HERE..."; such values mark the provider unconfigured
// and must never be sent over the wire. Routing depends on this predicate,
// so it is the single place the sentinel rule lives.
func IsConfiguredCredential(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return false
	}
	return !containsPlaceholder(v)
}

func containsPlaceholder(v string) bool {
	idx := strings.Index(v, "YOUR_")
	if idx < 0 {
		return false
	}
	return strings.Contains(v[idx:], "_HERE")
}
