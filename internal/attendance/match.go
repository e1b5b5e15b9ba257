package attendance

import "strings"

// Match resolves a free-text name against the roster. The query is trimmed
// and both sides are lowercased; the first entry in store order whose name
// contains the query wins. Short queries can therefore match unintended
// entries ("an" matches "Alice Johnson" before "Dan"); callers rely on this
// exact first-match containment policy.
//
// An empty query matches nothing.
func Match(query string, entries []Entry) (int, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return -1, false
	}
	for i := range entries {
		if strings.Contains(strings.ToLower(entries[i].Name), q) {
			return i, true
		}
	}
	return -1, false
}
