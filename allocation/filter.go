package allocation

import "strings"

// Filter narrows history listings. Every non-empty field must match, as a
// case-insensitive substring.
type Filter struct {
	Query   string // any of rootId, rmId, bmId, item, purpose, employee name or code
	RootID  string
	RMID    string
	BMID    string
	EmpCode string
	EmpName string
	Item    string
	Purpose string
	Role    string
}

func (f Filter) IsZero() bool {
	return f == Filter{}
}

func (f Filter) Matches(a Allocation) bool {
	if f.Query != "" && !matchesQuery(a, f.Query) {
		return false
	}
	checks := []struct{ field, want string }{
		{a.RootID, f.RootID},
		{a.RMID, f.RMID},
		{a.BMID, f.BMID},
		{string(a.Item), f.Item},
		{a.Purpose, f.Purpose},
		{string(a.Role), f.Role},
	}
	for _, c := range checks {
		if c.want != "" && !contains(c.field, c.want) {
			return false
		}
	}
	if f.EmpCode != "" && !anyShare(a, func(s Share) bool { return contains(s.EmpCode, f.EmpCode) }) {
		return false
	}
	if f.EmpName != "" && !anyShare(a, func(s Share) bool { return contains(s.Name, f.EmpName) }) {
		return false
	}
	return true
}

// Apply returns the matching records, preserving order.
func (f Filter) Apply(records []Allocation) []Allocation {
	if records == nil {
		return []Allocation{}
	}
	if f.IsZero() {
		return records
	}
	out := make([]Allocation, 0, len(records))
	for _, a := range records {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	return out
}

func matchesQuery(a Allocation, q string) bool {
	for _, field := range []string{a.RootID, a.RMID, a.BMID, string(a.Item), a.Purpose} {
		if contains(field, q) {
			return true
		}
	}
	return anyShare(a, func(s Share) bool { return contains(s.Name, q) || contains(s.EmpCode, q) })
}

func anyShare(a Allocation, pred func(Share) bool) bool {
	for _, s := range a.Employees {
		if pred(s) {
			return true
		}
	}
	return false
}

func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(substr)))
}
