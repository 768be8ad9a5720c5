package domain

import "strings"

// CodeSet is a set of upper-cased IATA codes.
type CodeSet map[string]struct{}

func NewCodeSet(codes []string) CodeSet {
	s := make(CodeSet, len(codes))
	for _, c := range codes {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			s[c] = struct{}{}
		}
	}
	return s
}

func (s CodeSet) Contains(code string) bool {
	_, ok := s[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// IsDomesticRoute reports whether both ends of the route are in the set.
func (s CodeSet) IsDomesticRoute(r Route) bool {
	return s.Contains(r.Departure) && s.Contains(r.Arrival)
}
