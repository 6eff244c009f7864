package reconcile

import (
	"golang.org/x/text/cases"
)

type Set[K comparable] map[K]struct{}

func NewSet[K comparable]() Set[K] {
	return make(Set[K])
}
func MakeSet[K comparable](keys []K) Set[K] {
	var ns = NewSet[K]()
	for _, k := range keys {
		ns.Add(k)
	}
	return ns
}
func (s Set[K]) Has(key K) (ok bool) {
	_, ok = s[key]
	return
}
func (s Set[K]) Add(key K) {
	s[key] = struct{}{}
}
func (s Set[K]) ToArray() (result []K) {
	for k := range s {
		result = append(result, k)
	}
	return
}

var emailFolder = cases.Fold(cases.Compact)

// FoldEmail lower-cases an email address for processed-set and disable
// comparisons. Store lookups by email stay case-sensitive; only the
// absence test ahead of disabling is caseless.
func FoldEmail(email string) string {
	return emailFolder.String(email)
}
