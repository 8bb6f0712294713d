package analytics

import (
	"fmt"
	"sort"
	"strings"
)

// DisplayName returns the household's explicit name or synthesizes one from
// its members: "First Last", "First & First2 Last2", or "First Last (+N)".
func (h Household) DisplayName() string {
	if name := strings.TrimSpace(h.Name); name != "" {
		return name
	}
	return HouseholdDisplayName(h.Members)
}

// HouseholdDisplayName names a household after its members in the given order.
func HouseholdDisplayName(members []Person) string {
	switch len(members) {
	case 0:
		return ""
	case 1:
		return members[0].FullName()
	case 2:
		return members[0].FirstName + " & " + members[1].FullName()
	default:
		return fmt.Sprintf("%s (+%d)", members[0].FullName(), len(members)-1)
	}
}

// ResolveHead picks the head of household among members sharing an envelope:
// the earliest-born male, or the earliest-born member when there is no male.
// Members without a date of birth rank after those with one; remaining ties
// keep input order. It returns false for an empty slice.
func ResolveHead(members []Person) (Person, bool) {
	if len(members) == 0 {
		return Person{}, false
	}
	ranked := make([]Person, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if am, bm := a.Sex == Male, b.Sex == Male; am != bm {
			return am
		}
		return bornEarlier(a.DateOfBirth, b.DateOfBirth)
	})
	return ranked[0], true
}

func bornEarlier(a, b *CalendarDate) bool {
	switch {
	case a == nil || a.IsZero():
		return false
	case b == nil || b.IsZero():
		return true
	default:
		return a.Before(*b)
	}
}
