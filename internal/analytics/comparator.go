package analytics

// ComparisonSide is one half of a two-way cohort comparison.
type ComparisonSide struct {
	Label             string  `json:"label"`
	TotalAttendance   int     `json:"totalAttendance"`
	ServiceCount      int     `json:"serviceCount"`
	AverageAttendance float64 `json:"averageAttendance"`
}

// Comparison always has exactly two sides.
type Comparison struct {
	Primary   ComparisonSide `json:"primary"`
	Secondary ComparisonSide `json:"secondary"`
}

func side(label string, total, services int) ComparisonSide {
	return ComparisonSide{
		Label:             label,
		TotalAttendance:   total,
		ServiceCount:      services,
		AverageAttendance: average(total, services),
	}
}

// CompareDivineService partitions services into Divine Service and the rest.
func CompareDivineService(tallies []ServiceTally) Comparison {
	var divineTotal, divineCount, otherTotal, otherCount int
	for _, t := range tallies {
		if t.Service.Type == DivineService {
			divineTotal += t.Attendance
			divineCount++
		} else {
			otherTotal += t.Attendance
			otherCount++
		}
	}
	return Comparison{
		Primary:   side("Divine Service", divineTotal, divineCount),
		Secondary: side("Other Services", otherTotal, otherCount),
	}
}

// CompareMembersGuests splits each service's attendees into members and
// guests. Both sides average over every service in the set.
func CompareMembersGuests(tallies []ServiceTally) Comparison {
	var members, guests int
	for _, t := range tallies {
		members += t.Members
		guests += t.Guests
	}
	return Comparison{
		Primary:   side("Members", members, len(tallies)),
		Secondary: side("Guests", guests, len(tallies)),
	}
}
