package schedule

// Admission classifies a request against the active reservations that
// overlap it.
type Admission struct {
	Exclusive        bool `json:"exclusive"`
	HasOverlap       bool `json:"hasOverlap"`
	TotalPeople      int  `json:"totalPeople"` // existing overlapping head count
	Capacity         int  `json:"capacity"`
	Requested        int  `json:"requested"`
	CapacityExceeded bool `json:"capacityExceeded"`
}

// Admit applies exclusive semantics when capacity <= 0, capacity-bounded
// semantics otherwise. Unset head counts count as one.
func Admit(overlaps []Occupancy, capacity, requested int) Admission {
	if requested <= 0 {
		requested = 1
	}
	a := Admission{
		Exclusive:  capacity <= 0,
		HasOverlap: len(overlaps) > 0,
		Requested:  requested,
	}
	for _, o := range overlaps {
		a.TotalPeople += o.people()
	}
	if a.Exclusive {
		return a
	}
	a.Capacity = capacity
	a.CapacityExceeded = a.TotalPeople+requested > capacity
	return a
}

// Conflict reports whether the request must be refused.
func (a Admission) Conflict() bool {
	if a.Exclusive {
		return a.HasOverlap
	}
	return a.CapacityExceeded
}

// Remaining is the head count still available; zero for exclusive facilities.
func (a Admission) Remaining() int {
	if a.Exclusive || a.TotalPeople >= a.Capacity {
		return 0
	}
	return a.Capacity - a.TotalPeople
}
