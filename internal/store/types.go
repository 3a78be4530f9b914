package store

// Group names a logical partition of the replicated store. Each group owns
// its own set of instances; writes fan out to all of them, reads pick one.
type Group string

const (
	// GroupStaff holds staff attendance marks.
	GroupStaff Group = "staff"
	// GroupSecondary holds secondary-student attendance marks.
	GroupSecondary Group = "secondary"
	// GroupPrimary holds primary-student attendance marks.
	GroupPrimary Group = "primary"
	// GroupReports holds school report identifiers and dataset metadata.
	GroupReports Group = "reports"
)

// Groups lists every defined instance group.
var Groups = []Group{GroupStaff, GroupSecondary, GroupPrimary, GroupReports}

// Valid reports whether g is a defined group.
func (g Group) Valid() bool {
	switch g {
	case GroupStaff, GroupSecondary, GroupPrimary, GroupReports:
		return true
	}
	return false
}

// String returns the group name.
func (g Group) String() string { return string(g) }

// FanOutMode selects how a fan-out write treats per-instance failures.
// The two behaviors are distinguished by call site: attendance marking uses
// FanOutStrict, bulk mirroring uses FanOutBestEffort.
type FanOutMode int

const (
	// FanOutStrict fails the whole write on the first instance error.
	FanOutStrict FanOutMode = iota
	// FanOutBestEffort logs instance errors and continues.
	FanOutBestEffort
)

// String returns the fan-out mode name.
func (m FanOutMode) String() string {
	if m == FanOutBestEffort {
		return "best_effort"
	}
	return "strict"
}

// KeysResult holds the union of a fan-out pattern search. Partial is set when
// at least one instance failed to respond; the keys collected from the
// remaining instances are still returned.
type KeysResult struct {
	Keys    []string
	Partial bool
}

// ConsistencyReport is the result of reading one key from every instance of a
// group. Values holds one entry per responding instance: a pointer to the
// stored value, or nil where the key is absent, so an absent key stays
// distinguishable from a stored empty string. Instances that failed to
// respond are excluded from the comparison and only reduce
// RespondingInstances.
type ConsistencyReport struct {
	IsConsistent        bool      `json:"is_consistent"`
	Values              []*string `json:"values"`
	RespondingInstances int       `json:"responding_instances"`
	ConfiguredInstances int       `json:"configured_instances"`
}
