// Package fleet builds and annotates the set of hosts a batch targets.
package fleet

// Family is the operating-system family of a probed host.
type Family string

const (
	FamilyWindows Family = "windows"
	FamilyUnix    Family = "unix"
	FamilyNetwork Family = "network"
	FamilyUnknown Family = "unknown"
)

// Host is one batch target. Name is fixed when the target list is
// built; Alive and OSFamily are filled in by the prober and never
// change afterwards.
type Host struct {
	Name     string
	Alive    bool
	OSFamily Family
}

// Partition splits hosts into alive and unavailable sets. A host
// appears in exactly one of the two slices.
func Partition(hosts []Host) (alive, unavailable []Host) {
	for _, h := range hosts {
		if h.Alive {
			alive = append(alive, h)
		} else {
			unavailable = append(unavailable, h)
		}
	}
	return alive, unavailable
}

// Names returns the host names in order.
func Names(hosts []Host) []string {
	names := make([]string, 0, len(hosts))
	for _, h := range hosts {
		names = append(names, h.Name)
	}
	return names
}
