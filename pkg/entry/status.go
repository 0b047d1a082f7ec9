package entry

import "fmt"

// Status is the lifecycle phase of one entry revision.
type Status string

const (
	Draft     Status = "draft"
	Published Status = "published"
	Archived  Status = "archived"
)

// Statuses lists every phase.
var Statuses = []Status{Draft, Published, Archived}

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case Draft, Published, Archived:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Suffix is the file name marker of the phase; published files have none.
func (s Status) Suffix() string {
	switch s {
	case Draft:
		return ".draft"
	case Archived:
		return ".archived"
	}
	return ""
}

// Restriction orders phases by how much they hide content: a published
// entry under a draft or archived ancestor is not publicly visible.
func (s Status) Restriction() int {
	switch s {
	case Draft:
		return 1
	case Archived:
		return 2
	}
	return 0
}

// MostRestrictive returns whichever of a and b hides more.
func MostRestrictive(a, b Status) Status {
	if b.Restriction() > a.Restriction() {
		return b
	}
	return a
}
