package graph

import (
	"fmt"

	"github.com/odvcencio/folio/pkg/entry"
)

// StatusFilter decides which revision of an entry a read sees. Every reader
// goes through Pick/Picks; no other code chooses between phases.
type StatusFilter string

const (
	// StatusPublished sees published revisions whose ancestors are all
	// published.
	StatusPublished StatusFilter = "published"
	// StatusDraft sees the draft, or the main revision when an ancestor's
	// draft state makes it effectively a draft.
	StatusDraft StatusFilter = "draft"
	// StatusArchived sees the archived revision, or the main revision when
	// an archived ancestor makes it effectively archived.
	StatusArchived StatusFilter = "archived"
	// StatusPreferPublished is the default: published, else the active
	// draft or archived revision.
	StatusPreferPublished StatusFilter = "preferPublished"
	// StatusPreferDraft sees the editable head: draft, else published, else
	// archived.
	StatusPreferDraft StatusFilter = "preferDraft"
	// StatusAll sees every revision.
	StatusAll StatusFilter = "all"
)

// ParseStatusFilter validates s; empty selects the default.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(s); f {
	case "":
		return StatusPreferPublished, nil
	case StatusPublished, StatusDraft, StatusArchived, StatusPreferPublished, StatusPreferDraft, StatusAll:
		return f, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Pick returns the revisions of l the filter sees. Only StatusAll can
// return more than one.
func (f StatusFilter) Pick(l *Language) []*Row {
	if f == StatusAll {
		return l.Versions()
	}
	if r := f.pickOne(l); r != nil {
		return []*Row{r}
	}
	return nil
}

// Picks reports whether r is the revision the filter sees for its language.
func (f StatusFilter) Picks(r *Row) bool {
	if f == StatusAll {
		return true
	}
	return f.pickOne(r.lang) == r
}

func (f StatusFilter) pickOne(l *Language) *Row {
	switch f {
	case StatusPublished:
		if r := l.Version(entry.Published); r != nil && r.EffectiveStatus == entry.Published {
			return r
		}
		return nil
	case StatusDraft:
		return l.layered(entry.Draft)
	case StatusArchived:
		return l.layered(entry.Archived)
	case StatusPreferDraft:
		return l.Active()
	default:
		if r := l.Version(entry.Published); r != nil {
			return r
		}
		return l.Active()
	}
}

// layered returns l's own revision in phase s, or its main revision when an
// ancestor puts it in that phase.
func (l *Language) layered(s entry.Status) *Row {
	if r := l.Version(s); r != nil {
		return r
	}
	if m := l.Main(); m != nil && m.EffectiveStatus == s {
		return m
	}
	return nil
}
