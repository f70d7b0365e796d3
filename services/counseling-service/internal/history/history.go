// Package history reconstructs a person's counseling history. Members have no
// stable id across appointments, so appointments are grouped by a derived
// identity key.
package history

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
)

// Key is the one identity derivation used by every view:
// name + "-" + (lowercased email | phone | appointment id).
func Key(a model.Appointment) string {
	name := strings.TrimSpace(a.MemberName)
	switch {
	case strings.TrimSpace(a.MemberEmail) != "":
		return name + "-" + strings.ToLower(strings.TrimSpace(a.MemberEmail))
	case strings.TrimSpace(a.MemberPhone) != "":
		return name + "-" + strings.TrimSpace(a.MemberPhone)
	default:
		return name + "-" + a.ID
	}
}

type Tier string

const (
	TierNeutral Tier = "neutral"
	TierCaution Tier = "caution"
	TierWarning Tier = "warning"
)

// TierFor maps an attendance number to its severity.
func TierFor(n int) Tier {
	switch {
	case n >= 4:
		return TierWarning
	case n >= 2:
		return TierCaution
	default:
		return TierNeutral
	}
}

// Visit is one HistoryEntry: {id, date, counselor}.
type Visit struct {
	ID        string       `json:"id"`
	Date      time.Time    `json:"date"`
	Counselor string       `json:"counselor"`
	Status    model.Status `json:"status"`
}

// Entry decorates one appointment with its place in the person's history.
type Entry struct {
	Key    string  `json:"key"`
	Number int     `json:"number"`
	Total  int     `json:"total"`
	Tier   Tier    `json:"tier"`
	Visits []Visit `json:"visits"`
}

func (e Entry) Label() string {
	return fmt.Sprintf("%dº Atendimento", e.Number)
}

// Index is the grouped, ordered view over one church's appointments.
type Index struct {
	groups   map[string][]Visit
	position map[string]entryRef
}

type entryRef struct {
	key   string
	index int
}

// Build groups appointments by Key and sorts each group by date, ties broken
// by id. Appointments without a valid date are left out.
func Build(appts []model.Appointment) *Index {
	idx := &Index{
		groups:   make(map[string][]Visit),
		position: make(map[string]entryRef),
	}
	for _, a := range appts {
		if !a.HasValidDate() {
			continue
		}
		k := Key(a)
		idx.groups[k] = append(idx.groups[k], Visit{
			ID:        a.ID,
			Date:      a.Date,
			Counselor: a.CounselorName,
			Status:    a.Status,
		})
	}
	for k, visits := range idx.groups {
		slices.SortStableFunc(visits, func(a, b Visit) int {
			if c := a.Date.Compare(b.Date); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		for i, v := range visits {
			idx.position[v.ID] = entryRef{key: k, index: i}
		}
	}
	return idx
}

// For returns the history entry of appointment id. ok is false for unknown
// ids and for appointments excluded because of a bad date.
func (idx *Index) For(id string) (Entry, bool) {
	ref, ok := idx.position[id]
	if !ok {
		return Entry{}, false
	}
	visits := idx.groups[ref.key]
	n := ref.index + 1
	return Entry{
		Key:    ref.key,
		Number: n,
		Total:  len(visits),
		Tier:   TierFor(n),
		Visits: slices.Clone(visits),
	}, true
}

// Groups returns the number of distinct people seen.
func (idx *Index) Groups() int {
	return len(idx.groups)
}
