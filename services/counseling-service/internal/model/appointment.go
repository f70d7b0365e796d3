package model

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Appointment is the typed view of the stored attribute bag. Counselor name
// and email are snapshots taken at assignment time.
type Appointment struct {
	ID                  string     `json:"id"`
	ChurchID            string     `json:"churchId"`
	CounselorID         string     `json:"counselorId"`
	CounselorName       string     `json:"counselorName"`
	CounselorEmail      string     `json:"counselorEmail"`
	MemberName          string     `json:"memberName"`
	MemberEmail         string     `json:"memberEmail"`
	MemberPhone         string     `json:"memberPhone"`
	MemberAge           string     `json:"memberAge,omitempty"`
	MemberMaritalStatus string     `json:"memberMaritalStatus,omitempty"`
	Date                time.Time  `json:"date"`
	Topic               string     `json:"topic"`
	Details             string     `json:"details"`
	Status              Status     `json:"status"`
	Meetings            []Meeting  `json:"meetings"`
	Activities          []Activity `json:"activities"`
	CancellationReason  string     `json:"cancellation_reason,omitempty"`
	RejectionReason     string     `json:"rejection_reason,omitempty"`
	RejectedBy          string     `json:"rejected_by,omitempty"`
	Source              string     `json:"source,omitempty"`
	Version             int64      `json:"version"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// HasValidDate is false for records whose date was missing or unparsable.
// Such records are excluded from every date based computation.
func (a Appointment) HasValidDate() bool {
	return !a.Date.IsZero()
}

func (a Appointment) Assigned() bool {
	return a.CounselorID != ""
}

func (a Appointment) AssignedTo(actor Actor) bool {
	return actor.ID != "" && a.CounselorID == actor.ID
}

func (a *Appointment) AssignCounselor(c Counselor) {
	a.CounselorID = c.ID
	a.CounselorName = c.Name
	a.CounselorEmail = c.Email
}

func (a *Appointment) ClearCounselor() {
	a.CounselorID = ""
	a.CounselorName = ""
	a.CounselorEmail = ""
}

// AppendActivity is the only way activities are added.
func (a *Appointment) AppendActivity(act Activity) {
	a.Activities = append(a.Activities, act)
}

// ActivitiesNewestFirst is the display order; storage order stays chronological.
func (a Appointment) ActivitiesNewestFirst() []Activity {
	out := slices.Clone(a.Activities)
	slices.Reverse(out)
	return out
}

func (a Appointment) MeetingByID(id string) (int, bool) {
	for i, m := range a.Meetings {
		if m.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Clone returns a deep copy so an operation can work on a draft and discard
// it when validation fails.
func (a Appointment) Clone() Appointment {
	a.Meetings = slices.Clone(a.Meetings)
	a.Activities = slices.Clone(a.Activities)
	return a
}

// ForViewer masks confidential meetings the viewer may not read.
func (a Appointment) ForViewer(viewer Actor) Appointment {
	out := a.Clone()
	for i, m := range out.Meetings {
		if !m.VisibleTo(viewer) {
			out.Meetings[i] = m.Masked()
		}
	}
	return out
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate accepts the layouts found in stored records. Naive values are
// read in loc. The second result is false when nothing matched.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// UnmarshalJSON decodes the attribute bag tolerantly: date and memberAge may
// be of the wrong type or garbage, status may be absent. Dates without an
// offset are read in the local zone; stored records go through
// DecodeAppointment instead.
func (a *Appointment) UnmarshalJSON(data []byte) error {
	return a.decode(data, time.Local)
}

func (a *Appointment) decode(data []byte, loc *time.Location) error {
	type alias Appointment
	var raw struct {
		alias
		Date      json.RawMessage `json:"date"`
		MemberAge json.RawMessage `json:"memberAge"`
		Status    string          `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Appointment(raw.alias)
	a.Date = decodeDate(raw.Date, loc)
	a.MemberAge = flexString(raw.MemberAge)
	a.Status, _ = ParseStatus(raw.Status)
	return nil
}

func decodeDate(raw json.RawMessage, loc *time.Location) time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	t, _ := ParseDate(s, loc)
	return t
}

func flexString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

// DecodeAppointment parses a stored record. Only structurally broken JSON is
// an error; bad field values degrade. Dates stored without an offset are
// wall-clock times in loc, the church calendar zone.
func DecodeAppointment(raw []byte, loc *time.Location) (Appointment, error) {
	var a Appointment
	if err := a.decode(raw, loc); err != nil {
		return Appointment{}, err
	}
	return a, nil
}
