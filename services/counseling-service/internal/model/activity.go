package model

import (
	"strings"
	"time"
)

type Action string

const (
	ActionStatusChange      Action = "status_change"
	ActionAddMeeting        Action = "add_meeting"
	ActionEditMeeting       Action = "edit_meeting"
	ActionWhatsAppContact   Action = "whatsapp_contact"
	ActionCreated           Action = "created"
	ActionRescheduled       Action = "rescheduled"
	ActionAssignedCounselor Action = "assigned_counselor"
	ActionCanceled          Action = "canceled"
	ActionTransferred       Action = "transferred"
	ActionOwnershipTaken    Action = "ownership_taken"
	ActionContactRegistered Action = "contact_registered"
	ActionMarkedAsBaptized  Action = "marked_as_baptized"
)

const sentToPrefix = "sent_to_"

// SentTo builds the sent_to_<target> action used when a request is forwarded
// to another ministry.
func SentTo(target string) Action {
	target = strings.ToLower(strings.TrimSpace(target))
	target = strings.ReplaceAll(target, " ", "_")
	return Action(sentToPrefix + target)
}

func (a Action) IsSentTo() bool {
	return strings.HasPrefix(string(a), sentToPrefix) && len(a) > len(sentToPrefix)
}

// Activity is one immutable audit entry.
type Activity struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Action    Action    `json:"action"`
	Details   string    `json:"details"`
}
