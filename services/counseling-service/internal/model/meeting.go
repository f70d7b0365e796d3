package model

import "time"

const MaskedContent = "Conteúdo confidencial"

// Meeting is one logged counseling session.
type Meeting struct {
	ID             string    `json:"id"`
	Date           time.Time `json:"date"`
	Topic          string    `json:"topic"`
	Notes          string    `json:"notes"`
	NextSteps      string    `json:"nextSteps"`
	RecordedBy     string    `json:"recordedBy"`
	RecordedByID   string    `json:"recordedById"`
	IsConfidential bool      `json:"isConfidential"`
}

// VisibleTo reports whether actor may read notes and next steps.
func (m Meeting) VisibleTo(actor Actor) bool {
	if !m.IsConfidential {
		return true
	}
	return actor.ID == m.RecordedByID || actor.Role.Supervisor()
}

func (m Meeting) Masked() Meeting {
	m.Notes = MaskedContent
	m.NextSteps = MaskedContent
	return m
}
