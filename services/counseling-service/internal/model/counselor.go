package model

import (
	"time"

	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/availability"
)

type Counselor struct {
	ID           string              `json:"id"`
	ChurchID     string              `json:"churchId"`
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	Phone        string              `json:"phone"`
	Gender       string              `json:"gender"`
	Topics       []string            `json:"topics"`
	Availability availability.Weekly `json:"availability"`
	Active       bool                `json:"active"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// Counselor ids are the identity provider's user ids.
func (c Counselor) Identifies(actor Actor) bool {
	return actor.ID != "" && actor.ID == c.ID
}
