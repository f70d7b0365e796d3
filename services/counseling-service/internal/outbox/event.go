package outbox

import (
	"encoding/json"
	"fmt"
)

const AggregateAppointment = "counseling_appointment"

// Event is the domain event envelope written to the outbox table in the same
// transaction as the state change. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentEventType renders counseling.appointment.<action>.v1.
func AppointmentEventType(action string) string {
	return fmt.Sprintf("counseling.appointment.%s.v1", action)
}

func NewAppointmentEvent(action, appointmentID string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", action, err)
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   appointmentID,
		EventType:     AppointmentEventType(action),
		Payload:       body,
	}, nil
}

func (e Event) Empty() bool {
	return e.EventType == ""
}
