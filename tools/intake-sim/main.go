package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/pastoralcare/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// intakeRequest mirrors the snake_case payload the counseling consumer reads.
type intakeRequest struct {
	ChurchID    string `json:"church_id"`
	MemberName  string `json:"member_name"`
	MemberEmail string `json:"member_email,omitempty"`
	MemberPhone string `json:"member_phone,omitempty"`
	Topic       string `json:"topic"`
	CounselorID string `json:"counselor_id,omitempty"`
	Date        string `json:"date,omitempty"`
	ForwardedBy string `json:"forwarded_by"`
}

func main() {
	var (
		brokers   = flag.String("brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "comma separated kafka brokers")
		topic     = flag.String("topic", getenv("KAFKA_INTAKE_TOPIC", "counseling.intake.v1"), "intake topic")
		church    = flag.String("church-id", getenv("CHURCH_ID", ""), "church the request belongs to")
		name      = flag.String("name", "Membro de Teste", "member name")
		email     = flag.String("email", "", "member email")
		phone     = flag.String("phone", "", "member phone")
		topicText = flag.String("subject", "Família", "counseling topic")
		counselor = flag.String("counselor-id", "", "pre-selected counselor (requires -date)")
		date      = flag.String("date", "", "requested date, e.g. 2024-01-08T09:00")
		eventID   = flag.String("event-id", "", "event id; repeat one to exercise deduplication")
	)
	flag.Parse()

	if strings.TrimSpace(*church) == "" {
		fatal("CHURCH_ID is required")
	}
	if *email == "" && *phone == "" {
		fatal("one of -email or -phone is required")
	}
	if *eventID == "" {
		*eventID = uuid.NewString()
	}

	payload, err := json.Marshal(intakeRequest{
		ChurchID:    *church,
		MemberName:  *name,
		MemberEmail: *email,
		MemberPhone: *phone,
		Topic:       *topicText,
		CounselorID: *counselor,
		Date:        *date,
		ForwardedBy: "intake-sim",
	})
	if err != nil {
		fatal(err.Error())
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(kafkax.SplitBrokers(*brokers)...),
		Topic:        *topic,
		RequiredAcks: kafka.RequireAll,
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	meta := kafkax.EventMeta{
		EventID:       *eventID,
		EventType:     "counseling.intake.requested.v1",
		AggregateType: "church",
		AggregateID:   *church,
	}
	if err := w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(*eventID),
		Value:   payload,
		Headers: meta.Headers(),
	}); err != nil {
		fatal(err.Error())
	}

	fmt.Printf("published event_id=%s topic=%s\n", *eventID, *topic)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
