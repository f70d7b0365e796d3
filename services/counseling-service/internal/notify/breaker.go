package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	// ConsecutiveFailures opens the circuit.
	ConsecutiveFailures uint32
	// OpenFor is how long the circuit stays open before a trial request.
	OpenFor time.Duration
}

// BreakerChatSender stops calling a failing chat gateway for a while so an
// outage does not add a webhook timeout to every operation.
type BreakerChatSender struct {
	next ChatSender
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerChatSender(next ChatSender, cfg BreakerConfig, logger *slog.Logger) *BreakerChatSender {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:        next.ProviderID(),
		MaxRequests: 1,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("chat circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerChatSender{next: next, cb: gobreaker.NewCircuitBreaker[struct{}](st)}
}

func (s *BreakerChatSender) ProviderID() string {
	return s.next.ProviderID()
}

func (s *BreakerChatSender) Send(ctx context.Context, phone string, text string) error {
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.next.Send(ctx, phone, text)
	})
	return err
}

func (s *BreakerChatSender) State() gobreaker.State {
	return s.cb.State()
}
