package dispatch

import (
	"context"
	"log"
)

// SimulatedEmailSender stands in for a real mail provider: it logs the
// message and reports success. The consumer-side gating (who gets email,
// and when) is exercised for real; only the transport is simulated.
type SimulatedEmailSender struct{}

// NewSimulatedEmailSender creates the logging email sender.
func NewSimulatedEmailSender() *SimulatedEmailSender {
	return &SimulatedEmailSender{}
}

func (s *SimulatedEmailSender) Send(ctx context.Context, to, subject, body string) error {
	log.Printf("email: to=%s subject=%q body=%q (simulated)", to, subject, body)
	return nil
}
