// internal/sender/simulated.go
package sender

import (
	"context"
	"fmt"
	"math/rand"
	"net/mail"

	"github.com/rs/zerolog"

	"github.com/unclebandit/coursetrack-backend/internal/model"
)

// SimulatedSender stands in for the real provider in development. It
// rejects malformed addresses permanently and throttles a configurable
// fraction of sends to exercise the retry path.
type SimulatedSender struct {
	// ThrottleRate is the probability in [0,1) that a send is answered
	// with a transient rate-limit error.
	ThrottleRate float64
	Log          zerolog.Logger
}

func (s *SimulatedSender) Send(ctx context.Context, rcpt *model.Recipient, subject, body string) error {
	if _, err := mail.ParseAddress(rcpt.Email); err != nil {
		return NewPermanent(fmt.Sprintf("invalid email address %q", rcpt.Email))
	}

	if s.ThrottleRate > 0 && rand.Float64() < s.ThrottleRate {
		return NewTransient("Rate limit hit")
	}

	s.Log.Info().
		Str("instructor_id", rcpt.InstructorID).
		Str("email", rcpt.Email).
		Str("subject", subject).
		Msg("simulated send")
	return nil
}

var _ Sender = (*SimulatedSender)(nil)
