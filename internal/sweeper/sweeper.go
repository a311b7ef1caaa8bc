// Package sweeper schedules background cleanup of expired sessions.
package sweeper

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// SessionStore is the part of the backend the sweeper needs.
type SessionStore interface {
	SweepSessions(ctx context.Context)
}

// Sweeper runs SweepSessions on a cron schedule across all initialized
// tenants.
type Sweeper struct {
	cron  *cron.Cron
	store SessionStore
}

func New(store SessionStore, schedule string) (*Sweeper, error) {
	s := &Sweeper{cron: cron.New(), store: store}
	_, err := s.cron.AddFunc(schedule, func() {
		log.Debug().Msg("sweeping expired sessions")
		s.store.SweepSessions(context.Background())
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
