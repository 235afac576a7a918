package services

import (
	"context"
	"errors"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/internal/metrics"
	"agromarket-notifier/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Janitor periodically logs out sessions whose store record has expired, so a
// browser that vanished without a logout does not hold a stream open forever.
type Janitor struct {
	cron     *cron.Cron
	sessions *SessionManager
	store    domain.SessionStore
	log      logger.Logger
}

func NewJanitor(sessions *SessionManager, store domain.SessionStore, log logger.Logger) *Janitor {
	return &Janitor{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		store:    store,
		log:      log,
	}
}

func (j *Janitor) Start(ctx context.Context) error {
	j.log.Info("Starting session janitor")

	_, err := j.cron.AddFunc("@every 1m", func() {
		j.sweep(ctx)
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	return nil
}

func (j *Janitor) Stop() error {
	j.log.Info("Stopping session janitor")
	j.cron.Stop()
	return nil
}

func (j *Janitor) sweep(ctx context.Context) {
	for _, id := range j.sessions.ActiveSessions() {
		_, err := j.store.Get(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			j.log.Error("Failed to check session record", "session_id", id, "error", err)
			continue
		}

		j.log.Info("Sweeping expired session", "session_id", id)
		if err := j.sessions.Logout(ctx, id); err != nil {
			j.log.Error("Failed to sweep session", "session_id", id, "error", err)
			continue
		}
		metrics.SessionsSwept.Inc()
	}
}
