package scheduler

import (
	"github.com/ikkim/delivery-tracker/pkg/logger"
	"github.com/robfig/cron/v3"
)

// DefaultPurgeSpec runs the purge at minute 0 of every hour.
const DefaultPurgeSpec = "0 * * * *"

// ResetTokenPurger deletes password reset tokens past their expiry.
type ResetTokenPurger interface {
	PurgeExpired() (int64, error)
}

// ResetTokenScheduler periodically removes expired password reset tokens
type ResetTokenScheduler struct {
	cron   *cron.Cron
	purger ResetTokenPurger
	spec   string
}

func NewResetTokenScheduler(purger ResetTokenPurger, spec string) *ResetTokenScheduler {
	if spec == "" {
		spec = DefaultPurgeSpec
	}
	return &ResetTokenScheduler{
		cron:   cron.New(),
		purger: purger,
		spec:   spec,
	}
}

func (s *ResetTokenScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.RunOnce); err != nil {
		logger.Error("Failed to add cron job for reset token purge", err, map[string]interface{}{
			"spec": s.spec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Reset token scheduler started", map[string]interface{}{
		"spec": s.spec,
	})
	return nil
}

// RunOnce purges expired tokens now. Errors are logged.
func (s *ResetTokenScheduler) RunOnce() {
	removed, err := s.purger.PurgeExpired()
	if err != nil {
		logger.Error("Failed to purge expired reset tokens", err)
		return
	}
	if removed > 0 {
		logger.Info("Purged expired reset tokens", map[string]interface{}{
			"removed": removed,
		})
	}
}

// Stop waits for a running purge to finish.
func (s *ResetTokenScheduler) Stop() {
	logger.Info("Stopping reset token scheduler...", nil)
	<-s.cron.Stop().Done()
	logger.Info("Reset token scheduler stopped", nil)
}
