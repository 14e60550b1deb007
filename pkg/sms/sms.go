package sms

import (
	"context"

	"github.com/ikkim/delivery-tracker/config"
	"github.com/ikkim/delivery-tracker/pkg/logger"
)

// Sender delivers a text message to a single phone number.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// NewSender returns the Twilio sender when SMS is enabled and a log-only
// sender otherwise.
func NewSender(cfg config.SMSConfig) Sender {
	if !cfg.Enabled {
		logger.Info("SMS disabled, messages will be logged only")
		return &LogSender{}
	}
	return NewTwilioSender(cfg.BaseURL, cfg.AccountSID, cfg.AuthToken, cfg.FromNumber)
}

// LogSender prints messages instead of sending them.
type LogSender struct{}

func (s *LogSender) Send(ctx context.Context, to, body string) error {
	logger.Info("[SMS disabled] message not sent", map[string]interface{}{
		"to":   to,
		"body": body,
	})
	return nil
}
