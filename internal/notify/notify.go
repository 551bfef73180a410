// Package notify posts run summaries to Slack.
package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"reportjudge/internal/config"
)

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Poster is the part of *slack.Client used for posting.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type Slack struct {
	api     Poster
	channel string
	logger  *zap.Logger
}

func NewSlack(api Poster, channel string, logger *zap.Logger) *Slack {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Slack{api: api, channel: channel, logger: logger}
}

func (s *Slack) Notify(ctx context.Context, text string) error {
	_, ts, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post to slack channel %s: %w", s.channel, err)
	}
	s.logger.Debug("posted run summary", zap.String("channel", s.channel), zap.String("ts", ts))
	return nil
}

type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// FromConfig returns a Slack notifier when a bot token and channel are configured.
func FromConfig(cfg config.Config, logger *zap.Logger) Notifier {
	if !cfg.SlackConfigured() {
		return Nop{}
	}
	return NewSlack(slack.New(cfg.SlackBotToken), cfg.ReportChannelID, logger)
}
