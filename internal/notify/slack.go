// Package notify posts operational alerts to Slack.
package notify

import (
	"fmt"

	"github.com/rs/zerolog"
	slackapi "github.com/slack-go/slack"

	"github.com/therapybridge/therapybridge/internal/models"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts a message to a channel when a session fails processing.
// A nil *Slack is a no-op, so callers don't branch on configuration.
type Slack struct {
	client  slackClient
	channel string
	log     zerolog.Logger
}

// NewSlack builds the notifier. Returns nil when token or channel is empty.
func NewSlack(token, channel string, log zerolog.Logger) *Slack {
	if token == "" || channel == "" {
		return nil
	}
	return &Slack{
		client:  slackapi.New(token),
		channel: channel,
		log:     log.With().Str("component", "notify").Logger(),
	}
}

// SessionFailed alerts the channel about a failed session. Delivery errors
// are logged and swallowed; alerting never affects the pipeline outcome.
func (s *Slack) SessionFailed(session *models.TherapySession) {
	if s == nil {
		return
	}
	text := failureMessage(session)
	if _, _, err := s.client.PostMessage(s.channel, slackapi.MsgOptionText(text, false)); err != nil {
		s.log.Error().Err(err).Str("session", session.ID).Msg("post failure alert")
	}
}

// failureMessage renders the alert text. It carries the category and the
// sanitized message, never raw upstream error text or patient data.
func failureMessage(session *models.TherapySession) string {
	return fmt.Sprintf(":rotating_light: session processing failed\n• session: `%s`\n• category: `%s`\n• detail: %s",
		session.ID, session.ErrorCategory, session.ErrorMessage)
}
