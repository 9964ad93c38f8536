// Package notify abstracts outbound user messaging so the core services do
// not depend on any particular chat platform. The server ships with a
// log-backed implementation; a Discord (or other) adapter satisfies the same
// interface at the edge.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// MaxSelectOptions caps the number of choices a selection prompt may carry.
// Chat platforms cap select menus at 25 entries, so callers must trim their
// candidate lists before prompting.
const MaxSelectOptions = 25

// SelectOption is one entry of a selection prompt.
type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Notifier delivers messages to users and channels.
type Notifier interface {
	// NotifyUser sends a direct message to the platform user.
	NotifyUser(ctx context.Context, userExternalID, message string) error

	// NotifyChannel posts a message into a channel.
	NotifyChannel(ctx context.Context, channelID, message string) error

	// PromptSelect asks the user to pick one of up to MaxSelectOptions
	// options. Implementations reject longer lists.
	PromptSelect(ctx context.Context, userExternalID, prompt string, options []SelectOption) error
}

// LogNotifier writes every notification to the structured log instead of a
// chat platform. It is the default wiring for local runs and tests.
type LogNotifier struct {
	Log zerolog.Logger
}

// NewLogNotifier returns a LogNotifier writing through log.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{Log: log}
}

// NotifyUser implements Notifier.
func (n *LogNotifier) NotifyUser(ctx context.Context, userExternalID, message string) error {
	n.Log.Info().
		Str("user_external_id", userExternalID).
		Str("message", message).
		Msg("notify user")
	return nil
}

// NotifyChannel implements Notifier.
func (n *LogNotifier) NotifyChannel(ctx context.Context, channelID, message string) error {
	n.Log.Info().
		Str("channel_id", channelID).
		Str("message", message).
		Msg("notify channel")
	return nil
}

// PromptSelect implements Notifier.
func (n *LogNotifier) PromptSelect(ctx context.Context, userExternalID, prompt string, options []SelectOption) error {
	if len(options) > MaxSelectOptions {
		options = options[:MaxSelectOptions]
	}
	n.Log.Info().
		Str("user_external_id", userExternalID).
		Str("prompt", prompt).
		Int("options", len(options)).
		Msg("prompt select")
	return nil
}
