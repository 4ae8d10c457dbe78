// Package notify delivers human-readable event messages to members.
package notify

import "log/slog"

// Notifier is the sink for member-facing event messages. Delivery is
// fire-and-forget; implementations must not block the caller.
type Notifier interface {
	Notify(recipientID, message string)
}

// LogNotifier writes notifications to the structured log. It stands in for
// a real delivery channel (email, push) in development.
type LogNotifier struct{}

// NewLogNotifier returns a Notifier backed by slog.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the message for the recipient.
func (n *LogNotifier) Notify(recipientID, message string) {
	slog.Info("notification", "recipient", recipientID, "message", message)
}
