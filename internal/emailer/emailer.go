// Package emailer sends templated notifications. Delivery is best effort:
// callers log failures and carry on.
package emailer

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Templates known to the hub.
const (
	TemplateDriveJoined          = "Drive/Joined"
	TemplateDriveInvitation      = "Drive/Invitation"
	TemplateDrivePlainInvitation = "Drive/Plain Invitation"
	TemplateCrashReport          = "Internal/Crash Report"
	TemplatePassportError        = "Internal/Passport Generation Error"
	TemplateWelcome              = "User/Welcome"
	TemplateConfirmEmail         = "User/Confirmation Email"
	TemplateNewCustomer          = "Sales/New Customer"
)

// Recipient is the addressee of a message.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Attachment is a file sent along a message.
type Attachment struct {
	Name    string
	Content []byte
}

// Message is one templated email.
type Message struct {
	Template    string
	To          Recipient
	Variables   map[string]any
	Attachments []Attachment
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NoOp drops every message.
type NoOp struct{}

// Send implements Sender.
func (NoOp) Send(context.Context, Message) error { return nil }

// Logging writes every message to a logger instead of delivering it. The
// templates table maps template names to the identifiers of the delivery
// provider; unmapped names are logged as is.
type Logging struct {
	logger    zerolog.Logger
	templates map[string]string
}

// NewLogging returns a logging sender.
func NewLogging(logger zerolog.Logger, templates map[string]string) *Logging {
	return &Logging{logger: logger.With().Str("component", "emailer").Logger(), templates: templates}
}

// Send implements Sender.
func (l *Logging) Send(_ context.Context, msg Message) error {
	template := msg.Template
	if id, ok := l.templates[template]; ok {
		template = id
	}
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	l.logger.Info().
		Str("template", template).
		Str("to", msg.To.Email).
		Interface("variables", msg.Variables).
		Strs("attachments", names).
		Msg("email")
	return nil
}

// Recorder keeps every message in memory. Tests use it to assert on
// notifications; Err, when set, is returned by Send after recording.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

// Send implements Sender.
func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.Err
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

// ByTemplate returns the recorded messages using template.
func (r *Recorder) ByTemplate(template string) []Message {
	var out []Message
	for _, m := range r.Sent() {
		if m.Template == template {
			out = append(out, m)
		}
	}
	return out
}
