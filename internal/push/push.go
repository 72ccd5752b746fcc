// Package push notifies participants who are not watching a conversation.
// Dispatch happens off the send path: failures are logged and counted, never
// returned to the caller.
package push

import (
	"context"
	"strconv"
	"time"

	"socialdm/backend/internal/localization"
	"socialdm/backend/internal/metrics"
	"socialdm/backend/internal/models"

	"github.com/rs/zerolog"
)

const previewLength = 120

// TokenSource lists the push addresses of a user.
type TokenSource interface {
	GetActiveTokens(ctx context.Context, userID string) ([]string, error)
}

// Sender hands one notification to the provider for every token.
type Sender interface {
	SendBulk(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// Profiles resolves the recipient's language.
type Profiles interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// Notification describes a message someone has not seen yet.
type Notification struct {
	RecipientID string
	RoomID      string
	MessageID   uint
	SenderID    string
	SenderName  string
	Preview     string
}

type Dispatcher struct {
	tokens   TokenSource
	sender   Sender
	profiles Profiles
	loc      *localization.Localizer
	timeout  time.Duration
	log      zerolog.Logger
}

func NewDispatcher(tokens TokenSource, sender Sender, profiles Profiles, loc *localization.Localizer, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		tokens:   tokens,
		sender:   sender,
		profiles: profiles,
		loc:      loc,
		timeout:  timeout,
		log:      logger.With().Str("component", "push").Logger(),
	}
}

// NotifyOffline returns immediately. The delivery runs in its own goroutine
// with its own deadline, detached from ctx so a closing connection does not
// cancel it.
func (d *Dispatcher) NotifyOffline(ctx context.Context, n Notification) {
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.deliver(sendCtx, n)
	}()
}

// deliver is the synchronous part of NotifyOffline.
func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	log := d.log.With().
		Str("user_id", n.RecipientID).
		Str("room_id", n.RoomID).
		Uint("message_id", n.MessageID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			metrics.PushFailures.WithLabelValues("panic").Inc()
			log.Error().Interface("panic", r).Msg("push dispatch panicked")
		}
	}()

	tokens, err := d.tokens.GetActiveTokens(ctx, n.RecipientID)
	if err != nil {
		metrics.PushFailures.WithLabelValues("tokens").Inc()
		log.Warn().Err(err).Msg("failed to load push tokens")
		return
	}
	if len(tokens) == 0 {
		return
	}

	title, body := d.render(ctx, n)
	data := map[string]string{
		"type":       models.EventMessageNotification,
		"room_id":    n.RoomID,
		"message_id": strconv.FormatUint(uint64(n.MessageID), 10),
		"sender_id":  n.SenderID,
	}

	if err := d.sender.SendBulk(ctx, tokens, title, body, data); err != nil {
		metrics.PushFailures.WithLabelValues("send").Inc()
		log.Warn().Err(err).Int("tokens", len(tokens)).Msg("push send failed")
		return
	}
	metrics.PushSent.Inc()
	log.Debug().Int("tokens", len(tokens)).Msg("push sent")
}

func (d *Dispatcher) render(ctx context.Context, n Notification) (string, string) {
	lang := localization.DefaultLanguage
	if d.profiles != nil {
		if u, err := d.profiles.GetUserByID(ctx, n.RecipientID); err == nil && u.Language != "" {
			lang = u.Language
		}
	}

	if d.loc == nil {
		return n.SenderName, n.Preview
	}

	sender := n.SenderName
	if sender == "" {
		sender = d.loc.GetString(lang, "push.unknown_sender")
	}
	preview := n.Preview
	if preview == "" || preview == models.AttachmentPreview {
		preview = d.loc.GetString(lang, "push.attachment")
	}
	if r := []rune(preview); len(r) > previewLength {
		preview = string(r[:previewLength]) + "…"
	}

	title := d.loc.Format(lang, "push.new_message.title", map[string]string{"sender": sender})
	body := d.loc.Format(lang, "push.new_message.body", map[string]string{"preview": preview, "sender": sender})
	return title, body
}
