// Package notify delivers school notifications to users by email and
// Telegram, one at a time or as digests.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hkschools/admission-monitor/internal/models"
)

const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

// ErrNoChannel is returned by Deliver when the user has no channel that could
// be attempted. The notifications were not sent anywhere.
var ErrNoChannel = errors.New("no delivery channel available")

// Notifier delivers a batch of notifications to one user. A nil error means
// at least one channel was attempted and every attempted channel accepted the
// message.
type Notifier interface {
	Deliver(ctx context.Context, user models.User, notes []models.Notification) error
}

// Mailer sends a rendered email.
type Mailer interface {
	Enabled() bool
	Send(ctx context.Context, to string, msg Message) error
}

// Pusher sends a push message to a chat.
type Pusher interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// DeliveryRecorder observes each channel attempt.
type DeliveryRecorder interface {
	Delivered(channel string, err error)
}

// Dispatcher fans notifications out to the channels a user enabled. Users
// without an enabled channel still see notifications through the API.
type Dispatcher struct {
	renderer *Renderer
	mailer   Mailer
	pusher   Pusher
	recorder DeliveryRecorder
	log      *zap.Logger
}

// NewDispatcher wires the channels. pusher and recorder may be nil.
func NewDispatcher(renderer *Renderer, mailer Mailer, pusher Pusher, recorder DeliveryRecorder, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{renderer: renderer, mailer: mailer, pusher: pusher, recorder: recorder, log: log.Named("notify")}
}

func (d *Dispatcher) Deliver(ctx context.Context, user models.User, notes []models.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	var errs []error
	attempted := 0

	if user.Preferences.Email && d.mailer != nil && d.mailer.Enabled() {
		attempted++
		msg, err := d.renderer.Digest(user, notes)
		if err == nil {
			err = d.mailer.Send(ctx, user.Email, msg)
		}
		d.record(ChannelEmail, err)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if user.Preferences.Push && user.Preferences.TelegramChatID != 0 && d.pusher != nil {
		attempted++
		err := d.pusher.Send(ctx, user.Preferences.TelegramChatID, TelegramText(notes))
		d.record(ChannelTelegram, err)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if attempted == 0 {
		return ErrNoChannel
	}
	if err := errors.Join(errs...); err != nil {
		d.log.Warn("delivery failed", zap.String("user_id", user.ID.String()),
			zap.Int("notifications", len(notes)), zap.Error(err))
		return err
	}
	return nil
}

// SendTest emails the configuration check message to addr.
func (d *Dispatcher) SendTest(ctx context.Context, addr string) error {
	if d.mailer == nil || !d.mailer.Enabled() {
		return ErrEmailDisabled
	}
	err := d.mailer.Send(ctx, addr, d.renderer.Test(time.Now()))
	d.record(ChannelEmail, err)
	return err
}

func (d *Dispatcher) record(channel string, err error) {
	if d.recorder != nil {
		d.recorder.Delivered(channel, err)
	}
}

// DigestDue reports whether a user's pending notifications should go out now.
// oldest is the creation time of the oldest pending notification.
func DigestDue(freq models.DigestFrequency, oldest, now time.Time) bool {
	switch freq {
	case models.DigestDaily:
		return now.Sub(oldest) >= 24*time.Hour
	case models.DigestWeekly:
		return now.Sub(oldest) >= 7*24*time.Hour
	default:
		return true
	}
}
