package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/logger"
	"github.com/questlog/questlog/internal/messaging"
	"github.com/questlog/questlog/internal/providers/directory"
	"github.com/questlog/questlog/internal/store"
	"github.com/questlog/questlog/internal/store/schema"
)

// Dispatcher defines the interface for notification delivery to enable mocking
type Dispatcher interface {
	// Dispatch delivers one event to the user over email and push. Channels
	// are attempted independently and never retried; the result reports the
	// per-channel outcome.
	Dispatch(ctx context.Context, user *schema.User, event domain.LibraryEvent) domain.DispatchResult
}

// dispatcher is the implementation of the Dispatcher interface
type dispatcher struct {
	store     store.Store
	directory directory.Client
	mailer    adapter.Mailer
	pusher    Pusher
	publisher messaging.Publisher
	smtpCfg   config.SMTPConfig
	pushCfg   config.PushConfig
}

// NewDispatcher creates a new notification dispatcher. The publisher is
// optional; when nil no broker events are published.
func NewDispatcher(
	st store.Store,
	dir directory.Client,
	mailer adapter.Mailer,
	pusher Pusher,
	publisher messaging.Publisher,
	smtpCfg config.SMTPConfig,
	pushCfg config.PushConfig,
) Dispatcher {
	return &dispatcher{
		store:     st,
		directory: dir,
		mailer:    mailer,
		pusher:    pusher,
		publisher: publisher,
		smtpCfg:   smtpCfg,
		pushCfg:   pushCfg,
	}
}

// Dispatch delivers one event to the user over email and push
func (d *dispatcher) Dispatch(ctx context.Context, user *schema.User, event domain.LibraryEvent) domain.DispatchResult {
	msg := render(event)

	result := domain.DispatchResult{
		Email: d.sendEmail(ctx, user, msg),
		Push:  d.sendPush(ctx, user, msg),
	}

	// Broker publication is best-effort and never affects channel outcomes
	if d.publisher != nil {
		if err := d.publisher.PublishEvent(ctx, &event); err != nil {
			logger.WarnCtx(ctx, "failed to publish library event",
				zap.String("username", user.Username),
				zap.Error(err))
		}
	}

	return result
}

// sendEmail resolves the recipient and attempts one delivery. The recipient
// chain is the user's stored email, then a directory lookup, then the
// configured default address.
func (d *dispatcher) sendEmail(ctx context.Context, user *schema.User, msg message) domain.ChannelOutcome {
	if d.smtpCfg.Host == "" || d.smtpCfg.From == "" {
		return domain.ChannelOutcome{Status: domain.ChannelSkipped, Detail: "smtp not configured"}
	}

	recipient := d.resolveEmail(ctx, user)
	if recipient == "" {
		return domain.ChannelOutcome{Status: domain.ChannelSkipped, Detail: "no recipient email"}
	}

	mail := adapter.Mail{
		From:    d.smtpCfg.From,
		To:      recipient,
		Subject: msg.subject,
		Body:    msg.text,
	}
	if err := d.mailer.Send(ctx, mail); err != nil {
		logger.WarnCtx(ctx, "failed to send notification email",
			zap.String("username", user.Username),
			zap.String("subject", msg.subject),
			zap.Error(err))
		return domain.ChannelOutcome{Status: domain.ChannelFailed, Detail: err.Error()}
	}

	return domain.ChannelOutcome{Status: domain.ChannelSent, Detail: recipient}
}

// resolveEmail returns the recipient address for the user. An address learned
// from the directory is written back to the user row so the next dispatch
// skips the lookup.
func (d *dispatcher) resolveEmail(ctx context.Context, user *schema.User) string {
	if user.Email != nil && *user.Email != "" {
		return *user.Email
	}

	if d.directory != nil && d.directory.Enabled() {
		entry, err := d.directory.Lookup(ctx, user.Username)
		if err != nil {
			logger.WarnCtx(ctx, "directory email lookup failed",
				zap.String("username", user.Username),
				zap.Error(err))
		} else if entry.Email != nil && *entry.Email != "" {
			if err := d.store.UpdateUserEmail(ctx, user.ID, entry.Email); err != nil {
				logger.WarnCtx(ctx, "failed to store directory email",
					zap.String("username", user.Username),
					zap.Error(err))
			}
			return *entry.Email
		}
	}

	return d.smtpCfg.DefaultEmail
}

// sendPush attempts one push delivery to the user's topic, falling back to
// the global topic
func (d *dispatcher) sendPush(ctx context.Context, user *schema.User, msg message) domain.ChannelOutcome {
	if d.pushCfg.ServerURL == "" {
		return domain.ChannelOutcome{Status: domain.ChannelSkipped, Detail: "push not configured"}
	}

	topic := d.pushCfg.DefaultTopic
	if user.PushTopic != nil && *user.PushTopic != "" {
		topic = *user.PushTopic
	}
	if topic == "" {
		return domain.ChannelOutcome{Status: domain.ChannelSkipped, Detail: "no push topic"}
	}

	if err := d.pusher.Push(ctx, topic, msg.title, msg.body); err != nil {
		logger.WarnCtx(ctx, "failed to send push notification",
			zap.String("username", user.Username),
			zap.String("topic", topic),
			zap.Error(err))
		return domain.ChannelOutcome{Status: domain.ChannelFailed, Detail: err.Error()}
	}

	return domain.ChannelOutcome{Status: domain.ChannelSent, Detail: topic}
}
