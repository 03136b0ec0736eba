package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/hr-approval/internal/application/dispatcher"
	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/domain/entity"
	"github.com/garyjia/hr-approval/internal/domain/event"
)

// ChannelInbox marks notifications stored for in-app reading only
const ChannelInbox = "inbox"

const (
	DefaultMaxAttempts = 5
	DefaultRetryAfter  = time.Minute
)

// NotificationService turns engine events into per-recipient notifications
type NotificationService interface {
	// Register subscribes the service to every engine event
	Register(d dispatcher.Dispatcher)

	HandleEvent(ctx context.Context, evt *event.Event) error

	// RetryPending re-sends undelivered notifications that are older than the
	// retry delay and still below the attempt cap
	RetryPending(ctx context.Context, limit int) (int, error)

	ListForInstance(ctx context.Context, instanceID int64) ([]*entity.Notification, error)
}

type notificationServiceImpl struct {
	notifications port.NotificationRepository
	messenger     port.Messenger
	clock         port.Clock
	logger        Logger

	maxAttempts int
	retryAfter  time.Duration
}

// NotificationOption configures the notification service
type NotificationOption func(*notificationServiceImpl)

// WithNotificationClock sets the clock used for notification timestamps
func WithNotificationClock(clock port.Clock) NotificationOption {
	return func(s *notificationServiceImpl) { s.clock = clock }
}

// WithRetryPolicy caps delivery attempts per notification and sets how long a
// notification must sit untouched before RetryPending picks it up
func WithRetryPolicy(maxAttempts int, retryAfter time.Duration) NotificationOption {
	return func(s *notificationServiceImpl) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if retryAfter > 0 {
			s.retryAfter = retryAfter
		}
	}
}

// NewNotificationService creates a new NotificationService. messenger may be
// nil, in which case notifications are only stored.
func NewNotificationService(notifications port.NotificationRepository, messenger port.Messenger, logger Logger, opts ...NotificationOption) NotificationService {
	s := &notificationServiceImpl{
		notifications: notifications,
		messenger:     messenger,
		clock:         port.SystemClock{},
		logger:        logger,
		maxAttempts:   DefaultMaxAttempts,
		retryAfter:    DefaultRetryAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll("notification-service", s.HandleEvent)
}

func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	recipients := evt.GetPayloadStrings(event.KeyRecipients)
	if len(recipients) == 0 {
		return nil
	}

	message := FormatMessage(evt)
	channel, attempts := ChannelInbox, 0
	if s.messenger != nil {
		// the immediate send below is the first attempt
		channel, attempts = s.messenger.Channel(), 1
	}

	var errs []error
	for _, recipient := range recipients {
		now := s.clock.Now().UTC()
		n := &entity.Notification{
			InstanceID:  evt.InstanceID,
			EventType:   evt.Type.String(),
			RecipientID: recipient,
			Message:     message,
			Status:      entity.NotificationStatusPending,
			Channel:     channel,
			Attempts:    attempts,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			s.logger.Error("Failed to store notification", "instance_id", evt.InstanceID, "recipient_id", recipient, "error", err)
			errs = append(errs, fmt.Errorf("store notification for %s: %w", recipient, err))
			continue
		}
		if s.messenger == nil {
			continue
		}
		if err := s.deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *notificationServiceImpl) RetryPending(ctx context.Context, limit int) (int, error) {
	if s.messenger == nil {
		return 0, nil
	}

	now := s.clock.Now().UTC()
	pending, err := s.notifications.GetRetryable(ctx, port.RetryQuery{
		UpdatedBefore: now.Add(-s.retryAfter),
		MaxAttempts:   s.maxAttempts,
		Limit:         limit,
	})
	if err != nil {
		return 0, fmt.Errorf("get pending notifications: %w", err)
	}

	sent := 0
	for _, n := range pending {
		claimed, err := s.notifications.Claim(ctx, n.ID, n.Attempts, now)
		if err != nil {
			s.logger.Error("Failed to claim notification", "notification_id", n.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		n.Attempts++
		if err := s.deliver(ctx, n); err == nil {
			sent++
		}
	}
	return sent, nil
}

func (s *notificationServiceImpl) ListForInstance(ctx context.Context, instanceID int64) ([]*entity.Notification, error) {
	list, err := s.notifications.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// deliver sends one stored notification and records the outcome. Failures are
// logged and recorded, never escalated to the engine.
func (s *notificationServiceImpl) deliver(ctx context.Context, n *entity.Notification) error {
	messageID, err := s.messenger.SendText(ctx, n.RecipientID, n.Message)
	if err != nil {
		s.logger.Error("Failed to deliver notification",
			"notification_id", n.ID,
			"recipient_id", n.RecipientID,
			"channel", s.messenger.Channel(),
			"attempt", n.Attempts,
			"error", err,
		)
		if markErr := s.notifications.MarkFailed(ctx, n.ID, err.Error(), s.clock.Now()); markErr != nil {
			s.logger.Error("Failed to mark notification failed", "notification_id", n.ID, "error", markErr)
		}
		return fmt.Errorf("deliver notification %d: %w", n.ID, err)
	}

	if err := s.notifications.MarkSent(ctx, n.ID, messageID, s.clock.Now()); err != nil {
		s.logger.Error("Failed to mark notification sent", "notification_id", n.ID, "error", err)
		return fmt.Errorf("mark notification %d sent: %w", n.ID, err)
	}

	s.logger.Info("Notification delivered",
		"notification_id", n.ID,
		"recipient_id", n.RecipientID,
		"message_id", messageID,
	)
	return nil
}

// FormatMessage renders the human-readable text for an event
func FormatMessage(evt *event.Event) string {
	subject := fmt.Sprintf("%s request %s", evt.GetPayloadString(event.KeyEntityType), evt.GetPayloadString(event.KeyEntityID))
	step := evt.GetPayloadInt(event.KeyStepOrder)

	switch evt.Type {
	case event.TypeInstanceCreated:
		return fmt.Sprintf("Your %s was submitted for approval.", subject)
	case event.TypeStepActivated:
		return fmt.Sprintf("The %s is waiting for your decision at step %d.", subject, step)
	case event.TypeStepSkipped:
		return fmt.Sprintf("Step %d of your %s was skipped because no approver is available.", step, subject)
	case event.TypeStepSoftRejected:
		msg := fmt.Sprintf("An optional reviewer rejected step %d of your %s. Approval continues.", step, subject)
		if c := evt.GetPayloadString(event.KeyComments); c != "" {
			msg += " Comment: " + c
		}
		return msg
	case event.TypeStepDelegated:
		return fmt.Sprintf("%s delegated step %d of the %s to you.", evt.GetPayloadString(event.KeyActorID), step, subject)
	case event.TypeStepAutoApproved:
		return fmt.Sprintf("Step %d of your %s was approved automatically after its timeout.", step, subject)
	case event.TypeInstanceApproved:
		return fmt.Sprintf("Your %s was approved.", subject)
	case event.TypeInstanceRejected:
		msg := fmt.Sprintf("Your %s was rejected at step %d.", subject, step)
		if c := evt.GetPayloadString(event.KeyComments); c != "" {
			msg += " Comment: " + c
		}
		return msg
	case event.TypeInstanceCancelled:
		msg := fmt.Sprintf("The %s was cancelled.", subject)
		if r := evt.GetPayloadString(event.KeyReason); r != "" {
			msg += " Reason: " + r
		}
		return msg
	default:
		return fmt.Sprintf("Update on %s: %s.", subject, evt.Type)
	}
}
