package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/angelmondragon/poflow-backend/pkg/postcommit"
)

// Event is the payload published for downstream delivery (email, in-app).
type Event struct {
	ID                uuid.UUID              `json:"id"`
	Type              enums.NotificationType `json:"type"`
	OrganizationID    uuid.UUID              `json:"organization_id"`
	RecipientID       uuid.UUID              `json:"recipient_id"`
	PurchaseOrderID   *uuid.UUID             `json:"purchase_order_id,omitempty"`
	ApprovalRequestID *uuid.UUID             `json:"approval_request_id,omitempty"`
	Data              map[string]any         `json:"data,omitempty"`
	OccurredAt        time.Time              `json:"occurred_at"`
}

// Notifier delivers events to recipients.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// PubSubNotifier publishes events as JSON messages on the notification topic.
type PubSubNotifier struct {
	publisher publisher
	logg      *logger.Logger
}

// NewPubSubNotifier wires the topic publisher.
func NewPubSubNotifier(pub publisher, logg *logger.Logger) (*PubSubNotifier, error) {
	if pub == nil {
		return nil, fmt.Errorf("notification publisher required")
	}
	return &PubSubNotifier{publisher: pub, logg: logg}, nil
}

func (n *PubSubNotifier) Notify(ctx context.Context, event Event) error {
	event = normalize(event)
	if !event.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown notification type")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode notification")
	}
	attrs := map[string]string{
		"event_type":      event.Type.String(),
		"organization_id": event.OrganizationID.String(),
		"recipient_id":    event.RecipientID.String(),
	}
	msgID, err := n.publisher.Publish(ctx, payload, attrs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish notification")
	}
	if n.logg != nil {
		logCtx := n.logg.WithFields(ctx, map[string]any{
			"event_type": event.Type.String(),
			"event_id":   event.ID.String(),
			"message_id": msgID,
		})
		n.logg.Debug(logCtx, "notification published")
	}
	return nil
}

// LogNotifier records events in the log only. Used when delivery is disabled.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	if n.logg == nil {
		return nil
	}
	event = normalize(event)
	logCtx := n.logg.WithFields(ctx, map[string]any{
		"event_type":   event.Type.String(),
		"recipient_id": event.RecipientID.String(),
	})
	n.logg.Info(logCtx, "notification delivery disabled")
	return nil
}

// Hook wraps delivery of event as a post-commit hook.
func Hook(n Notifier, event Event) postcommit.Hook {
	return postcommit.Hook{
		Name: "notify:" + event.Type.String(),
		Fn: func(ctx context.Context) error {
			return n.Notify(ctx, event)
		},
	}
}

func normalize(event Event) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return event
}
