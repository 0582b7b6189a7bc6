package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Dispatcher informs users about something that happened to them. Delivery
// is best effort.
type Dispatcher interface {
	Notify(ctx context.Context, userIDs []string, message string, metadata map[string]string) error
}

type Notification struct {
	ID        string            `json:"id"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Envelope is the wire form shared by the websocket, Redis and AMQP paths.
type Envelope struct {
	UserIDs      []string     `json:"userIds"`
	Notification Notification `json:"notification"`
}

func NewEnvelope(userIDs []string, message string, metadata map[string]string) Envelope {
	return Envelope{
		UserIDs: userIDs,
		Notification: Notification{
			ID:        uuid.NewString(),
			Message:   message,
			Metadata:  metadata,
			CreatedAt: time.Now().UTC(),
		},
	}
}

// Multi notifies through every dispatcher and joins their errors.
type Multi []Dispatcher

func (m Multi) Notify(ctx context.Context, userIDs []string, message string, metadata map[string]string) error {
	var errs []error
	for _, d := range m {
		if err := d.Notify(ctx, userIDs, message, metadata); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, []string, string, map[string]string) error { return nil }
