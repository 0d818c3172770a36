// Package events describes state changes and fans them out to subscribers.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Entities.
const (
	EntityProject         = "project"
	EntityVendor          = "vendor"
	EntityMaterial        = "material"
	EntityInventory       = "inventory"
	EntityTransferRequest = "transfer_request"
	EntityMaterialRequest = "material_request"
	EntityNote            = "note"
	EntityPastProject     = "past_project"
	EntityMedia           = "media"
	EntityWallet          = "wallet"
	EntityReferral        = "referral"
)

// Actions.
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionApproved = "approved"
	ActionRejected = "rejected"
	ActionUploaded = "uploaded"
)

// Event is a state change notification.
type Event struct {
	Type       string    `json:"type"`
	Entity     string    `json:"entity"`
	Action     string    `json:"action"`
	ID         int64     `json:"id,omitempty"`
	ProjectIDs []int64   `json:"project_ids,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	At         time.Time `json:"at"`
}

// New creates an Event with Type derived from entity and action.
func New(entity, action string, id int64, projectIDs ...int64) Event {
	return Event{
		Type:       entity + "_" + action,
		Entity:     entity,
		Action:     action,
		ID:         id,
		ProjectIDs: projectIDs,
		At:         time.Now().UTC(),
	}
}

// By sets the user that caused the event.
func (e Event) By(username string) Event {
	e.Actor = username
	return e
}

// Publisher delivers events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher, collecting all failures.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log publishes events to a logger at debug level.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Publish(ctx context.Context, e Event) error {
	l.Logger.DebugContext(ctx, "event", "type", e.Type, "id", e.ID, "projects", e.ProjectIDs, "actor", e.Actor)
	return nil
}

// Emit publishes e and logs failures. Callers never fail on publishing.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		slog.Warn("publishing event failed", "type", e.Type, "id", e.ID, "error", err)
	}
}
