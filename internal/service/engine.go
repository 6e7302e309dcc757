package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockledger/internal/model"
	"stockledger/internal/repository"
	ws "stockledger/internal/websocket"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BranchAccessGuard answers branch scoped permission questions for the engine
type BranchAccessGuard interface {
	CanMutate(ctx context.Context, actor model.Actor, branchID uuid.UUID) (bool, error)
	IsFullAccess(ctx context.Context, actor model.Actor, branchID uuid.UUID) (bool, error)
	IsSuperAdmin(ctx context.Context, actor model.Actor) (bool, error)
}

// Notifier receives events after a unit of work commits
type Notifier interface {
	Publish(event ws.Event)
}

type noopNotifier struct{}

func (noopNotifier) Publish(ws.Event) {}

// Clock supplies the timestamp recorded on movements and status changes
type Clock func() time.Time

// Options carries the collaborators shared by every engine service.
// Zero values get sensible defaults via withDefaults.
type Options struct {
	Tx       repository.TransactionManager
	Guard    BranchAccessGuard
	Notifier Notifier
	Log      *logrus.Logger
	Clock    Clock
}

func (o Options) withDefaults() Options {
	if o.Notifier == nil {
		o.Notifier = noopNotifier{}
	}
	if o.Log == nil {
		o.Log = logrus.New()
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// requireMutate fails with ForbiddenError unless the actor may mutate every branch
func requireMutate(ctx context.Context, guard BranchAccessGuard, actor model.Actor, branchIDs ...uuid.UUID) error {
	super, err := guard.IsSuperAdmin(ctx, actor)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if super {
		return nil
	}
	for _, branchID := range branchIDs {
		ok, err := guard.CanMutate(ctx, actor, branchID)
		if err != nil {
			return fmt.Errorf("failed to check branch access: %w", err)
		}
		if !ok {
			return &ForbiddenError{UserID: actor.UserID, BranchID: branchID}
		}
	}
	return nil
}

// writeAudit records the action in the same unit of work as the change itself
func writeAudit(ctx context.Context, uow repository.UnitOfWork, actor model.Actor, action, entityID, entityName string, details interface{}) error {
	var uid *uuid.UUID
	if actor.UserID != uuid.Nil {
		id := actor.UserID
		uid = &id
	}

	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := uow.Audit().Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// stockEvents turns committed movements into websocket events
func stockEvents(movements []model.Movement) []ws.Event {
	events := make([]ws.Event, 0, len(movements))
	for _, m := range movements {
		events = append(events, ws.Event{
			Event: "stock_changed",
			Data: map[string]interface{}{
				"product_id":     m.ProductID.String(),
				"branch_id":      m.BranchID.String(),
				"movement_id":    m.ID,
				"movement_type":  m.Type,
				"qty":            m.Signed().String(),
				"current_stock":  m.StockAfter.String(),
				"reference_type": m.ReferenceType,
				"reference_id":   m.ReferenceID.String(),
			},
		})
	}
	return events
}

func publishAll(n Notifier, events []ws.Event) {
	for _, e := range events {
		n.Publish(e)
	}
}
