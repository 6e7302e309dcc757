package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stockledger/internal/model"
	"stockledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HistoryQuery selects movements of one product. From is inclusive, To exclusive.
type HistoryQuery struct {
	ProductID uuid.UUID
	BranchID  *uuid.UUID
	From      *time.Time
	To        *time.Time
	// Cursor resumes after the last movement of a previous page.
	Cursor string
	Limit  int
}

type HistoryPage struct {
	Movements  []model.Movement `json:"movements"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// MovementRecorder appends movements and serves the ordered history
type MovementRecorder struct {
	tx repository.TransactionManager
}

func NewMovementRecorder(tx repository.TransactionManager) *MovementRecorder {
	return &MovementRecorder{tx: tx}
}

// Append inserts the movement inside uow and returns its id
func (r *MovementRecorder) Append(ctx context.Context, uow repository.UnitOfWork, movement *model.Movement) (int64, error) {
	if err := uow.Movements().Create(ctx, movement); err != nil {
		return 0, fmt.Errorf("failed to record movement: %w", err)
	}
	return movement.ID, nil
}

// History returns one page ordered by (occurred_at, id) ascending
func (r *MovementRecorder) History(ctx context.Context, q HistoryQuery) (HistoryPage, error) {
	reader := r.tx.Reader()
	if _, err := reader.Products().FindByID(ctx, q.ProductID); err != nil {
		return HistoryPage{}, notFound(err, "product", q.ProductID)
	}
	if q.BranchID != nil {
		if _, err := reader.Branches().FindByID(ctx, *q.BranchID); err != nil {
			return HistoryPage{}, notFound(err, "branch", *q.BranchID)
		}
	}
	return r.page(ctx, reader, q)
}

func (r *MovementRecorder) page(ctx context.Context, reader repository.UnitOfWork, q HistoryQuery) (HistoryPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	filter := repository.MovementFilter{
		ProductID: q.ProductID,
		BranchID:  q.BranchID,
		From:      q.From,
		To:        q.To,
		Limit:     limit + 1,
	}
	if q.Cursor != "" {
		after, err := DecodeCursor(q.Cursor)
		if err != nil {
			return HistoryPage{}, err
		}
		filter.After = &after
	}

	movements, err := reader.Movements().List(ctx, filter)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("failed to list movements: %w", err)
	}

	page := HistoryPage{Movements: movements}
	if len(movements) > limit {
		page.Movements = movements[:limit]
		last := page.Movements[limit-1]
		page.NextCursor = EncodeCursor(repository.MovementCursor{OccurredAt: last.OccurredAt, ID: last.ID})
	}
	if page.Movements == nil {
		page.Movements = []model.Movement{}
	}
	return page, nil
}

// StreamHistory walks every page of q, calling fn per movement in order.
// It stops at the first error from fn or from ctx.
func (r *MovementRecorder) StreamHistory(ctx context.Context, q HistoryQuery, fn func(model.Movement) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.History(ctx, q)
		if err != nil {
			return err
		}
		for _, m := range page.Movements {
			if err := fn(m); err != nil {
				return err
			}
		}
		if page.NextCursor == "" {
			return nil
		}
		q.Cursor = page.NextCursor
	}
}

// SignedSum totals the signed quantities recorded for one balance
func (r *MovementRecorder) SignedSum(ctx context.Context, uow repository.UnitOfWork, key model.StockKey) (decimal.Decimal, error) {
	sum, err := uow.Movements().SignedSum(ctx, key)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum movements: %w", err)
	}
	return sum, nil
}

// EncodeCursor renders the position after which the next page starts
func EncodeCursor(c repository.MovementCursor) string {
	raw := strconv.FormatInt(c.OccurredAt.UnixNano(), 10) + ":" + strconv.FormatInt(c.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (repository.MovementCursor, error) {
	invalid := &ValidationError{Field: "cursor", Details: "malformed"}

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return repository.MovementCursor{}, invalid
	}
	nanos, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return repository.MovementCursor{}, invalid
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return repository.MovementCursor{}, invalid
	}
	movementID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return repository.MovementCursor{}, invalid
	}
	return repository.MovementCursor{OccurredAt: time.Unix(0, n).UTC(), ID: movementID}, nil
}
