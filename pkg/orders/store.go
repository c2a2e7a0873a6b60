package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blackhole-dca/dcaengine/pkg/dcaerr"
)

// Store is the Order Store's contract: create, list/get, the scheduler's
// per-tick claim, and the terminal-state mutations. The per-order Mark*
// mutations are serialized via an optimistic compare-and-set on UpdatedAt;
// SweepExpired is a single bulk update conditioned on status.
type Store interface {
	Create(ctx context.Context, req CreateRequest) (Order, error)
	List(ctx context.Context, ownerKey string, filter Filter) ([]Order, error)
	Get(ctx context.Context, ownerKey string, id uuid.UUID) (Order, error)
	ClaimForTick(ctx context.Context) ([]Order, error)
	MarkPrimed(ctx context.Context, id uuid.UUID) error
	MarkExecuted(ctx context.Context, id uuid.UUID, txHash string, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	MarkCancelled(ctx context.Context, ownerKey string, id uuid.UUID) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	CountActive(ctx context.Context, ownerKey string) (int64, error)
}

// GormStore is the Order Store implementation, grounded on the same
// GORM-over-a-single-table shape used for transaction recording: one model,
// AutoMigrate at construction, varchar(78) columns for every big.Int-valued
// field.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens db (already connected, e.g. via mysql.Open or
// sqlite.Open) and migrates the orders table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Order{}); err != nil {
		return nil, fmt.Errorf("orders: migrating schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Create inserts order after enforcing the per-owner active-order cap.
func (s *GormStore) Create(ctx context.Context, req CreateRequest) (Order, error) {
	var order Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&Order{}).
			Where("owner_key = ? AND status = ?", req.OwnerKey, StatusActive).
			Count(&active).Error; err != nil {
			return fmt.Errorf("counting active orders: %w", err)
		}
		if active >= MaxActivePerOwner {
			return dcaerr.New(dcaerr.QuotaExceeded, "owner has reached the active-order cap")
		}

		expiresAt := time.Now().Add(DefaultExpiry)
		if req.ExpiresAt != nil {
			expiresAt = *req.ExpiresAt
		}

		order = Order{
			ID:               uuid.New(),
			Owner:            req.OwnerKey,
			Status:           StatusActive,
			FromSymbol:       req.FromSymbol,
			ToSymbol:         req.ToSymbol,
			FromAmountRaw:    req.FromAmountRaw.String(),
			TriggerPrice:     req.TriggerPrice,
			TriggerCondition: req.TriggerCondition,
			MaxSlippageBps:   req.MaxSlippageBps,
			ExpiresAt:        expiresAt,
		}
		return tx.Create(&order).Error
	})
	if err != nil {
		var derr *dcaerr.Error
		if errors.As(err, &derr) {
			return Order{}, err
		}
		return Order{}, dcaerr.Wrap(dcaerr.UpstreamError, "creating order", err)
	}
	return order, nil
}

// List returns ownerKey's orders matching filter, newest-first by default.
func (s *GormStore) List(ctx context.Context, ownerKey string, filter Filter) ([]Order, error) {
	q := s.db.WithContext(ctx).Where("owner_key = ?", ownerKey)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	q = q.Order("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var out []Order
	if err := q.Find(&out).Error; err != nil {
		return nil, dcaerr.Wrap(dcaerr.UpstreamError, "listing orders", err)
	}
	return out, nil
}

// Get fetches one order, scoped to ownerKey so a caller can never read
// another owner's order by guessing an id.
func (s *GormStore) Get(ctx context.Context, ownerKey string, id uuid.UUID) (Order, error) {
	var order Order
	err := s.db.WithContext(ctx).Where("id = ? AND owner_key = ?", id, ownerKey).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, dcaerr.New(dcaerr.NotFound, "order not found")
	}
	if err != nil {
		return Order{}, dcaerr.Wrap(dcaerr.UpstreamError, "reading order", err)
	}
	return order, nil
}

// ClaimForTick returns active, non-expired orders whose retry-count has not
// yet reached MaxRetries, ordered by created-at ascending, for one
// Scheduler tick.
func (s *GormStore) ClaimForTick(ctx context.Context) ([]Order, error) {
	var out []Order
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at > ? AND retry_count < ?", StatusActive, time.Now(), MaxRetries).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, dcaerr.Wrap(dcaerr.UpstreamError, "claiming orders for tick", err)
	}
	return out, nil
}

// MarkPrimed sets Primed true, the first tick at which is_ready held.
func (s *GormStore) MarkPrimed(ctx context.Context, id uuid.UUID) error {
	return s.casUpdate(ctx, id, map[string]interface{}{"primed": true})
}

// MarkExecuted transitions an active order to Executed, recording the
// inclusion tx hash and timestamp.
func (s *GormStore) MarkExecuted(ctx context.Context, id uuid.UUID, txHash string, at time.Time) error {
	return s.casUpdate(ctx, id, map[string]interface{}{
		"status":            StatusExecuted,
		"executed_at":       at,
		"execution_tx_hash": txHash,
	})
}

// MarkFailed increments retry-count and records reason; once retry-count
// reaches MaxRetries the order becomes terminally Failed.
func (s *GormStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	var order Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return dcaerr.Wrap(dcaerr.UpstreamError, "reading order before marking failed", err)
	}

	updates := map[string]interface{}{
		"retry_count":         order.RetryCount + 1,
		"last_failure_reason": reason,
	}
	if order.RetryCount+1 >= MaxRetries {
		updates["status"] = StatusFailed
	}
	return s.casUpdate(ctx, id, updates)
}

// MarkCancelled cancels an order, owner-scoped, only from StatusActive.
func (s *GormStore) MarkCancelled(ctx context.Context, ownerKey string, id uuid.UUID) error {
	var order Order
	if err := s.db.WithContext(ctx).Where("id = ? AND owner_key = ?", id, ownerKey).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dcaerr.New(dcaerr.NotFound, "order not found")
		}
		return dcaerr.Wrap(dcaerr.UpstreamError, "reading order before cancel", err)
	}
	if order.Status != StatusActive {
		return dcaerr.New(dcaerr.TerminalState, "order is not active")
	}
	return s.casUpdate(ctx, id, map[string]interface{}{"status": StatusCancelled})
}

// SweepExpired marks every active order whose expires-at has passed as
// Expired, returning the count of rows changed.
func (s *GormStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Order{}).
		Where("status = ? AND expires_at <= ?", StatusActive, now).
		Update("status", StatusExpired)
	if result.Error != nil {
		return 0, dcaerr.Wrap(dcaerr.UpstreamError, "sweeping expired orders", result.Error)
	}
	return result.RowsAffected, nil
}

// CountActive returns the count of ownerKey's currently active orders.
func (s *GormStore) CountActive(ctx context.Context, ownerKey string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Order{}).
		Where("owner_key = ? AND status = ?", ownerKey, StatusActive).
		Count(&count).Error
	if err != nil {
		return 0, dcaerr.Wrap(dcaerr.UpstreamError, "counting active orders", err)
	}
	return count, nil
}

// casUpdate applies updates to the order identified by id, retrying the
// compare-and-set on updated_at once if another writer won the race, which
// is the only concurrent mutation source in this engine (scheduler tick vs.
// an owner cancel arriving mid-tick).
func (s *GormStore) casUpdate(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	const maxAttempts = 2
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var current Order
		if err := s.db.WithContext(ctx).First(&current, "id = ?", id).Error; err != nil {
			return dcaerr.Wrap(dcaerr.UpstreamError, "reading order for update", err)
		}

		result := s.db.WithContext(ctx).Model(&Order{}).
			Where("id = ? AND updated_at = ?", id, current.UpdatedAt).
			Updates(updates)
		if result.Error != nil {
			return dcaerr.Wrap(dcaerr.UpstreamError, "updating order", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}
	}
	return dcaerr.New(dcaerr.UpstreamError, "order update lost the compare-and-set race")
}
