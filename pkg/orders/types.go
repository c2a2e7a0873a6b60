// Package orders holds the DCA conditional order: its data model, the
// persistence layer that mutates it, and the validation/trigger service
// layered on top.
package orders

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Status is an order's lifecycle state. Active is the only non-terminal
// value; transitions are monotone, active -> {Executed, Cancelled, Failed,
// Expired}, and terminal states never change again.
type Status string

const (
	StatusActive    Status = "active"
	StatusExecuted  Status = "executed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether s is one of the four states claim_for_tick must
// never return.
func (s Status) Terminal() bool {
	return s != StatusActive
}

// Condition is the direction an order's trigger watches for.
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// MaxRetries is the number of failed attempts an order tolerates before it
// is moved to StatusFailed.
const MaxRetries = 3

// MaxActivePerOwner is the per-owner cap on simultaneously active orders.
const MaxActivePerOwner = 10

// DefaultExpiry is applied to an order whose ExpiresAt is left unset.
const DefaultExpiry = 30 * 24 * time.Hour

// Order is one conditional DCA instruction, owned by the Order Store.
type Order struct {
	ID     uuid.UUID `gorm:"type:char(36);primaryKey"`
	Owner  string    `gorm:"column:owner_key;index:idx_owner_status,priority:1;not null"`
	Status Status    `gorm:"index:idx_owner_status,priority:2;index:idx_status_expiry,priority:1;not null"`

	FromSymbol string `gorm:"not null"`
	ToSymbol   string `gorm:"not null"`
	// FromAmountRaw is the smallest-unit integer, stored exactly as declared
	// at creation and never renormalized.
	FromAmountRaw string `gorm:"column:from_amount_raw;type:varchar(78);not null"`

	TriggerPrice     string    `gorm:"column:trigger_price;type:varchar(78);not null"`
	TriggerCondition Condition `gorm:"column:trigger_condition;not null"`
	Primed           bool      `gorm:"not null;default:false"`

	MaxSlippageBps int `gorm:"column:max_slippage_bps;not null"`

	ExpiresAt time.Time `gorm:"column:expires_at;index:idx_status_expiry,priority:2;not null"`

	RetryCount       int    `gorm:"column:retry_count;not null;default:0"`
	LastFailureReason string `gorm:"column:last_failure_reason"`

	ExecutedAt       *time.Time `gorm:"column:executed_at"`
	ExecutionTxHash  string     `gorm:"column:execution_tx_hash"`

	CreatedAt time.Time `gorm:"column:created_at;index:idx_created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the GORM table name.
func (Order) TableName() string {
	return "orders"
}

// FromAmount parses FromAmountRaw back into a *big.Int.
func (o Order) FromAmount() (*big.Int, bool) {
	v, ok := new(big.Int).SetString(o.FromAmountRaw, 10)
	return v, ok
}

// CreateRequest is the DCA Service's create-order input.
type CreateRequest struct {
	OwnerKey         string
	FromSymbol       string
	ToSymbol         string
	FromAmountRaw    *big.Int
	TriggerPrice     string
	TriggerCondition Condition
	MaxSlippageBps   int
	ExpiresAt        *time.Time
}

// Filter narrows a list query. Zero value lists everything for the owner.
type Filter struct {
	Status Status
	Limit  int
}
