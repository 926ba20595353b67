// Package sale defines the sale instance model and its purchase state machine.
package sale

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/types"
)

// Status is the lifecycle phase of a sale at a point in time.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// Sale is one independent sale instance created by the registry.
type Sale struct {
	types.Entity
	ID           id.SaleID         `json:"id"`
	Seq          uint64            `json:"seq"`
	Address      common.Address    `json:"address"`
	Admin        common.Address    `json:"admin"`
	ProjectOwner common.Address    `json:"project_owner"`
	Token        common.Address    `json:"token"`
	InitialRate  uint64            `json:"initial_rate"`
	HardCap      types.Amount      `json:"hard_cap"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	Weighted     bool              `json:"weighted"`
	Curve        string            `json:"curve,omitempty"`
	Threshold    types.Amount      `json:"threshold"`
	Cooldown     time.Duration     `json:"cooldown"`
	AdminFeeBps  uint32            `json:"admin_fee_bps"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	TokensPerUnit uint64       `json:"tokens_per_unit"`
	RaisedAmount  types.Amount `json:"raised_amount"`
	Ended         bool         `json:"ended"`
	EndedAt       time.Time    `json:"ended_at,omitzero"`
	Withdrawn     bool         `json:"withdrawn"`
	WithdrawnAt   time.Time    `json:"withdrawn_at,omitzero"`
}

// Status reports the sale phase at now. The persisted Ended latch, a full
// hard cap, or a passed end time all mean the sale is over.
func (s *Sale) Status(now time.Time) Status {
	switch {
	case s.Ended, !s.RaisedAmount.LessThan(s.HardCap), now.After(s.EndTime):
		return StatusEnded
	case now.Before(s.StartTime):
		return StatusPending
	default:
		return StatusActive
	}
}

// IsActive reports whether purchases are accepted at now.
func (s *Sale) IsActive(now time.Time) bool {
	return s.Status(now) == StatusActive
}

// Remaining returns how much base asset the sale can still accept.
func (s *Sale) Remaining() types.Amount {
	return s.HardCap.SaturatingSub(s.RaisedAmount)
}

// Clone returns a deep copy of the sale.
func (s *Sale) Clone() *Sale {
	c := *s
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Limit is the per-contributor throttle entry of one sale. Entries are
// created on first purchase and never deleted.
type Limit struct {
	SaleID          id.SaleID      `json:"sale_id"`
	Address         common.Address `json:"address"`
	Amount          types.Amount   `json:"amount"`
	Timeout         time.Time      `json:"timeout,omitzero"`
	FirstPurchaseAt time.Time      `json:"first_purchase_at,omitzero"`
	LastPurchaseAt  time.Time      `json:"last_purchase_at,omitzero"`
	Purchases       uint64         `json:"purchases"`
}

// NewLimit returns the zero entry for an address that never purchased.
func NewLimit(saleID id.SaleID, addr common.Address) *Limit {
	return &Limit{SaleID: saleID, Address: addr}
}

// HasPurchased reports whether the contributor ever bought from the sale.
func (l *Limit) HasPurchased() bool {
	return !l.FirstPurchaseAt.IsZero()
}

// CoolingDown reports whether the throttle window is closed at now.
func (l *Limit) CoolingDown(now time.Time) bool {
	return !l.Timeout.IsZero() && now.Before(l.Timeout)
}

// Purchase records one accepted buy.
type Purchase struct {
	ID             id.PurchaseID  `json:"id"`
	SaleID         id.SaleID      `json:"sale_id"`
	Buyer          common.Address `json:"buyer"`
	Contribution   types.Amount   `json:"contribution"`
	Accepted       types.Amount   `json:"accepted"`
	CapRefund      types.Amount   `json:"cap_refund"`
	ThrottleRefund types.Amount   `json:"throttle_refund"`
	Rate           uint64         `json:"rate"`
	Tokens         types.Amount   `json:"tokens"`
	Throttled      bool           `json:"throttled"`
	CapReached     bool           `json:"cap_reached"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Refund returns the part of the contribution that was not taken.
func (p *Purchase) Refund() types.Amount {
	return p.CapRefund.Add(p.ThrottleRefund)
}

// WithdrawalKind distinguishes fund payouts from unsold token returns.
type WithdrawalKind string

const (
	WithdrawalFunds  WithdrawalKind = "funds"
	WithdrawalTokens WithdrawalKind = "tokens"
)

// Withdrawal records one settlement transfer after the sale ended.
type Withdrawal struct {
	ID           id.WithdrawalID `json:"id"`
	SaleID       id.SaleID       `json:"sale_id"`
	Kind         WithdrawalKind  `json:"kind"`
	Admin        common.Address  `json:"admin"`
	ProjectOwner common.Address  `json:"project_owner"`
	AdminAmount  types.Amount    `json:"admin_amount"`
	OwnerAmount  types.Amount    `json:"owner_amount"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Total returns the amount moved by the withdrawal.
func (w *Withdrawal) Total() types.Amount {
	return w.AdminAmount.Add(w.OwnerAmount)
}
