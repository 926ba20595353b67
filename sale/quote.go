package sale

import (
	"errors"
	"time"

	"github.com/xraph/tokensale/types"
)

// ErrAllocationOverflow is returned when accepted × rate does not fit in an
// Amount.
var ErrAllocationOverflow = errors.New("sale: token allocation overflows")

// Quote is the outcome of applying one contribution to a sale. It is computed
// without side effects; the caller commits Sale and Limit after the transfers
// succeed.
type Quote struct {
	Contribution   types.Amount
	Acceptable     types.Amount
	Accepted       types.Amount
	CapRefund      types.Amount
	ThrottleRefund types.Amount
	Rate           uint64
	Tokens         types.Amount

	// Tripped is set when this purchase filled the contributor's window and
	// started the cooldown.
	Tripped    bool
	CapReached bool

	// Next state.
	Raised types.Amount
	Limit  Limit
}

// Refund returns the total amount returned to the contributor.
func (q Quote) Refund() types.Amount {
	return q.CapRefund.Add(q.ThrottleRefund)
}

// Throttled reports whether the throttle withheld part of the contribution.
func (q Quote) Throttled() bool {
	return q.ThrottleRefund.IsPositive()
}

// ComputeQuote applies contribution to s at now with the given rate. The
// hard cap is applied first, then the contributor's throttle window on what
// the cap allows. The sale must be active; ComputeQuote does not check it.
func ComputeQuote(s *Sale, l Limit, contribution types.Amount, rate uint64, now time.Time) (Quote, error) {
	q := Quote{
		Contribution: contribution,
		Rate:         rate,
	}

	q.Acceptable = contribution.Min(s.Remaining())
	q.CapRefund = contribution.Sub(q.Acceptable)

	next := resetExpired(l, now)
	room := s.Threshold.SaturatingSub(next.Amount)
	q.Accepted = q.Acceptable.Min(room)
	q.ThrottleRefund = q.Acceptable.Sub(q.Accepted)

	filled := next.Amount.Add(q.Accepted)
	if !filled.LessThan(s.Threshold) {
		next.Amount = types.Zero()
		next.Timeout = now.Add(s.Cooldown)
		q.Tripped = true
	} else {
		next.Amount = filled
	}

	tokens, overflow := q.Accepted.MulUint64(rate)
	if overflow {
		return Quote{}, ErrAllocationOverflow
	}
	q.Tokens = tokens

	if next.FirstPurchaseAt.IsZero() {
		next.FirstPurchaseAt = now
	}
	next.LastPurchaseAt = now
	next.Purchases++
	q.Limit = next

	q.Raised = s.RaisedAmount.Add(q.Accepted)
	q.CapReached = !q.Raised.LessThan(s.HardCap)

	return q, nil
}

// resetExpired returns l with an elapsed cooldown cleared, so the
// contributor starts a fresh window.
func resetExpired(l Limit, now time.Time) Limit {
	if !l.Timeout.IsZero() && !now.Before(l.Timeout) {
		l.Amount = types.Zero()
		l.Timeout = time.Time{}
	}
	return l
}
