package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	audithook "github.com/xraph/tokensale/audit_hook"
	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/types"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (r *memRecorder) Record(_ context.Context, ev *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func testSale() *sale.Sale {
	return &sale.Sale{
		ID:            id.NewSaleID(),
		Address:       common.HexToAddress("0x01"),
		TokensPerUnit: 3,
		HardCap:       types.Ether(100),
		RaisedAmount:  types.Ether(100),
	}
}

func TestPurchaseEvents(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	ext := audithook.New(rec)
	s := testSale()

	full := &sale.Purchase{ID: id.NewPurchaseID(), Accepted: types.Ether(1), Contribution: types.Ether(1)}
	partial := &sale.Purchase{ID: id.NewPurchaseID(), Accepted: types.Ether(49), Contribution: types.Ether(70), ThrottleRefund: types.Ether(21)}

	if err := ext.OnTokensPurchased(ctx, s, full); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnTokensPurchased(ctx, s, partial); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnPurchaseRejected(ctx, s.ID, common.HexToAddress("0x02"), types.Ether(5), errors.New("sale is not active")); err != nil {
		t.Fatal(err)
	}

	if len(rec.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(rec.events))
	}

	tests := []struct {
		action, outcome, resourceID string
	}{
		{audithook.ActionTokensPurchased, audithook.OutcomeSuccess, full.ID.String()},
		{audithook.ActionTokensPurchased, audithook.OutcomePartial, partial.ID.String()},
		{audithook.ActionPurchaseRejected, audithook.OutcomeFailure, s.ID.String()},
	}
	for i, tt := range tests {
		ev := rec.events[i]
		if ev.Action != tt.action || ev.Outcome != tt.outcome || ev.ResourceID != tt.resourceID {
			t.Errorf("event %d = %s/%s/%s, want %s/%s/%s", i,
				ev.Action, ev.Outcome, ev.ResourceID, tt.action, tt.outcome, tt.resourceID)
		}
	}

	if got := rec.events[1].Metadata["refund"]; got != "21000000000000000000" {
		t.Errorf("refund metadata = %v", got)
	}
	if rec.events[2].Reason != "sale is not active" {
		t.Errorf("reason = %q", rec.events[2].Reason)
	}
}

func TestEnabledActions(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionHardCapReached))
	s := testSale()

	_ = ext.OnSaleCreated(ctx, s)
	_ = ext.OnHardCapReached(ctx, s)
	_ = ext.OnPriceUpdated(ctx, s, 3, 2)

	if len(rec.events) != 1 || rec.events[0].Action != audithook.ActionHardCapReached {
		t.Fatalf("unexpected events: %+v", rec.events)
	}
}

func TestDisabledActions(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionThrottleTripped))
	s := testSale()
	l := &sale.Limit{SaleID: s.ID, Address: common.HexToAddress("0x03"), Timeout: time.Now()}
	w := &sale.Withdrawal{ID: id.NewWithdrawalID(), SaleID: s.ID, OwnerAmount: types.Ether(100)}

	_ = ext.OnThrottleTripped(ctx, s, l)
	_ = ext.OnFundsWithdrawn(ctx, s, w)
	_ = ext.OnTokensReturned(ctx, s, w)

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.events))
	}
	if rec.events[0].Action != audithook.ActionFundsWithdrawn || rec.events[1].Action != audithook.ActionTokensReturned {
		t.Errorf("unexpected actions: %s, %s", rec.events[0].Action, rec.events[1].Action)
	}
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))

	if err := ext.OnHardCapReached(context.Background(), testSale()); err != nil {
		t.Fatalf("recorder failures must not propagate: %v", err)
	}
}
