package sale_test

import (
	"testing"
	"time"

	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/types"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSale() *sale.Sale {
	return &sale.Sale{
		InitialRate:   3,
		TokensPerUnit: 3,
		HardCap:       types.Ether(100),
		StartTime:     t0,
		EndTime:       t0.Add(time.Hour),
		Threshold:     types.Ether(50),
		Cooldown:      5 * time.Second,
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *sale.Sale)
		now    time.Time
		want   sale.Status
	}{
		{"before start", nil, t0.Add(-time.Second), sale.StatusPending},
		{"at start", nil, t0, sale.StatusActive},
		{"inside window", nil, t0.Add(30 * time.Minute), sale.StatusActive},
		{"at end", nil, t0.Add(time.Hour), sale.StatusActive},
		{"after end", nil, t0.Add(time.Hour + time.Nanosecond), sale.StatusEnded},
		{"cap reached", func(s *sale.Sale) { s.RaisedAmount = types.Ether(100) }, t0.Add(time.Minute), sale.StatusEnded},
		{"latched", func(s *sale.Sale) { s.Ended = true }, t0.Add(time.Minute), sale.StatusEnded},
		{"latched before start", func(s *sale.Sale) { s.Ended = true }, t0.Add(-time.Minute), sale.StatusEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSale()
			if tt.mutate != nil {
				tt.mutate(s)
			}
			if got := s.Status(tt.now); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if s.IsActive(tt.now) != (tt.want == sale.StatusActive) {
				t.Errorf("IsActive disagrees with Status %s", tt.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	s := newSale()
	s.RaisedAmount = types.Ether(80)
	if got := s.Remaining(); !got.Equal(types.Ether(20)) {
		t.Errorf("got %s, want 20 ether", got)
	}
}

func TestClone(t *testing.T) {
	s := newSale()
	s.Metadata = map[string]string{"round": "seed"}

	c := s.Clone()
	c.Metadata["round"] = "public"
	c.TokensPerUnit = 1

	if s.Metadata["round"] != "seed" {
		t.Error("clone shares metadata map")
	}
	if s.TokensPerUnit != 3 {
		t.Error("clone shares fields")
	}
}

func TestLimit(t *testing.T) {
	l := sale.NewLimit(newSale().ID, [20]byte{1})
	if l.HasPurchased() {
		t.Error("fresh limit should not have purchases")
	}
	if l.CoolingDown(t0) {
		t.Error("fresh limit should not be cooling down")
	}

	l.Timeout = t0.Add(5 * time.Second)
	if !l.CoolingDown(t0.Add(4 * time.Second)) {
		t.Error("expected cooldown before timeout")
	}
	if l.CoolingDown(t0.Add(5 * time.Second)) {
		t.Error("cooldown should end at timeout")
	}
}

func TestRecordTotals(t *testing.T) {
	p := &sale.Purchase{CapRefund: types.Ether(30), ThrottleRefund: types.Ether(21)}
	if got := p.Refund(); !got.Equal(types.Ether(51)) {
		t.Errorf("Refund = %s", got)
	}

	w := &sale.Withdrawal{AdminAmount: types.Ether(5), OwnerAmount: types.Ether(95)}
	if got := w.Total(); !got.Equal(types.Ether(100)) {
		t.Errorf("Total = %s", got)
	}
}
