package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/tokensale/plugin"
	"github.com/xraph/tokensale/pricing"
	"github.com/xraph/tokensale/sale"
)

type recorder struct {
	name string
	mu   sync.Mutex
	seen []string
	err  error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnSaleCreated(_ context.Context, _ *sale.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, "created")
	return r.err
}

func (r *recorder) OnHardCapReached(_ context.Context, _ *sale.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, "cap")
	return r.err
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

type flatCurve struct{}

func (flatCurve) Name() string                         { return "flat-plugin" }
func (flatCurve) CurveName() string                    { return "flat" }
func (flatCurve) Rate(pricing.Input, time.Time) uint64 { return 7 }

type shadowCurve struct{ flatCurve }

func (shadowCurve) Name() string      { return "shadow" }
func (shadowCurve) CurveName() string { return pricing.NameLinearTime }

type slowHook struct{}

func (slowHook) Name() string { return "slow" }
func (slowHook) OnSaleCreated(ctx context.Context, _ *sale.Sale) error {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
	return nil
}

func TestRegisterDuplicate(t *testing.T) {
	r := plugin.NewRegistry()
	if err := r.Register(&recorder{name: "audit"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&recorder{name: "audit"}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d", r.Count())
	}
	if r.Get("audit") == nil || r.Get("missing") != nil {
		t.Error("Get lookup mismatch")
	}
	if len(r.List()) != 1 {
		t.Errorf("List = %d", len(r.List()))
	}
}

func TestEmitDispatchesToImplementers(t *testing.T) {
	r := plugin.NewRegistry()
	rec := &recorder{name: "rec"}
	_ = r.Register(rec)

	ctx := context.Background()
	s := &sale.Sale{}
	r.EmitSaleCreated(ctx, s)
	r.EmitHardCapReached(ctx, s)
	r.EmitFundsWithdrawn(ctx, s, &sale.Withdrawal{})

	got := rec.events()
	if len(got) != 2 || got[0] != "created" || got[1] != "cap" {
		t.Errorf("events = %v", got)
	}
}

func TestHookErrorsAreSwallowed(t *testing.T) {
	r := plugin.NewRegistry()
	rec := &recorder{name: "failing", err: errors.New("boom")}
	_ = r.Register(rec)

	r.EmitSaleCreated(context.Background(), &sale.Sale{})
	if len(rec.events()) != 1 {
		t.Error("hook was not called")
	}
}

func TestHookTimeout(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	_ = r.Register(slowHook{})

	start := time.Now()
	r.EmitSaleCreated(context.Background(), &sale.Sale{})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("emission blocked for %s", elapsed)
	}
}

func TestCurveResolution(t *testing.T) {
	r := plugin.NewRegistry()
	if err := r.Register(flatCurve{}); err != nil {
		t.Fatal(err)
	}

	c, ok := r.Curve("flat")
	if !ok {
		t.Fatal("plugin curve not resolved")
	}
	if c.Name() != "flat" {
		t.Errorf("Name = %q, want curve name", c.Name())
	}
	if got := c.Rate(pricing.Input{}, time.Now()); got != 7 {
		t.Errorf("Rate = %d", got)
	}

	if c, ok := r.Curve(pricing.NameDemand); !ok || c.Name() != pricing.NameDemand {
		t.Error("built-in curve not resolved")
	}
	if _, ok := r.Curve("nope"); ok {
		t.Error("unknown curve resolved")
	}

	if err := r.Register(shadowCurve{}); err == nil {
		t.Error("expected error when shadowing a built-in curve")
	}
}
