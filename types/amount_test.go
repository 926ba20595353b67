package types_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/xraph/tokensale/types"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		got  types.Amount
		want string
	}{
		{"Zero", types.Zero(), "0"},
		{"Units", types.Units(42), "42"},
		{"Ether", types.Ether(1), "1000000000000000000"},
		{"Ether hardcap", types.Ether(100), "100000000000000000000"},
		{"WithDecimals 6", types.WithDecimals(5, 6), "5000000"},
		{"WithDecimals 0", types.WithDecimals(7, 0), "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got.String(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "123", "123", false},
		{"spaces", "  50000000000000000000 ", "50000000000000000000", false},
		{"zero", "0", "0", false},
		{"max uint256", "115792089237316195423570985008687907853269984665640564039457584007913129639935",
			"115792089237316195423570985008687907853269984665640564039457584007913129639935", false},
		{"overflow", "115792089237316195423570985008687907853269984665640564039457584007913129639936", "", true},
		{"negative", "-1", "", true},
		{"empty", "", "", true},
		{"garbage", "12abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := types.ParseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFromBig(t *testing.T) {
	got, err := types.FromBig(big.NewInt(99))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(types.Units(99)) {
		t.Errorf("got %s, want 99", got)
	}

	if _, err := types.FromBig(big.NewInt(-1)); err == nil {
		t.Error("expected error for negative big.Int")
	}

	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := types.FromBig(huge); err == nil {
		t.Error("expected error for 2^256")
	}

	if got, err := types.FromBig(nil); err != nil || !got.IsZero() {
		t.Errorf("FromBig(nil) = %s, %v; want 0, nil", got, err)
	}
}

func TestArithmetic(t *testing.T) {
	a := types.Ether(70)
	b := types.Ether(49)

	t.Run("Add", func(t *testing.T) {
		if got := a.Add(b); !got.Equal(types.Ether(119)) {
			t.Errorf("got %s, want 119 ether", got)
		}
	})

	t.Run("Sub", func(t *testing.T) {
		if got := a.Sub(b); !got.Equal(types.Ether(21)) {
			t.Errorf("got %s, want 21 ether", got)
		}
	})

	t.Run("SaturatingSub", func(t *testing.T) {
		if got := b.SaturatingSub(a); !got.IsZero() {
			t.Errorf("got %s, want 0", got)
		}
		if got := a.SaturatingSub(b); !got.Equal(types.Ether(21)) {
			t.Errorf("got %s, want 21 ether", got)
		}
	})

	t.Run("MulUint64", func(t *testing.T) {
		got, overflow := types.Ether(49).MulUint64(3)
		if overflow {
			t.Fatal("unexpected overflow")
		}
		if !got.Equal(types.Ether(147)) {
			t.Errorf("got %s, want 147 ether", got)
		}
	})

	t.Run("MulUint64 overflow", func(t *testing.T) {
		maxAmt := types.MustParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
		if _, overflow := maxAmt.MulUint64(2); !overflow {
			t.Error("expected overflow")
		}
	})

	t.Run("MulDiv", func(t *testing.T) {
		// 2.5% fee on 100 ether
		if got := types.Ether(100).MulDiv(250, 10_000); !got.Equal(types.WithDecimals(25, 17)) {
			t.Errorf("got %s, want 2.5 ether", got)
		}
		if got := types.Units(7).MulDiv(1, 2); !got.Equal(types.Units(3)) {
			t.Errorf("got %s, want 3 (rounded down)", got)
		}
	})
}

func TestPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"Sub underflow", func() { types.Units(1).Sub(types.Units(2)) }},
		{"Add overflow", func() {
			maxAmt := types.MustParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
			maxAmt.Add(types.Units(1))
		}},
		{"MulDiv zero", func() { types.Units(1).MulDiv(1, 0) }},
		{"MustParseAmount", func() { types.MustParseAmount("nope") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestComparison(t *testing.T) {
	small := types.Units(10)
	large := types.Units(20)

	if small.Cmp(large) != -1 || large.Cmp(small) != 1 || small.Cmp(types.Units(10)) != 0 {
		t.Error("Cmp returned wrong ordering")
	}
	if !small.LessThan(large) || small.GreaterThan(large) {
		t.Error("LessThan/GreaterThan mismatch")
	}
	if !small.Equal(types.Units(10)) {
		t.Error("Equal mismatch")
	}
	if got := small.Min(large); !got.Equal(small) {
		t.Errorf("Min = %s", got)
	}
	if got := small.Max(large); !got.Equal(large) {
		t.Errorf("Max = %s", got)
	}
}

func TestPredicates(t *testing.T) {
	if !types.Zero().IsZero() || types.Zero().IsPositive() {
		t.Error("zero predicates wrong")
	}
	if types.Units(1).IsZero() || !types.Units(1).IsPositive() {
		t.Error("positive predicates wrong")
	}
}

func TestUint64(t *testing.T) {
	if v, ok := types.Units(12).Uint64(); !ok || v != 12 {
		t.Errorf("Uint64() = %d, %v", v, ok)
	}
	if _, ok := types.Ether(100).Uint64(); ok {
		t.Error("100 ether should not fit in uint64")
	}
	if got := types.Ether(2).Big(); got.Cmp(new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))) != 0 {
		t.Errorf("Big() = %s", got)
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   types.Amount
		decimals int
		want     string
	}{
		{"whole ether", types.Ether(3), 18, "3"},
		{"fraction", types.WithDecimals(15, 17), 18, "1.5"},
		{"sub unit", types.Units(1), 18, "0.000000000000000001"},
		{"zero", types.Zero(), 18, "0"},
		{"no decimals", types.Units(42), 0, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.amount.FormatUnits(tt.decimals); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJSON(t *testing.T) {
	original := types.Ether(100)
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"100000000000000000000"` {
		t.Errorf("got %s", data)
	}

	var restored types.Amount
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !restored.Equal(original) {
		t.Errorf("round-trip mismatch: %s != %s", restored, original)
	}

	var fromNumber types.Amount
	if err := json.Unmarshal([]byte(`42`), &fromNumber); err != nil {
		t.Fatalf("unmarshal number failed: %v", err)
	}
	if !fromNumber.Equal(types.Units(42)) {
		t.Errorf("got %s, want 42", fromNumber)
	}

	var bad types.Amount
	if err := json.Unmarshal([]byte(`"-5"`), &bad); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestValueScan(t *testing.T) {
	original := types.Ether(50)
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	tests := []struct {
		name string
		src  any
		want types.Amount
	}{
		{"string", val, original},
		{"bytes", []byte("7"), types.Units(7)},
		{"int64", int64(9), types.Units(9)},
		{"nil", nil, types.Zero()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got types.Amount
			if err := got.Scan(tt.src); err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	var got types.Amount
	if err := got.Scan(3.14); err == nil {
		t.Error("expected error scanning float64")
	}
}

func TestSum(t *testing.T) {
	got := types.Sum(types.Ether(20), types.Ether(20), types.Ether(60))
	if !got.Equal(types.Ether(100)) {
		t.Errorf("got %s, want 100 ether", got)
	}
	if !types.Sum().IsZero() {
		t.Error("empty sum should be zero")
	}
}

func BenchmarkAdd(b *testing.B) {
	x := types.Ether(1)
	y := types.Ether(2)
	for i := 0; i < b.N; i++ {
		_ = x.Add(y)
	}
}

func BenchmarkMulUint64(b *testing.B) {
	x := types.Ether(49)
	for i := 0; i < b.N; i++ {
		_, _ = x.MulUint64(3)
	}
}

func TestFraction(t *testing.T) {
	tests := []struct {
		name  string
		a     types.Amount
		total types.Amount
		want  uint64
	}{
		{"half", types.Ether(50), types.Ether(100), 500},
		{"none", types.Zero(), types.Ether(100), 0},
		{"full", types.Ether(100), types.Ether(100), 1000},
		{"over", types.Ether(150), types.Ether(100), 1000},
		{"zero total", types.Ether(1), types.Zero(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Fraction(tt.total, 1000); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
