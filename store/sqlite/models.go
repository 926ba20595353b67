package sqlite

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/types"
)

// Amounts and rates are stored as base-10 TEXT: 256-bit amounts and uint64
// rates do not fit INTEGER. Times are TEXT in timeLayout and metadata is a
// JSON object in TEXT.

// timeLayout is fixed width in UTC, so TEXT ordering is time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ==================== Sale models ====================

type saleModel struct {
	grove.BaseModel `grove:"table:tokensale_sales"`

	ID            string  `grove:"id,pk"`
	Seq           int64   `grove:"seq"`
	Address       string  `grove:"address"`
	Admin         string  `grove:"admin"`
	ProjectOwner  string  `grove:"project_owner"`
	Token         string  `grove:"token"`
	InitialRate   string  `grove:"initial_rate"`
	TokensPerUnit string  `grove:"tokens_per_unit"`
	HardCap       string  `grove:"hard_cap"`
	StartTime     string  `grove:"start_time"`
	EndTime       string  `grove:"end_time"`
	Weighted      bool    `grove:"weighted"`
	Curve         string  `grove:"curve"`
	Threshold     string  `grove:"threshold"`
	CooldownNanos int64   `grove:"cooldown_ns"`
	AdminFeeBps   int64   `grove:"admin_fee_bps"`
	Metadata      string  `grove:"metadata"`
	RaisedAmount  string  `grove:"raised_amount"`
	Ended         bool    `grove:"ended"`
	EndedAt       *string `grove:"ended_at"`
	Withdrawn     bool    `grove:"withdrawn"`
	WithdrawnAt   *string `grove:"withdrawn_at"`
	CreatedAt     string  `grove:"created_at"`
	UpdatedAt     string  `grove:"updated_at"`
}

func toSaleModel(s *sale.Sale) (*saleModel, error) {
	meta, err := encodeMetadata(s.Metadata)
	if err != nil {
		return nil, err
	}
	return &saleModel{
		ID:            s.ID.String(),
		Seq:           int64(s.Seq), //nolint:gosec // sequence numbers stay far below 2^63
		Address:       s.Address.Hex(),
		Admin:         s.Admin.Hex(),
		ProjectOwner:  s.ProjectOwner.Hex(),
		Token:         s.Token.Hex(),
		InitialRate:   strconv.FormatUint(s.InitialRate, 10),
		TokensPerUnit: strconv.FormatUint(s.TokensPerUnit, 10),
		HardCap:       s.HardCap.String(),
		StartTime:     formatTime(s.StartTime),
		EndTime:       formatTime(s.EndTime),
		Weighted:      s.Weighted,
		Curve:         s.Curve,
		Threshold:     s.Threshold.String(),
		CooldownNanos: int64(s.Cooldown),
		AdminFeeBps:   int64(s.AdminFeeBps),
		Metadata:      meta,
		RaisedAmount:  s.RaisedAmount.String(),
		Ended:         s.Ended,
		EndedAt:       timePtr(s.EndedAt),
		Withdrawn:     s.Withdrawn,
		WithdrawnAt:   timePtr(s.WithdrawnAt),
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
	}, nil
}

func fromSaleModel(m *saleModel) (*sale.Sale, error) {
	saleID, err := id.ParseSaleID(m.ID)
	if err != nil {
		return nil, err
	}
	initialRate, err := strconv.ParseUint(m.InitialRate, 10, 64)
	if err != nil {
		return nil, err
	}
	rate, err := strconv.ParseUint(m.TokensPerUnit, 10, 64)
	if err != nil {
		return nil, err
	}
	amounts, err := parseAmounts(m.HardCap, m.Threshold, m.RaisedAmount)
	if err != nil {
		return nil, err
	}
	times, err := parseTimes(m.StartTime, m.EndTime, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	endedAt, err := timeVal(m.EndedAt)
	if err != nil {
		return nil, err
	}
	withdrawnAt, err := timeVal(m.WithdrawnAt)
	if err != nil {
		return nil, err
	}
	meta, err := decodeMetadata(m.Metadata)
	if err != nil {
		return nil, err
	}

	return &sale.Sale{
		Entity: types.Entity{
			CreatedAt: times[2],
			UpdatedAt: times[3],
		},
		ID:            saleID,
		Seq:           uint64(m.Seq), //nolint:gosec // written from a uint64
		Address:       common.HexToAddress(m.Address),
		Admin:         common.HexToAddress(m.Admin),
		ProjectOwner:  common.HexToAddress(m.ProjectOwner),
		Token:         common.HexToAddress(m.Token),
		InitialRate:   initialRate,
		HardCap:       amounts[0],
		StartTime:     times[0],
		EndTime:       times[1],
		Weighted:      m.Weighted,
		Curve:         m.Curve,
		Threshold:     amounts[1],
		Cooldown:      time.Duration(m.CooldownNanos),
		AdminFeeBps:   uint32(m.AdminFeeBps), //nolint:gosec // validated at creation
		Metadata:      meta,
		TokensPerUnit: rate,
		RaisedAmount:  amounts[2],
		Ended:         m.Ended,
		EndedAt:       endedAt,
		Withdrawn:     m.Withdrawn,
		WithdrawnAt:   withdrawnAt,
	}, nil
}

// ==================== Limit models ====================

type limitModel struct {
	grove.BaseModel `grove:"table:tokensale_limits"`

	SaleID          string  `grove:"sale_id,pk"`
	Address         string  `grove:"address,pk"`
	Amount          string  `grove:"amount"`
	Timeout         *string `grove:"timeout"`
	FirstPurchaseAt *string `grove:"first_purchase_at"`
	LastPurchaseAt  *string `grove:"last_purchase_at"`
	Purchases       int64   `grove:"purchases"`
}

func toLimitModel(l *sale.Limit) *limitModel {
	return &limitModel{
		SaleID:          l.SaleID.String(),
		Address:         l.Address.Hex(),
		Amount:          l.Amount.String(),
		Timeout:         timePtr(l.Timeout),
		FirstPurchaseAt: timePtr(l.FirstPurchaseAt),
		LastPurchaseAt:  timePtr(l.LastPurchaseAt),
		Purchases:       int64(l.Purchases), //nolint:gosec // purchase counts stay far below 2^63
	}
}

func fromLimitModel(m *limitModel) (*sale.Limit, error) {
	saleID, err := id.ParseSaleID(m.SaleID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	var times [3]time.Time
	for i, v := range []*string{m.Timeout, m.FirstPurchaseAt, m.LastPurchaseAt} {
		if times[i], err = timeVal(v); err != nil {
			return nil, err
		}
	}

	return &sale.Limit{
		SaleID:          saleID,
		Address:         common.HexToAddress(m.Address),
		Amount:          amount,
		Timeout:         times[0],
		FirstPurchaseAt: times[1],
		LastPurchaseAt:  times[2],
		Purchases:       uint64(m.Purchases), //nolint:gosec // written from a uint64
	}, nil
}

// ==================== Purchase models ====================

type purchaseModel struct {
	grove.BaseModel `grove:"table:tokensale_purchases"`

	ID             string `grove:"id,pk"`
	SaleID         string `grove:"sale_id"`
	Buyer          string `grove:"buyer"`
	Contribution   string `grove:"contribution"`
	Accepted       string `grove:"accepted"`
	CapRefund      string `grove:"cap_refund"`
	ThrottleRefund string `grove:"throttle_refund"`
	Rate           string `grove:"rate"`
	Tokens         string `grove:"tokens"`
	Throttled      bool   `grove:"throttled"`
	CapReached     bool   `grove:"cap_reached"`
	CreatedAt      string `grove:"created_at"`
}

func toPurchaseModel(p *sale.Purchase) *purchaseModel {
	return &purchaseModel{
		ID:             p.ID.String(),
		SaleID:         p.SaleID.String(),
		Buyer:          p.Buyer.Hex(),
		Contribution:   p.Contribution.String(),
		Accepted:       p.Accepted.String(),
		CapRefund:      p.CapRefund.String(),
		ThrottleRefund: p.ThrottleRefund.String(),
		Rate:           strconv.FormatUint(p.Rate, 10),
		Tokens:         p.Tokens.String(),
		Throttled:      p.Throttled,
		CapReached:     p.CapReached,
		CreatedAt:      formatTime(p.CreatedAt),
	}
}

func fromPurchaseModel(m *purchaseModel) (*sale.Purchase, error) {
	purID, err := id.ParsePurchaseID(m.ID)
	if err != nil {
		return nil, err
	}
	saleID, err := id.ParseSaleID(m.SaleID)
	if err != nil {
		return nil, err
	}
	rate, err := strconv.ParseUint(m.Rate, 10, 64)
	if err != nil {
		return nil, err
	}
	amounts, err := parseAmounts(m.Contribution, m.Accepted, m.CapRefund, m.ThrottleRefund, m.Tokens)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &sale.Purchase{
		ID:             purID,
		SaleID:         saleID,
		Buyer:          common.HexToAddress(m.Buyer),
		Contribution:   amounts[0],
		Accepted:       amounts[1],
		CapRefund:      amounts[2],
		ThrottleRefund: amounts[3],
		Rate:           rate,
		Tokens:         amounts[4],
		Throttled:      m.Throttled,
		CapReached:     m.CapReached,
		CreatedAt:      created,
	}, nil
}

// ==================== Withdrawal models ====================

type withdrawalModel struct {
	grove.BaseModel `grove:"table:tokensale_withdrawals"`

	ID           string `grove:"id,pk"`
	SaleID       string `grove:"sale_id"`
	Kind         string `grove:"kind"`
	Admin        string `grove:"admin"`
	ProjectOwner string `grove:"project_owner"`
	AdminAmount  string `grove:"admin_amount"`
	OwnerAmount  string `grove:"owner_amount"`
	CreatedAt    string `grove:"created_at"`
}

func toWithdrawalModel(w *sale.Withdrawal) *withdrawalModel {
	return &withdrawalModel{
		ID:           w.ID.String(),
		SaleID:       w.SaleID.String(),
		Kind:         string(w.Kind),
		Admin:        w.Admin.Hex(),
		ProjectOwner: w.ProjectOwner.Hex(),
		AdminAmount:  w.AdminAmount.String(),
		OwnerAmount:  w.OwnerAmount.String(),
		CreatedAt:    formatTime(w.CreatedAt),
	}
}

func fromWithdrawalModel(m *withdrawalModel) (*sale.Withdrawal, error) {
	wdrID, err := id.ParseWithdrawalID(m.ID)
	if err != nil {
		return nil, err
	}
	saleID, err := id.ParseSaleID(m.SaleID)
	if err != nil {
		return nil, err
	}
	amounts, err := parseAmounts(m.AdminAmount, m.OwnerAmount)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &sale.Withdrawal{
		ID:           wdrID,
		SaleID:       saleID,
		Kind:         sale.WithdrawalKind(m.Kind),
		Admin:        common.HexToAddress(m.Admin),
		ProjectOwner: common.HexToAddress(m.ProjectOwner),
		AdminAmount:  amounts[0],
		OwnerAmount:  amounts[1],
		CreatedAt:    created,
	}, nil
}

// ==================== Helpers ====================

func parseAmounts(values ...string) ([]types.Amount, error) {
	out := make([]types.Amount, len(values))
	for i, v := range values {
		a, err := types.ParseAmount(v)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// encodeMetadata stores nil and empty maps as "{}".
func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// decodeMetadata returns nil for an empty object.
func decodeMetadata(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseTimes(values ...string) ([]time.Time, error) {
	out := make([]time.Time, len(values))
	for i, v := range values {
		t, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func timePtr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := formatTime(t)
	return &s
}

func timeVal(s *string) (time.Time, error) {
	if s == nil || *s == "" {
		return time.Time{}, nil
	}
	return parseTime(*s)
}
