package postgres

import (
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/types"
)

// Amounts and rates are stored as base-10 TEXT: 256-bit amounts and uint64
// rates do not fit BIGINT.

// ==================== Sale models ====================

type saleModel struct {
	grove.BaseModel `grove:"table:tokensale_sales"`

	ID            string            `grove:"id,pk"`
	Seq           int64             `grove:"seq"`
	Address       string            `grove:"address"`
	Admin         string            `grove:"admin"`
	ProjectOwner  string            `grove:"project_owner"`
	Token         string            `grove:"token"`
	InitialRate   string            `grove:"initial_rate"`
	TokensPerUnit string            `grove:"tokens_per_unit"`
	HardCap       string            `grove:"hard_cap"`
	StartTime     time.Time         `grove:"start_time"`
	EndTime       time.Time         `grove:"end_time"`
	Weighted      bool              `grove:"weighted"`
	Curve         string            `grove:"curve"`
	Threshold     string            `grove:"threshold"`
	CooldownNanos int64             `grove:"cooldown_ns"`
	AdminFeeBps   int64             `grove:"admin_fee_bps"`
	Metadata      map[string]string `grove:"metadata,type:jsonb"`
	RaisedAmount  string            `grove:"raised_amount"`
	Ended         bool              `grove:"ended"`
	EndedAt       *time.Time        `grove:"ended_at"`
	Withdrawn     bool              `grove:"withdrawn"`
	WithdrawnAt   *time.Time        `grove:"withdrawn_at"`
	CreatedAt     time.Time         `grove:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"`
}

func toSaleModel(s *sale.Sale) *saleModel {
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
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		Weighted:      s.Weighted,
		Curve:         s.Curve,
		Threshold:     s.Threshold.String(),
		CooldownNanos: int64(s.Cooldown),
		AdminFeeBps:   int64(s.AdminFeeBps),
		Metadata:      s.Metadata,
		RaisedAmount:  s.RaisedAmount.String(),
		Ended:         s.Ended,
		EndedAt:       timePtr(s.EndedAt),
		Withdrawn:     s.Withdrawn,
		WithdrawnAt:   timePtr(s.WithdrawnAt),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
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
	hardCap, err := types.ParseAmount(m.HardCap)
	if err != nil {
		return nil, err
	}
	threshold, err := types.ParseAmount(m.Threshold)
	if err != nil {
		return nil, err
	}
	raised, err := types.ParseAmount(m.RaisedAmount)
	if err != nil {
		return nil, err
	}

	return &sale.Sale{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            saleID,
		Seq:           uint64(m.Seq), //nolint:gosec // written from a uint64
		Address:       common.HexToAddress(m.Address),
		Admin:         common.HexToAddress(m.Admin),
		ProjectOwner:  common.HexToAddress(m.ProjectOwner),
		Token:         common.HexToAddress(m.Token),
		InitialRate:   initialRate,
		HardCap:       hardCap,
		StartTime:     m.StartTime.UTC(),
		EndTime:       m.EndTime.UTC(),
		Weighted:      m.Weighted,
		Curve:         m.Curve,
		Threshold:     threshold,
		Cooldown:      time.Duration(m.CooldownNanos),
		AdminFeeBps:   uint32(m.AdminFeeBps), //nolint:gosec // validated at creation
		Metadata:      m.Metadata,
		TokensPerUnit: rate,
		RaisedAmount:  raised,
		Ended:         m.Ended,
		EndedAt:       timeVal(m.EndedAt),
		Withdrawn:     m.Withdrawn,
		WithdrawnAt:   timeVal(m.WithdrawnAt),
	}, nil
}

// ==================== Limit models ====================

type limitModel struct {
	grove.BaseModel `grove:"table:tokensale_limits"`

	SaleID          string     `grove:"sale_id,pk"`
	Address         string     `grove:"address,pk"`
	Amount          string     `grove:"amount"`
	Timeout         *time.Time `grove:"timeout"`
	FirstPurchaseAt *time.Time `grove:"first_purchase_at"`
	LastPurchaseAt  *time.Time `grove:"last_purchase_at"`
	Purchases       int64      `grove:"purchases"`
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

	return &sale.Limit{
		SaleID:          saleID,
		Address:         common.HexToAddress(m.Address),
		Amount:          amount,
		Timeout:         timeVal(m.Timeout),
		FirstPurchaseAt: timeVal(m.FirstPurchaseAt),
		LastPurchaseAt:  timeVal(m.LastPurchaseAt),
		Purchases:       uint64(m.Purchases), //nolint:gosec // written from a uint64
	}, nil
}

// ==================== Purchase models ====================

type purchaseModel struct {
	grove.BaseModel `grove:"table:tokensale_purchases"`

	ID             string    `grove:"id,pk"`
	SaleID         string    `grove:"sale_id"`
	Buyer          string    `grove:"buyer"`
	Contribution   string    `grove:"contribution"`
	Accepted       string    `grove:"accepted"`
	CapRefund      string    `grove:"cap_refund"`
	ThrottleRefund string    `grove:"throttle_refund"`
	Rate           string    `grove:"rate"`
	Tokens         string    `grove:"tokens"`
	Throttled      bool      `grove:"throttled"`
	CapReached     bool      `grove:"cap_reached"`
	CreatedAt      time.Time `grove:"created_at"`
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
		CreatedAt:      p.CreatedAt,
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
		CreatedAt:      m.CreatedAt.UTC(),
	}, nil
}

// ==================== Withdrawal models ====================

type withdrawalModel struct {
	grove.BaseModel `grove:"table:tokensale_withdrawals"`

	ID           string    `grove:"id,pk"`
	SaleID       string    `grove:"sale_id"`
	Kind         string    `grove:"kind"`
	Admin        string    `grove:"admin"`
	ProjectOwner string    `grove:"project_owner"`
	AdminAmount  string    `grove:"admin_amount"`
	OwnerAmount  string    `grove:"owner_amount"`
	CreatedAt    time.Time `grove:"created_at"`
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
		CreatedAt:    w.CreatedAt,
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

	return &sale.Withdrawal{
		ID:           wdrID,
		SaleID:       saleID,
		Kind:         sale.WithdrawalKind(m.Kind),
		Admin:        common.HexToAddress(m.Admin),
		ProjectOwner: common.HexToAddress(m.ProjectOwner),
		AdminAmount:  amounts[0],
		OwnerAmount:  amounts[1],
		CreatedAt:    m.CreatedAt.UTC(),
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

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
