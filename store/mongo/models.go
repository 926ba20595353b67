package mongo

import (
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"

	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/types"
)

// Amounts and rates are stored as decimal strings; BSON has no 256-bit
// integer and int64 cannot hold every uint64 rate.

// ==================== Sale models ====================

type saleModel struct {
	grove.BaseModel `grove:"table:tokensale_sales"`

	ID            string            `grove:"id,pk"           bson:"_id"`
	Seq           int64             `grove:"seq"             bson:"seq"`
	Address       string            `grove:"address"         bson:"address"`
	Admin         string            `grove:"admin"           bson:"admin"`
	ProjectOwner  string            `grove:"project_owner"   bson:"project_owner"`
	Token         string            `grove:"token"           bson:"token"`
	InitialRate   string            `grove:"initial_rate"    bson:"initial_rate"`
	TokensPerUnit string            `grove:"tokens_per_unit" bson:"tokens_per_unit"`
	HardCap       string            `grove:"hard_cap"        bson:"hard_cap"`
	StartTime     time.Time         `grove:"start_time"      bson:"start_time"`
	EndTime       time.Time         `grove:"end_time"        bson:"end_time"`
	Weighted      bool              `grove:"weighted"        bson:"weighted"`
	Curve         string            `grove:"curve"           bson:"curve,omitempty"`
	Threshold     string            `grove:"threshold"       bson:"threshold"`
	CooldownNanos int64             `grove:"cooldown_ns"     bson:"cooldown_ns"`
	AdminFeeBps   int64             `grove:"admin_fee_bps"   bson:"admin_fee_bps"`
	Metadata      map[string]string `grove:"metadata"        bson:"metadata,omitempty"`
	RaisedAmount  string            `grove:"raised_amount"   bson:"raised_amount"`
	Ended         bool              `grove:"ended"           bson:"ended"`
	EndedAt       *time.Time        `grove:"ended_at"        bson:"ended_at,omitempty"`
	Withdrawn     bool              `grove:"withdrawn"       bson:"withdrawn"`
	WithdrawnAt   *time.Time        `grove:"withdrawn_at"    bson:"withdrawn_at,omitempty"`
	CreatedAt     time.Time         `grove:"created_at"      bson:"created_at"`
	UpdatedAt     time.Time         `grove:"updated_at"      bson:"updated_at"`
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
	rates, err := parseRates(m.InitialRate, m.TokensPerUnit)
	if err != nil {
		return nil, err
	}
	amounts, err := parseAmounts(m.HardCap, m.Threshold, m.RaisedAmount)
	if err != nil {
		return nil, err
	}

	return &sale.Sale{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:            saleID,
		Seq:           uint64(m.Seq), //nolint:gosec // written from a uint64
		Address:       common.HexToAddress(m.Address),
		Admin:         common.HexToAddress(m.Admin),
		ProjectOwner:  common.HexToAddress(m.ProjectOwner),
		Token:         common.HexToAddress(m.Token),
		InitialRate:   rates[0],
		HardCap:       amounts[0],
		StartTime:     m.StartTime.UTC(),
		EndTime:       m.EndTime.UTC(),
		Weighted:      m.Weighted,
		Curve:         m.Curve,
		Threshold:     amounts[1],
		Cooldown:      time.Duration(m.CooldownNanos),
		AdminFeeBps:   uint32(m.AdminFeeBps), //nolint:gosec // validated at creation
		Metadata:      m.Metadata,
		TokensPerUnit: rates[1],
		RaisedAmount:  amounts[2],
		Ended:         m.Ended,
		EndedAt:       timeVal(m.EndedAt),
		Withdrawn:     m.Withdrawn,
		WithdrawnAt:   timeVal(m.WithdrawnAt),
	}, nil
}

// ==================== Limit models ====================

type limitModel struct {
	grove.BaseModel `grove:"table:tokensale_limits"`

	Key             string     `grove:"id,pk"             bson:"_id"`
	SaleID          string     `grove:"sale_id"           bson:"sale_id"`
	Address         string     `grove:"address"           bson:"address"`
	Amount          string     `grove:"amount"            bson:"amount"`
	Timeout         *time.Time `grove:"timeout"           bson:"timeout,omitempty"`
	FirstPurchaseAt *time.Time `grove:"first_purchase_at" bson:"first_purchase_at,omitempty"`
	LastPurchaseAt  *time.Time `grove:"last_purchase_at"  bson:"last_purchase_at,omitempty"`
	Purchases       int64      `grove:"purchases"         bson:"purchases"`
}

func limitKey(saleID id.SaleID, addr common.Address) string {
	return saleID.String() + ":" + addr.Hex()
}

func toLimitModel(l *sale.Limit) *limitModel {
	return &limitModel{
		Key:             limitKey(l.SaleID, l.Address),
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

	ID             string    `grove:"id,pk"           bson:"_id"`
	SaleID         string    `grove:"sale_id"         bson:"sale_id"`
	Buyer          string    `grove:"buyer"           bson:"buyer"`
	Contribution   string    `grove:"contribution"    bson:"contribution"`
	Accepted       string    `grove:"accepted"        bson:"accepted"`
	CapRefund      string    `grove:"cap_refund"      bson:"cap_refund"`
	ThrottleRefund string    `grove:"throttle_refund" bson:"throttle_refund"`
	Rate           string    `grove:"rate"            bson:"rate"`
	Tokens         string    `grove:"tokens"          bson:"tokens"`
	Throttled      bool      `grove:"throttled"       bson:"throttled"`
	CapReached     bool      `grove:"cap_reached"     bson:"cap_reached"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
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
	rates, err := parseRates(m.Rate)
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
		Rate:           rates[0],
		Tokens:         amounts[4],
		Throttled:      m.Throttled,
		CapReached:     m.CapReached,
		CreatedAt:      m.CreatedAt.UTC(),
	}, nil
}

// ==================== Withdrawal models ====================

type withdrawalModel struct {
	grove.BaseModel `grove:"table:tokensale_withdrawals"`

	ID           string    `grove:"id,pk"         bson:"_id"`
	SaleID       string    `grove:"sale_id"       bson:"sale_id"`
	Kind         string    `grove:"kind"          bson:"kind"`
	Admin        string    `grove:"admin"         bson:"admin"`
	ProjectOwner string    `grove:"project_owner" bson:"project_owner"`
	AdminAmount  string    `grove:"admin_amount"  bson:"admin_amount"`
	OwnerAmount  string    `grove:"owner_amount"  bson:"owner_amount"`
	CreatedAt    time.Time `grove:"created_at"    bson:"created_at"`
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

func parseRates(values ...string) ([]uint64, error) {
	out := make([]uint64, len(values))
	for i, v := range values {
		r, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = r
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
