package sale

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/tokensale/types"
)

// Params configures a new sale instance. A zero Threshold or Curve and a nil
// Cooldown or AdminFeeBps take the engine defaults; set the pointers to ask
// for an explicit zero.
type Params struct {
	Admin         common.Address    `json:"admin"`
	ProjectOwner  common.Address    `json:"project_owner"`
	Token         common.Address    `json:"token"`
	TokensPerUnit uint64            `json:"tokens_per_unit"`
	HardCap       types.Amount      `json:"hard_cap"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	Weighted      bool              `json:"weighted"`
	Curve         string            `json:"curve,omitempty"`
	Threshold     types.Amount      `json:"threshold"`
	Cooldown      *time.Duration    `json:"cooldown,omitempty"`
	AdminFeeBps   *uint32           `json:"admin_fee_bps,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// MaxFeeBps is the basis-point denominator for the admin fee.
const MaxFeeBps = 10_000
