package models

import (
	"time"

	"github.com/uptrace/bun"
)

// BoxState is the lifecycle phase of a mystery box. Only one box can be
// anything other than Removed or Minted at a time per worker.
type BoxState string

const (
	BoxStatePaused   BoxState = "paused"
	BoxStateSetup    BoxState = "setup"
	BoxStateInit     BoxState = "init"
	BoxStateActive   BoxState = "active"
	BoxStateCooldown BoxState = "cooldown"
	BoxStateResolve  BoxState = "resolve"
	BoxStateRemoved  BoxState = "removed"
	BoxStateMinted   BoxState = "minted"
)

// BoxPool is the access tier a box belongs to. Lower values are more
// exclusive; a wallet's permitted pool must be <= the box pool to bid.
type BoxPool int

const (
	PoolPreSale BoxPool = iota
	PoolOG
	PoolPrimeList
	PoolPublic
)

// BoxKind selects which purchase paths a box offers.
type BoxKind int

const (
	KindBidBuyNow BoxKind = iota
	KindBid
	KindBuyNow
)

// BoxTiming is the persisted clock state of a running box. EndsAt == -1
// marks a box that has been taken out of rotation.
type BoxTiming struct {
	Phase     BoxState `json:"phase"`
	StartedAt int64    `json:"started_at"`
	EndsAt    int64    `json:"ends_at"`
}

// BidEntry is one bid in a box round, kept as jsonb history on the row.
type BidEntry struct {
	Wallet   string    `json:"wallet"`
	Username string    `json:"username"`
	Amount   int64     `json:"amount"`
	NftID    string    `json:"nft_id"`
	BidAt    time.Time `json:"bid_at"`
}

type BoxConfig struct {
	bun.BaseModel `bun:"table:box_configs,alias:bc"`

	BoxID    int64    `bun:"box_id,pk,autoincrement"`
	BoxPool  BoxPool  `bun:"box_pool,notnull"`
	BoxKind  BoxKind  `bun:"box_kind,notnull"`
	BoxState BoxState `bun:"box_state,notnull"`

	// Prices in lamports. Zero means the field is not set for this kind.
	BuyNowPrice   int64 `bun:"buy_now_price"`
	BidStartPrice int64 `bun:"bid_start_price"`
	BidIncrease   int64 `bun:"bid_increase"`

	// Round lengths in seconds. CooldownDuration zero skips the cooldown
	// phase; BoxPause zero means cycles run back to back.
	BoxDuration      int64 `bun:"box_duration,notnull"`
	CooldownDuration int64 `bun:"cooldown_duration"`
	BoxPause         int64 `bun:"box_pause"`
	InitialDelay     int64 `bun:"initial_delay"`

	ExecutionsCount int64 `bun:"executions_count,notnull,default:0"`

	Timing     BoxTiming  `bun:"timing,type:jsonb"`
	BidHistory []BidEntry `bun:"bid_history,type:jsonb"`

	// Snapshot of the round in flight, used to recover after a restart.
	CurrentNftID  string `bun:"current_nft_id"`
	CurrentBidder string `bun:"current_bidder"`
	CurrentBid    int64  `bun:"current_bid"`
	LastBidAt     int64  `bun:"last_bid_at"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Remaining returns seconds left on the current phase clock.
func (b *BoxConfig) Remaining(now int64) int64 {
	return b.Timing.EndsAt - now
}
