package models

import (
	"time"

	"github.com/uptrace/bun"
)

// StatsRowID is the key of the singleton stats row.
const StatsRowID = "global"

const DefaultSecondsExtending = 15

type Stats struct {
	bun.BaseModel `bun:"table:stats,alias:s"`

	ID          string `bun:"id,pk"`
	TotalBids   int64  `bun:"total_bids,notnull,default:0"`
	TotalSales  int64  `bun:"total_sales,notnull,default:0"`
	HighestSale int64  `bun:"highest_sale,notnull,default:0"`

	// Operator-tunable Active phase extension window, in seconds.
	SecondsExtending int64 `bun:"seconds_extending,notnull,default:15"`

	ConnectedUsersCount int64 `bun:"connected_users_count,notnull,default:0"`

	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// PoolConfig controls front-facing visibility per access tier.
type PoolConfig struct {
	bun.BaseModel `bun:"table:pool_configs,alias:pc"`

	BoxPool        BoxPool `bun:"box_pool,pk"`
	IsVisible      bool    `bun:"is_visible,notnull,default:true"`
	IsVisibleStats bool    `bun:"is_visible_stats,notnull,default:true"`
}
