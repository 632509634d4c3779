package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Nft struct {
	bun.BaseModel `bun:"table:nfts,alias:n"`

	NftID    string `bun:"nft_id,pk"`
	NftName  string `bun:"nft_name,notnull"`
	NftURI   string `bun:"nft_uri,notnull"`
	NftImage string `bun:"nft_image"`

	BoxPool BoxPool `bun:"box_pool,notnull"`

	// IsInBox marks an item reserved by a running box round.
	IsInBox        bool  `bun:"is_in_box,notnull,default:false"`
	Minted         bool  `bun:"minted,notnull,default:false"`
	ReshuffleCount int64 `bun:"reshuffle_count,notnull,default:0"`

	Owner     string     `bun:"owner"`
	MintedFor int64      `bun:"minted_for"`
	MintedAt  *time.Time `bun:"minted_at"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
