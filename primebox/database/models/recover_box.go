package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RecoverBox is a settlement that failed on-chain and is waiting to be
// replayed by the recovery sweep. Rows are deleted once the settlement
// instruction lands.
type RecoverBox struct {
	bun.BaseModel `bun:"table:recover_boxes,alias:rb"`

	ID            string    `bun:"id,pk"`
	BoxAddress    string    `bun:"box_address,notnull"`
	BoxTreasury   string    `bun:"box_treasury,notnull"`
	Winner        string    `bun:"winner,notnull"`
	WinningAmount int64     `bun:"winning_amount,notnull"`
	NftID         string    `bun:"nft_id,notnull"`
	NftURI        string    `bun:"nft_uri,notnull"`
	FailedAt      time.Time `bun:"failed_at,notnull,default:current_timestamp"`
}
