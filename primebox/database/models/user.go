package models

import (
	"time"

	"github.com/uptrace/bun"
)

// UserRole mirrors the community directory roles that map to box pools.
type UserRole string

const (
	RolePreSale   UserRole = "presale"
	RoleOG        UserRole = "og"
	RolePrimeList UserRole = "primelist"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string     `bun:"id,pk"`
	Username  string     `bun:"username,notnull"`
	DiscordID string     `bun:"discord_id,notnull,unique"`
	Wallets   []string   `bun:"wallets,type:jsonb"`
	Roles     []UserRole `bun:"roles,type:jsonb"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// PermittedPool is the most exclusive tier the user's roles grant. A user
// with no mapped roles only qualifies for public boxes.
func (u *User) PermittedPool() BoxPool {
	permitted := PoolPublic
	for _, r := range u.Roles {
		var p BoxPool
		switch r {
		case RolePreSale:
			p = PoolPreSale
		case RoleOG:
			p = PoolOG
		case RolePrimeList:
			p = PoolPrimeList
		default:
			continue
		}
		if p < permitted {
			permitted = p
		}
	}
	return permitted
}
