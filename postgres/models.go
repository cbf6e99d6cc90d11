package postgres

import (
	"time"

	"github.com/uptrace/bun"
)

// A state row holds one persisted key of one client profile.
type state struct {
	bun.BaseModel `bun:"table:client_state"`

	Namespace string    `bun:",pk"`
	Key       string    `bun:"state_key,pk"`
	Value     string    `bun:",notnull"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:now()"`
}
