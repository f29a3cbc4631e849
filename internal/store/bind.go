package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/snake/apps/go-server/internal/game"
)

const opTimeout = 2 * time.Second

// bound adapts a Store to game.Settings for a single owner.
type bound struct {
	ctx   context.Context
	st    Store
	owner string
}

// Bind returns game.Settings that read and write st under owner.
// Storage errors are logged and never reach the engine: a failed load yields
// the default, a failed store is dropped.
func Bind(ctx context.Context, st Store, owner string) game.Settings {
	return &bound{ctx: ctx, st: st, owner: owner}
}

func (b *bound) LoadInt(key string, def int) int {
	ctx, cancel := context.WithTimeout(b.ctx, opTimeout)
	defer cancel()
	v, ok, err := b.st.GetInt(ctx, b.owner, key)
	if err != nil {
		log.Warn().Err(err).Str("owner", b.owner).Str("key", key).Msg("load setting")
		return def
	}
	if !ok {
		return def
	}
	return v
}

func (b *bound) StoreInt(key string, value int) {
	ctx, cancel := context.WithTimeout(b.ctx, opTimeout)
	defer cancel()
	if err := b.st.SetInt(ctx, b.owner, key, value); err != nil {
		log.Warn().Err(err).Str("owner", b.owner).Str("key", key).Msg("store setting")
	}
}
