package query

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/maxpert/powder/protocol/query/transform"
	"github.com/maxpert/powder/telemetry"
)

// Pipeline caches transpiled plans per session context and statement text.
// Cached plans are shared and must be treated as read-only.
type Pipeline struct {
	transpiler *Transpiler
	cache      *lru.Cache[uint64, *Plan]
}

func NewPipeline(cacheSize int) (*Pipeline, error) {
	p := &Pipeline{transpiler: NewTranspiler(nil)}
	if cacheSize > 0 {
		cache, err := lru.New[uint64, *Plan](cacheSize)
		if err != nil {
			return nil, err
		}
		p.cache = cache
	}
	return p, nil
}

// Transform returns the plan for sql under env.
func (p *Pipeline) Transform(sql string, env *transform.Env) (*Plan, error) {
	var key uint64
	if p.cache != nil {
		key = cacheKey(sql, env)
		if plan, ok := p.cache.Get(key); ok {
			telemetry.TranspileCacheTotal.With("hit").Inc()
			cp := *plan
			cp.Cached = true
			return &cp, nil
		}
		telemetry.TranspileCacheTotal.With("miss").Inc()
	}

	plan, err := p.transpiler.Transpile(sql, env)
	if err != nil {
		return nil, err
	}
	if len(plan.Rules) > 0 {
		log.Debug().
			Strs("rules", plan.Rules).
			Int("statements", len(plan.Statements)).
			Msg("Statement rewritten")
	}
	if p.cache != nil {
		p.cache.Add(key, plan)
	}
	return plan, nil
}

// Purge drops every cached plan. Namespace DDL calls it since plans embed
// resolved names.
func (p *Pipeline) Purge() {
	if p.cache != nil {
		p.cache.Purge()
	}
}

func cacheKey(sql string, env *transform.Env) uint64 {
	d := xxhash.New()
	if env != nil {
		for _, s := range []string{env.Database, env.Schema, env.Warehouse, env.Role, env.User} {
			_, _ = d.WriteString(s)
			_, _ = d.Write([]byte{0})
		}
	}
	_, _ = d.WriteString(sql)
	return d.Sum64()
}
