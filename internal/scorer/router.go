package scorer

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"policy-audit/internal/config"
)

// Router dispatches scoring to a prioritized chain of providers. An
// explicit caller preference is honored when that provider is configured;
// otherwise the fixed gemini, openai, groq order applies, with the
// deterministic mock as the final fallback. The fallback is observable, not
// silent: the returned Provider field names the path taken.
type Router struct {
	chain []Scorer
	mock  Scorer
}

func NewRouter(cfg *config.ProvidersConfig) *Router {
	r := &Router{mock: Mock{}}
	if cfg == nil {
		return r
	}
	for _, p := range []*Provider{
		NewProvider("gemini", cfg.Gemini, cfg.Timeout),
		NewProvider("openai", cfg.OpenAI, cfg.Timeout),
		NewProvider("groq", cfg.Groq, cfg.Timeout),
	} {
		if p.Available() {
			r.chain = append(r.chain, p)
		}
	}
	return r
}

// NewRouterWith builds a router over explicit scorers, in priority order.
// The mock fallback is always appended.
func NewRouterWith(scorers ...Scorer) *Router {
	return &Router{chain: scorers, mock: Mock{}}
}

// order returns the chain with the preferred provider moved to the front.
func (r *Router) order(prefer string) []Scorer {
	if prefer == "" {
		return r.chain
	}
	out := make([]Scorer, 0, len(r.chain))
	for _, s := range r.chain {
		if s.Name() == prefer {
			out = append(out, s)
		}
	}
	for _, s := range r.chain {
		if s.Name() != prefer {
			out = append(out, s)
		}
	}
	return out
}

// Score walks the provider chain. Transport and availability failures fall
// through to the next provider; a ScoreParseError stops the chain at once,
// because a malformed verdict must surface rather than be retried into a
// different answer.
func (r *Router) Score(ctx context.Context, prompt, prefer string) (*Result, error) {
	return r.dispatch(ctx, prompt, prefer, nil)
}

// ScoreStream behaves like Score with incremental rationale delivery.
func (r *Router) ScoreStream(ctx context.Context, prompt, prefer string, onDelta func(string)) (*Result, error) {
	return r.dispatch(ctx, prompt, prefer, onDelta)
}

// Generate returns raw completion text, walking the same chain as Score but
// without verdict parsing. Used for free-form drafting.
func (r *Router) Generate(ctx context.Context, prompt, prefer string) (string, error) {
	for _, s := range r.order(prefer) {
		if !s.Available() {
			continue
		}
		text, err := s.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Warn().Err(err).Str("provider", s.Name()).Msg("provider failed, trying next")
	}
	if r.mock == nil {
		return "", ErrProviderUnavailable
	}
	return r.mock.Generate(ctx, prompt)
}

func (r *Router) dispatch(ctx context.Context, prompt, prefer string, onDelta func(string)) (*Result, error) {
	for _, s := range r.order(prefer) {
		if !s.Available() {
			continue
		}
		var res *Result
		var err error
		if onDelta != nil {
			res, err = s.ScoreStream(ctx, prompt, onDelta)
		} else {
			res, err = s.Score(ctx, prompt)
		}
		if err == nil {
			return res, nil
		}
		var parseErr *ScoreParseError
		if errors.As(err, &parseErr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("provider", s.Name()).Msg("provider failed, trying next")
	}

	if r.mock == nil {
		return nil, ErrProviderUnavailable
	}
	log.Debug().Msg("falling back to mock scorer")
	if onDelta != nil {
		return r.mock.ScoreStream(ctx, prompt, onDelta)
	}
	return r.mock.Score(ctx, prompt)
}
