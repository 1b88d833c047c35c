package fallback

import (
	"context"
	"time"

	"github.com/sideline-chat/sideline/pkg/log"
)

const (
	// DefaultDegradedReply is delivered when the generation call fails or
	// exceeds the deadline.
	DefaultDegradedReply = "The user is currently unavailable."

	defaultTimeout   = 10 * time.Second
	defaultMaxTokens = 100
)

// Generator produces a single-turn text completion with an output cap.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Responder wraps a Generator with a hard deadline and a degraded-response
// policy. Respond never fails: any generation error or timeout is absorbed
// into the degraded reply so the sender always gets a value.
type Responder struct {
	gen       Generator
	timeout   time.Duration
	maxTokens int
	degraded  string
}

// Config tunes the responder; zero values select defaults.
type Config struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	DegradedReply string        `mapstructure:"degraded_reply"`
}

// NewResponder creates a Responder over the given generator.
func NewResponder(gen Generator, cfg Config) *Responder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.DegradedReply == "" {
		cfg.DegradedReply = DefaultDegradedReply
	}
	return &Responder{
		gen:       gen,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		degraded:  cfg.DegradedReply,
	}
}

// Respond races the generation call against the wall-clock deadline and
// returns whichever resolves first. A completion that loses the race is
// discarded; it can never double-deliver.
func (r *Responder) Respond(ctx context.Context, prompt string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}

	// Buffered so a late completion doesn't leak the goroutine.
	ch := make(chan result, 1)
	go func() {
		text, err := r.gen.Generate(ctx, prompt, r.maxTokens)
		ch <- result{text: text, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(res.err).Msg("generation failed, using degraded reply")
			return r.degraded
		}
		return res.text
	case <-ctx.Done():
		l := log.Ctx(ctx)
		l.Warn().Dur("timeout", r.timeout).Msg("generation deadline exceeded, using degraded reply")
		return r.degraded
	}
}
