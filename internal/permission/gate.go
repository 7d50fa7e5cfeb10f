// Package permission gates microphone access behind a user decision.
package permission

import (
	"context"
	"fmt"
	"sync"
)

type Decision string

const (
	Granted Decision = "granted"
	Denied  Decision = "denied"
)

// Mode selects how decisions are obtained.
type Mode string

const (
	ModeAllow  Mode = "allow"
	ModePrompt Mode = "prompt"
	ModeDeny   Mode = "deny"
)

// Prompter asks the user (or a policy) for a decision.
type Prompter interface {
	Prompt(ctx context.Context) (Decision, error)
}

// PrompterFunc adapts a function into a Prompter.
type PrompterFunc func(ctx context.Context) (Decision, error)

func (f PrompterFunc) Prompt(ctx context.Context) (Decision, error) {
	return f(ctx)
}

// Static always answers with the same decision.
func Static(decision Decision) Prompter {
	return PrompterFunc(func(context.Context) (Decision, error) {
		return decision, nil
	})
}

// Gate caches the first successful decision for the life of the process.
// A failed prompt is not cached, so the next Request asks again.
type Gate struct {
	prompter Prompter

	mu      sync.Mutex
	decided bool
	cached  Decision
}

func NewGate(prompter Prompter) *Gate {
	if prompter == nil {
		prompter = Static(Granted)
	}
	return &Gate{prompter: prompter}
}

// Request returns the cached decision or prompts once for a new one.
func (g *Gate) Request(ctx context.Context) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.decided {
		return g.cached, nil
	}
	if err := ctx.Err(); err != nil {
		return Denied, err
	}

	decision, err := g.prompter.Prompt(ctx)
	if err != nil {
		return Denied, fmt.Errorf("request microphone permission: %w", err)
	}
	switch decision {
	case Granted, Denied:
	default:
		return Denied, fmt.Errorf("request microphone permission: unknown decision %q", decision)
	}

	g.decided = true
	g.cached = decision
	return decision, nil
}

// Cached returns the remembered decision without prompting.
func (g *Gate) Cached() (Decision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cached, g.decided
}

// Reset forgets the cached decision, as if the OS permission was revoked.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.decided = false
	g.cached = ""
}
