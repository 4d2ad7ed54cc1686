// ABOUTME: Echo agent variant that reflects input back with optional decoration
// ABOUTME: Stateless; useful for connectivity checks and routing verification

package agent

import "context"

// Echo returns the incoming text wrapped in a configured prefix and
// suffix. It keeps no conversation state.
type Echo struct {
	prefix string
	suffix string
}

// NewEcho builds an echo agent from behavior config. Recognized keys:
// prefix, suffix.
func NewEcho(cfg map[string]any) *Echo {
	return &Echo{
		prefix: stringOpt(cfg, "prefix", ""),
		suffix: stringOpt(cfg, "suffix", ""),
	}
}

func (e *Echo) Execute(_ context.Context, content, _ string, _ bool) (string, error) {
	return e.prefix + content + e.suffix, nil
}

var _ Agent = (*Echo)(nil)
