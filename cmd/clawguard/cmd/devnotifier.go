package cmd

import (
	"fmt"

	"github.com/clawguard/clawguard/internal/domain/notify"
)

// noopNotifier stands in for the Telegram transport when DevMode is on
// and no bot token was configured. Every prompt fails immediately, which
// the Approval Coordinator resolves as a denial rather than hanging
// until the approval deadline.
type noopNotifier struct{}

func (noopNotifier) Prompt(p notify.Prompt) error {
	return fmt.Errorf("telegram: no bot token configured (dev mode), cannot deliver prompt for %s %s", p.Method, p.Path)
}

func (noopNotifier) Start() error { return nil }

func (noopNotifier) Stop() {}
