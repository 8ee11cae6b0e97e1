package bootstrap

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Priority constants control init order; lower runs first.
const (
	PriorityInfrastructure = 10 // logging, config
	PriorityDatabase       = 20 // sqlite connection, migrations
	PriorityCore           = 50 // store, ingest
	PriorityBusiness       = 100 // candle service, aggregation engine, hub, HTTP server
	PriorityBackground     = 200 // background sweepers
)

// ErrorPolicy controls what Run does when a hook returns an error.
type ErrorPolicy int

const (
	FailFast ErrorPolicy = iota
	ContinueOnError
	WarnOnError
)

var (
	hooks   []Hook
	hooksMu sync.Mutex
)

// Register adds an initialization step. name identifies the module in logs;
// priority orders it against the other registered hooks (see Priority* constants).
func Register(name string, priority int, fn func(*Context) error) *HookBuilder {
	hooksMu.Lock()
	defer hooksMu.Unlock()

	hook := Hook{
		Name:        name,
		Priority:    priority,
		Func:        fn,
		Enabled:     nil,
		ErrorPolicy: FailFast,
	}

	hooks = append(hooks, hook)
	return &HookBuilder{hook: &hooks[len(hooks)-1]}
}

// Run executes all registered hooks in priority order under FailFast.
func Run(ctx *Context) error {
	return RunWithPolicy(ctx, FailFast)
}

// RunWithPolicy executes all registered hooks, applying defaultPolicy to any
// failing hook whose own policy is FailFast, whether left at the default or
// set explicitly via HookBuilder.WithErrorPolicy.
func RunWithPolicy(ctx *Context, defaultPolicy ErrorPolicy) error {
	hooksMu.Lock()
	hooksCopy := make([]Hook, len(hooks))
	copy(hooksCopy, hooks)
	hooksMu.Unlock()

	if len(hooksCopy) == 0 {
		log.Warn().Msg("bootstrap: no hooks registered")
		return nil
	}

	sort.Slice(hooksCopy, func(i, j int) bool {
		return hooksCopy[i].Priority < hooksCopy[j].Priority
	})

	log.Info().Int("count", len(hooksCopy)).Msg("bootstrap: starting init sequence")
	startTime := time.Now()

	var errs []error
	successCount := 0
	skippedCount := 0

	for i, hook := range hooksCopy {
		if hook.Enabled != nil && !hook.Enabled(ctx) {
			log.Info().Int("step", i+1).Int("total", len(hooksCopy)).Str("name", hook.Name).
				Msg("bootstrap: skipped (condition not met)")
			skippedCount++
			continue
		}

		log.Info().Int("step", i+1).Int("total", len(hooksCopy)).Str("name", hook.Name).
			Int("priority", hook.Priority).Msg("bootstrap: initializing")

		hookStart := time.Now()
		err := hook.Func(ctx)
		elapsed := time.Since(hookStart)

		if err != nil {
			errMsg := fmt.Errorf("[%s] init failed: %w", hook.Name, err)

			policy := hook.ErrorPolicy
			if policy == FailFast && defaultPolicy != FailFast {
				policy = defaultPolicy
			}

			switch policy {
			case FailFast:
				log.Error().Str("name", hook.Name).Dur("elapsed", elapsed).Err(err).Msg("bootstrap: failed")
				return errMsg
			case ContinueOnError:
				log.Error().Str("name", hook.Name).Dur("elapsed", elapsed).Err(err).Msg("bootstrap: failed, continuing")
				errs = append(errs, errMsg)
			case WarnOnError:
				log.Warn().Str("name", hook.Name).Dur("elapsed", elapsed).Err(err).Msg("bootstrap: warning")
			}
		} else {
			log.Info().Str("name", hook.Name).Dur("elapsed", elapsed).Msg("bootstrap: done")
			successCount++
		}
	}

	totalElapsed := time.Since(startTime)

	if len(errs) > 0 {
		log.Warn().Int("failed", len(errs)).Dur("elapsed", totalElapsed).
			Msg("bootstrap: init sequence finished with failures")
		log.Info().Int("success", successCount).Int("failed", len(errs)).Int("skipped", skippedCount).Msg("bootstrap: summary")
		return fmt.Errorf("modules failed to initialize: %v", errs)
	}

	log.Info().Dur("elapsed", totalElapsed).Msg("bootstrap: all modules initialized")
	log.Info().Int("success", successCount).Int("skipped", skippedCount).Msg("bootstrap: summary")
	return nil
}

// GetRegistered returns a snapshot of all registered hooks, for tests/diagnostics.
func GetRegistered() []Hook {
	hooksMu.Lock()
	defer hooksMu.Unlock()

	hooksCopy := make([]Hook, len(hooks))
	copy(hooksCopy, hooks)
	return hooksCopy
}

// Clear removes all registered hooks. Used between tests.
func Clear() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = nil
}

func Count() int {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	return len(hooks)
}
