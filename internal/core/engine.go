// Package core orchestrates the periodic refresh of every configured
// contract: authentication through the session pool, usage retrieval,
// view rebuild and publication. It is the only layer that turns the
// client's return-value signals into classified errors.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mwiesel/vodamon/internal/contract"
	"github.com/mwiesel/vodamon/internal/metrics"
	"github.com/mwiesel/vodamon/internal/store"
	"github.com/mwiesel/vodamon/internal/usage"
	"github.com/mwiesel/vodamon/internal/vodafone"
)

var (
	// ErrAuthFailed marks a credential-level failure: login failed, or a
	// fetch stayed unauthorized after the single permitted re-login. The
	// host should prompt for re-authentication rather than retry silently.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrCycleTimeout marks a refresh cycle that exceeded its deadline.
	// Recoverable; session state is left untouched for the next tick.
	ErrCycleTimeout = errors.New("refresh cycle timed out")
)

// ContractRef binds one polled contract to its credential identity.
type ContractRef struct {
	Username   string
	Password   string
	ContractID string
}

// Engine drives one refresh cycle per contract on a fixed interval.
// Views are rebuilt from scratch each cycle; the pooled session client is
// the only state shared between cycles.
type Engine struct {
	pool         *vodafone.Pool
	interval     time.Duration
	cycleTimeout time.Duration
	logger       zerolog.Logger

	readingsStore *store.Store // optional
	retention     time.Duration
	onUpdate      func(*contract.View)

	mu        sync.RWMutex
	contracts []ContractRef
	views     map[string]*contract.View
	lastErr   map[string]error
}

func NewEngine(pool *vodafone.Pool, interval, cycleTimeout time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		pool:         pool,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		logger:       logger.With().Str("component", "engine").Logger(),
		retention:    30 * 24 * time.Hour,
		views:        make(map[string]*contract.View),
		lastErr:      make(map[string]error),
	}
}

// SetStore makes the engine persist published readings.
func (e *Engine) SetStore(s *store.Store) {
	e.readingsStore = s
}

// OnUpdate registers a callback invoked after each successful cycle.
func (e *Engine) OnUpdate(fn func(*contract.View)) {
	e.onUpdate = fn
}

// SetContracts replaces the polled contract set. Credential identities
// that no longer back any contract are evicted from the pool, which closes
// their sessions; identities still in use keep their client untouched.
func (e *Engine) SetContracts(contracts []ContractRef) {
	e.mu.Lock()

	before := usernameSet(e.contracts)
	after := usernameSet(contracts)

	kept := make(map[string]bool, len(contracts))
	for _, ref := range contracts {
		kept[ref.ContractID] = true
	}
	for id := range e.views {
		if !kept[id] {
			delete(e.views, id)
			delete(e.lastErr, id)
		}
	}
	e.contracts = append([]ContractRef(nil), contracts...)
	e.mu.Unlock()

	for username := range before {
		if !after[username] {
			e.logger.Info().Str("username", username).Msg("last contract for identity removed, evicting session")
			e.pool.Remove(username)
		}
	}
}

// RemoveContract stops polling one contract, with reference-counted
// session eviction for its identity.
func (e *Engine) RemoveContract(contractID string) {
	e.mu.RLock()
	remaining := make([]ContractRef, 0, len(e.contracts))
	for _, ref := range e.contracts {
		if ref.ContractID != contractID {
			remaining = append(remaining, ref)
		}
	}
	e.mu.RUnlock()
	e.SetContracts(remaining)
}

func usernameSet(contracts []ContractRef) map[string]bool {
	out := make(map[string]bool, len(contracts))
	for _, ref := range contracts {
		out[ref.Username] = true
	}
	return out
}

// View returns the latest successful projection for a contract.
func (e *Engine) View(contractID string) (*contract.View, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.views[contractID]
	return v, ok
}

// LastError returns the classified failure of the most recent cycle, nil
// after a success.
func (e *Engine) LastError(contractID string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr[contractID]
}

// RefreshAll runs one refresh cycle for every contract. Cycles run
// concurrently; contracts sharing credentials serialize on the pool's
// per-identity login lock.
func (e *Engine) RefreshAll(ctx context.Context) {
	e.mu.RLock()
	contracts := append([]ContractRef(nil), e.contracts...)
	e.mu.RUnlock()

	var wg sync.WaitGroup
	for _, ref := range contracts {
		wg.Add(1)
		go func(ref ContractRef) {
			defer wg.Done()
			e.refreshOne(ctx, ref)
		}(ref)
	}
	wg.Wait()

	if e.readingsStore != nil {
		if pruned, err := e.readingsStore.Prune(ctx, e.retention); err != nil {
			e.logger.Warn().Err(err).Msg("pruning readings history")
		} else if pruned > 0 {
			e.logger.Debug().Int64("rows", pruned).Msg("pruned readings history")
		}
	}
}

func (e *Engine) refreshOne(ctx context.Context, ref ContractRef) {
	start := time.Now()
	view, err := e.refreshContract(ctx, ref)
	metrics.CycleDuration.Observe(time.Since(start).Seconds())

	e.mu.Lock()
	if err != nil {
		e.lastErr[ref.ContractID] = err
	} else {
		e.lastErr[ref.ContractID] = nil
		e.views[ref.ContractID] = view
	}
	e.mu.Unlock()

	if err != nil {
		metrics.CycleErrors.WithLabelValues(errorKind(err)).Inc()
		// Transient failures stay quiet beyond logging; the next tick
		// retries. Credential failures are the host's to surface.
		e.logger.Error().Err(err).Str("contract", ref.ContractID).Msg("refresh cycle failed")
		return
	}

	e.publish(ctx, view)
	e.logger.Debug().
		Str("contract", ref.ContractID).
		Dur("elapsed", time.Since(start)).
		Msg("refresh cycle completed")
}

// refreshContract performs one cycle under the per-cycle deadline:
// authenticate, fetch, and on an unauthorized response exactly one
// re-login-and-retry.
func (e *Engine) refreshContract(ctx context.Context, ref ContractRef) (*contract.View, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cycleTimeout)
	defer cancel()

	client := e.pool.GetOrCreate(ref.Username, ref.Password)

	if !e.pool.EnsureAuthenticated(ctx, client, ref.Username) {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("authenticating %s: %w", ref.Username, ErrCycleTimeout)
		}
		return nil, fmt.Errorf("login for %s: %w", ref.Username, ErrAuthFailed)
	}

	res := client.ContractUsage(ctx, ref.ContractID)
	if res.Unauthorized() {
		// Session expired server-side. One re-login, one retry.
		if !e.pool.EnsureAuthenticated(ctx, client, ref.Username) {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("re-authenticating %s: %w", ref.Username, ErrCycleTimeout)
			}
			return nil, fmt.Errorf("re-login for %s: %w", ref.Username, ErrAuthFailed)
		}
		res = client.ContractUsage(ctx, ref.ContractID)
	}

	return classifyResult(ref, res, ctx.Err())
}

func classifyResult(ref ContractRef, res vodafone.FetchResult, ctxErr error) (*contract.View, error) {
	switch {
	case res.OK():
		return contract.NewView(*res.Usage), nil
	case res.Unauthorized():
		return nil, fmt.Errorf("contract %s unauthorized after re-login: %w", ref.ContractID, ErrAuthFailed)
	case res.StatusCode == nil:
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("contract %s: %w", ref.ContractID, ErrCycleTimeout)
		}
		return nil, fmt.Errorf("contract %s: %s", ref.ContractID, res.ErrorMessage)
	default:
		return nil, fmt.Errorf("contract %s: unexpected status %d", ref.ContractID, *res.StatusCode)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrAuthFailed):
		return "auth"
	case errors.Is(err, ErrCycleTimeout):
		return "timeout"
	default:
		return "transient"
	}
}

func (e *Engine) publish(ctx context.Context, view *contract.View) {
	readings := view.Readings()
	metrics.PublishReadings(view.ContractID(), readings)

	if e.readingsStore != nil {
		if err := e.readingsStore.Record(ctx, view.ContractID(), readings); err != nil {
			e.logger.Warn().Err(err).Str("contract", view.ContractID()).Msg("recording readings")
		}
	}
	if e.onUpdate != nil {
		e.onUpdate(view)
	}
}

// Run refreshes immediately, then on every interval tick until ctx ends.
func (e *Engine) Run(ctx context.Context) {
	e.RefreshAll(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("refresh loop stopping")
			return
		case <-ticker.C:
			e.RefreshAll(ctx)
		}
	}
}

// Summaries is a convenience for one-shot callers: category summaries of
// the latest view per contract.
func (e *Engine) Summaries(contractID string) (map[usage.Category]contract.CategorySummary, bool) {
	view, ok := e.View(contractID)
	if !ok {
		return nil, false
	}
	out := make(map[usage.Category]contract.CategorySummary, len(usage.Categories))
	for _, category := range usage.Categories {
		out[category] = view.Summary(category)
	}
	return out, true
}
