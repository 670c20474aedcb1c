// Package resourcebus implements the prioritized, ordered broadcast of
// beforeCheckpoint/afterRestore callbacks described in spec §4.4 (C4): a
// fixed tier enum defines both dispatch order and the cross-tier dependency
// invariant, exception accumulation never aborts a phase early, and some
// tiers block concurrent registration while a checkpoint is in flight.
package resourcebus

import (
	"context"
	"sync"

	"github.com/restorepoint/vmcr/internal/log"
)

var logger = log.For("resourcebus")

type tierContext struct {
	mu        sync.Mutex
	cond      *sync.Cond
	resources []Resource
	blocking  bool

	// checkpointing is true for the whole duration of a checkpoint/restore
	// cycle for blocking tiers; registrants wait on cond until it clears.
	checkpointing bool
}

func newTierContext(blocking bool) *tierContext {
	tc := &tierContext{blocking: blocking}
	tc.cond = sync.NewCond(&tc.mu)
	return tc
}

// Bus is the process-wide, singleton registry described in §9 ("Cycles and
// global state"): owned by runtime initialization, torn down only at
// process exit.
type Bus struct {
	tiers [numTiers]*tierContext
}

// New constructs an empty Bus. The coordinator keeps exactly one live
// instance for the process; tests construct their own to stay isolated.
func New() *Bus {
	b := &Bus{}
	for t := Tier(0); t < numTiers; t++ {
		b.tiers[t] = newTierContext(t.blocking())
	}
	return b
}

// Register attaches r to tier's ordered context. If tier is a blocking tier
// and a checkpoint/restore cycle is in progress, Register suspends until
// AfterRestore dispatch completes (§4.4 "Blocking variant"). A context whose
// Done channel is already closed when Register is called does not wait — it
// fails the registration immediately, matching "an already-interrupted
// caller does not wait".
func (b *Bus) Register(ctx context.Context, tier Tier, r Resource) error {
	tc := b.tiers[tier]

	if ctx.Err() != nil {
		return ctx.Err()
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.blocking {
		for tc.checkpointing {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tc.cond.Wait()
		}
	}
	tc.resources = append(tc.resources, r)
	logger.WithField("tier", tier).WithField("resource", r.ID).Debug("registered")
	return nil
}

// BeforeCheckpoint dispatches the pre-checkpoint phase: tiers low-to-high,
// within a tier first-to-last registration order. It never stops early on a
// per-resource failure; the returned error, if non-nil, is a
// *PhaseException carrying every failure as a suppressed cause.
func (b *Bus) BeforeCheckpoint(ctx context.Context) error {
	h := newHolder("checkpoint")
	for t := Tier(0); t < numTiers; t++ {
		tc := b.tiers[t]
		tc.mu.Lock()
		if tc.blocking {
			tc.checkpointing = true
		}
		resources := append([]Resource(nil), tc.resources...)
		tc.mu.Unlock()

		for _, r := range resources {
			if err := r.runBefore(ctx); err != nil {
				logger.WithField("tier", t).WithField("resource", r.ID).WithError(err).Warn("beforeCheckpoint failed")
				h.add(err)
			}
			h.addInterrupted(ctx)
		}
	}
	return h.build()
}

// AfterRestore dispatches the post-restore phase in the reverse order of
// BeforeCheckpoint (§4.4), then releases any blocking tiers' registration
// waiters (§4.4 "admitted only after afterRestore completes").
func (b *Bus) AfterRestore(ctx context.Context) error {
	h := newHolder("restore")
	for t := numTiers - 1; t >= 0; t-- {
		tc := b.tiers[t]
		tc.mu.Lock()
		resources := append([]Resource(nil), tc.resources...)
		tc.mu.Unlock()

		for i := len(resources) - 1; i >= 0; i-- {
			r := resources[i]
			if err := r.runAfter(ctx); err != nil {
				logger.WithField("tier", t).WithField("resource", r.ID).WithError(err).Warn("afterRestore failed")
				h.add(err)
			}
			h.addInterrupted(ctx)
		}
	}

	for t := Tier(0); t < numTiers; t++ {
		tc := b.tiers[t]
		tc.mu.Lock()
		if tc.blocking {
			tc.checkpointing = false
			tc.cond.Broadcast()
		}
		tc.mu.Unlock()
	}
	return h.build()
}

// Reset clears every tier's registrations. Used by tests only; production
// code never deregisters a live Bus.
func (b *Bus) Reset() {
	for t := Tier(0); t < numTiers; t++ {
		tc := b.tiers[t]
		tc.mu.Lock()
		tc.resources = nil
		tc.checkpointing = false
		tc.mu.Unlock()
	}
}
