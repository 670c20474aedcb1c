package resourcebus

import "context"

// Resource is the capability pair described in spec §3: a stable identity and
// the two lifecycle callbacks. Neither callback receives a pointer back to
// the bus — registration tokens are the only handle a Resource needs.
type Resource struct {
	// ID is used for logging and in failure messages; it need not be unique.
	ID string

	// BeforeCheckpoint runs during the pre-checkpoint phase. Returning an
	// error does not halt dispatch of other resources (§7 propagation
	// policy) but is accumulated into the phase's exception holder.
	BeforeCheckpoint func(ctx context.Context) error

	// AfterRestore runs during the post-restore phase, in reverse tier and
	// registration order relative to BeforeCheckpoint.
	AfterRestore func(ctx context.Context) error
}

func (r Resource) runBefore(ctx context.Context) error {
	if r.BeforeCheckpoint == nil {
		return nil
	}
	return r.BeforeCheckpoint(ctx)
}

func (r Resource) runAfter(ctx context.Context) error {
	if r.AfterRestore == nil {
		return nil
	}
	return r.AfterRestore(ctx)
}
