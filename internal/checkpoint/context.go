package checkpoint

import (
	"sync"

	"github.com/restorepoint/vmcr/internal/fdclaim"
)

// Context is the process-wide singleton named in spec §3 ("CheckpointContext"):
// it holds the recursion guard and, for the duration of one attempt, the
// claim registry and preexisting-FD snapshot.
type Context struct {
	mu          sync.Mutex
	inProgress  bool
	claims      *fdclaim.Registry
	preexisting map[int]fdclaim.Identity
}

// NewContext constructs an idle context. preexisting should be captured
// once, at VM-init time, by snapshotting the FD inventory before any
// checkpoint attempt (§4.5 step 2).
func NewContext(preexisting map[int]fdclaim.Identity) *Context {
	return &Context{preexisting: preexisting}
}

// begin installs a fresh claim registry and sets the recursion guard. It
// returns false if a checkpoint is already in progress (§5 "Recursion
// guard"; §3 invariant "at most one checkpoint in progress per process").
func (c *Context) begin() (*fdclaim.Registry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inProgress {
		return nil, false
	}
	c.inProgress = true
	c.claims = fdclaim.New()
	return c.claims, true
}

func (c *Context) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inProgress = false
	c.claims = nil
}

// Claims returns the registry for the in-progress attempt, or nil if none.
func (c *Context) Claims() *fdclaim.Registry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claims
}
