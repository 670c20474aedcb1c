package checkpoint

import (
	"context"
	"os"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/restorepoint/vmcr/internal/config"
	"github.com/restorepoint/vmcr/internal/errdefs"
	"github.com/restorepoint/vmcr/internal/fdclaim"
	"github.com/restorepoint/vmcr/internal/fdinventory"
	"github.com/restorepoint/vmcr/internal/resourcebus"
)

func newTestDriver(t *testing.T, cfg config.Config) *Driver {
	t.Helper()
	return &Driver{
		Config: cfg,
		Bus:    resourcebus.New(),
		Ctx:    NewContext(nil),
	}
}

func TestCheckpointConfigMissingReturnsNone(t *testing.T) {
	d := newTestDriver(t, config.Config{})
	result, err := d.Checkpoint(context.Background(), Request{})
	assert.NilError(t, err)
	assert.Equal(t, result.Code, None)
}

func TestCheckpointDryRunPlainRoundTrip(t *testing.T) {
	inv, err := fdinventory.Initialize(-1)
	assert.NilError(t, err)
	pre := fdclaim.Snapshot(inv)

	d := newTestDriver(t, config.Config{ImageDir: t.TempDir()})
	d.Ctx = NewContext(pre)

	var beforeRan, afterRan bool
	err = d.Bus.Register(context.Background(), resourcebus.Normal, resourcebus.Resource{
		ID: "test-resource",
		BeforeCheckpoint: func(ctx context.Context) error {
			beforeRan = true
			return nil
		},
		AfterRestore: func(ctx context.Context) error {
			afterRan = true
			return nil
		},
	})
	assert.NilError(t, err)

	result, err := d.Checkpoint(context.Background(), Request{DryRun: true, DiagnosticSocketFD: -1})
	assert.NilError(t, err)
	assert.Equal(t, result.Code, OK)
	assert.Assert(t, beforeRan)
	assert.Assert(t, afterRan) // dry run skips the engine but still dispatches afterRestore
}

func TestCheckpointRecursiveRequestFails(t *testing.T) {
	d := newTestDriver(t, config.Config{ImageDir: t.TempDir()})
	_, ok := d.Ctx.begin()
	assert.Assert(t, ok)
	defer d.Ctx.end()

	_, err := d.Checkpoint(context.Background(), Request{DryRun: true})
	assert.Assert(t, err != nil)
	assert.Assert(t, errdefs.IsFailedPrecondition(err))
}

func TestCheckpointAccumulatesBeforeAndValidationFailures(t *testing.T) {
	inv, err := fdinventory.Initialize(-1)
	assert.NilError(t, err)
	pre := fdclaim.Snapshot(inv)

	extra, err := os.CreateTemp(t.TempDir(), "unclaimed")
	assert.NilError(t, err)
	defer extra.Close()

	d := newTestDriver(t, config.Config{ImageDir: t.TempDir()})
	d.Ctx = NewContext(pre)

	err = d.Bus.Register(context.Background(), resourcebus.Normal, resourcebus.Resource{
		ID: "failing-resource",
		BeforeCheckpoint: func(ctx context.Context) error {
			return errdefs.InvalidParameter(assertErr("beforeCheckpoint boom"))
		},
	})
	assert.NilError(t, err)

	result, err := d.Checkpoint(context.Background(), Request{DryRun: true})
	assert.Assert(t, err != nil)
	assert.Equal(t, result.Code, ErrorResult)
	assert.Assert(t, len(result.FailureMessages) > 0) // the new unclaimed, non-preexisting temp fd
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
