// Package checkpoint implements C6 from spec §4.6: the top-level sequencer
// that ties FD inventory (C1), the resource bus (C4), FD claim/validation
// (C5), and the external engine (C3) together inside a single checkpoint
// or restore attempt.
package checkpoint

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/restorepoint/vmcr/internal/config"
	"github.com/restorepoint/vmcr/internal/engine"
	"github.com/restorepoint/vmcr/internal/errdefs"
	"github.com/restorepoint/vmcr/internal/fdclaim"
	"github.com/restorepoint/vmcr/internal/fdinventory"
	"github.com/restorepoint/vmcr/internal/log"
	"github.com/restorepoint/vmcr/internal/metrics"
	"github.com/restorepoint/vmcr/internal/resourcebus"
	"github.com/restorepoint/vmcr/internal/restoreblob"
)

var logger = log.For("checkpoint")

// Driver is the C6 sequencer. Every field but Config/Bus/Engine/Ctx is
// optional; a nil hook just skips its step.
type Driver struct {
	Config config.Config
	Bus    *resourcebus.Bus
	Engine *engine.Invoker
	Ctx    *Context
	Metrics *metrics.Collector

	HeapDumper HeapDumper
	Perf       PerfSubsystem
	Diagnostic DiagnosticListener
	GC         GCHook
}

// Request carries the per-attempt inputs named in §4.6's entry-point
// signature: "claimed-fd array from language-level collectors, dry-run
// flag, optional diagnostic stream".
type Request struct {
	// Claims are pre-collected ownership declarations from higher-level
	// language resources that ran before the driver was invoked (e.g. a
	// language runtime's own FD collectors), seeded into the fresh
	// registry before beforeCheckpoint dispatch.
	Claims []fdclaim.Claim

	DryRun bool

	// DiagnosticSocketFD is the descriptor of the diagnostic command
	// socket, exempted from validation per §4.5 step 3. -1 means none.
	DiagnosticSocketFD int

	// SkipEngine is the "skip-checkpoint" test flag from §4.6 step 7: when
	// set, the driver traces and returns without invoking the engine.
	SkipEngine bool
}

// Checkpoint runs one full attempt (§4.6 steps 1-9). On the
// freeze-then-thaw path this call suspends (inside the engine invoker's
// sigwaitinfo) until the process is restored, then continues past step 9
// as the resumed process, dispatching afterRestore before returning.
func (d *Driver) Checkpoint(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if req.DiagnosticSocketFD == 0 {
		req.DiagnosticSocketFD = -1
	}

	attemptID := uuid.New().String()
	log := logger.WithField("attempt_id", attemptID)

	if d.Diagnostic != nil {
		if err := d.Diagnostic.Abort(ctx); err != nil {
			log.WithError(err).Warn("diagnostic listener abort failed")
		}
	}
	if d.GC != nil {
		if err := d.GC.CollectFull(ctx); err != nil {
			log.WithError(err).Warn("full collection failed")
		}
	}

	reg, ok := d.Ctx.begin()
	if !ok {
		err := errdefs.FailedPrecondition(fmt.Errorf("checkpoint already in progress: %w", resourcebus.ErrRecursiveCheckpoint))
		return Result{Code: ErrorResult, AttemptID: attemptID, FailureMessages: []string{err.Error()}}, err
	}
	defer d.Ctx.end()

	if !d.Config.Configured() {
		return Result{Code: None, AttemptID: attemptID}, nil
	}
	log.Debug("checkpoint attempt starting")

	for _, c := range req.Claims {
		if err := reg.Claim(c.FD, c.Owner, c.Supplier); err != nil {
			log.WithError(err).Warn("pre-seeded claim rejected")
		}
	}

	beforeErr := d.Bus.BeforeCheckpoint(ctx)
	if beforeErr != nil {
		log.WithError(beforeErr).Warn("beforeCheckpoint callbacks reported failures")
	}

	inv, err := fdinventory.Initialize(-1)
	if err != nil {
		if restoreErr := d.Bus.AfterRestore(ctx); restoreErr != nil {
			log.WithError(restoreErr).Warn("afterRestore callbacks reported failures")
		}
		return Result{Code: ErrorResult, AttemptID: attemptID}, errdefs.Unavailable(fmt.Errorf("checkpoint: fd inventory: %w", err))
	}

	d.applyDefaultPolicy(log, inv, reg, req.DiagnosticSocketFD)

	failures := fdclaim.Validate(inv, reg, d.Ctx.preexisting, req.DiagnosticSocketFD)
	if d.Metrics != nil {
		d.Metrics.ClaimedFDGauge.Set(float64(reg.Count()))
	}

	if len(failures) > 0 && d.Config.HeapDumpOnFailure && d.HeapDumper != nil {
		if err := d.HeapDumper.Dump(ctx, "checkpoint validation failed"); err != nil {
			log.WithError(err).Warn("heap dump failed")
		}
	}

	result := Result{AttemptID: attemptID}
	result.addFailures(failures)

	if req.DryRun {
		restoreErr := d.Bus.AfterRestore(ctx)
		return d.finalize(result, beforeErr, restoreErr, failures, "checkpoint", start)
	}

	if d.Perf != nil {
		if err := d.Perf.Detach(ctx); err != nil {
			log.WithError(err).Warn("perf subsystem detach failed")
		}
	}

	if req.SkipEngine {
		log.Trace("skip-checkpoint test flag set, not invoking engine")
		if d.Perf != nil {
			if err := d.Perf.Reattach(ctx); err != nil {
				log.WithError(err).Warn("perf subsystem reattach failed")
			}
		}
		restoreErr := d.Bus.AfterRestore(ctx)
		return d.finalize(result, beforeErr, restoreErr, failures, "checkpoint", start)
	}

	outcome, engineErr := d.Engine.Checkpoint(ctx, d.Config.ImageDir)

	if d.Perf != nil {
		if err := d.Perf.Reattach(ctx); err != nil {
			log.WithError(err).Warn("perf subsystem reattach failed")
		}
	}

	switch outcome.State {
	case engine.Skipped:
		restoreErr := d.Bus.AfterRestore(ctx)
		return d.finalize(result, beforeErr, restoreErr, failures, "checkpoint", start)

	case engine.Restoring:
		restored, restoreErr := d.completeRestore(ctx, restoreblob.SegmentName(d.Config.RestoreBlobPrefix, int(outcome.RestoreBlobID)))
		restored.AttemptID = attemptID
		restored.FailureCodes = append(result.FailureCodes, restored.FailureCodes...)
		restored.FailureMessages = append(result.FailureMessages, restored.FailureMessages...)
		return d.finalize(restored, beforeErr, restoreErr, failures, "restore", start)

	default: // Failed
		if restoreErr := d.Bus.AfterRestore(ctx); restoreErr != nil {
			log.WithError(restoreErr).Warn("afterRestore callbacks reported failures")
		}
		d.observe("checkpoint", ErrorResult, start)
		return Result{Code: ErrorResult, AttemptID: attemptID, FailureCodes: result.FailureCodes, FailureMessages: result.FailureMessages}, engineErr
	}
}

// applyDefaultPolicy applies Config.DefaultFDPolicy to every still-open
// descriptor that beforeCheckpoint dispatch left unclaimed: not already
// claimed, not a VM-init preexisting descriptor, and not the diagnostic
// command socket itself (§4.5's validation exemptions apply here too, since
// a policy claim on one of those would be redundant at best). A policy
// failure is logged and left for Validate to turn into a FailureRecord.
func (d *Driver) applyDefaultPolicy(log *logrus.Entry, inv *fdinventory.Inventory, reg *fdclaim.Registry, diagnosticSocketFD int) {
	for _, entry := range inv.Entries {
		if entry.State == fdinventory.Closed || entry.State == fdinventory.Invalid {
			continue
		}
		if _, claimed := reg.Lookup(entry.FD); claimed {
			continue
		}
		if fdclaim.MatchesPreexisting(d.Ctx.preexisting, entry) {
			continue
		}
		if diagnosticSocketFD >= 0 && entry.FD == diagnosticSocketFD {
			continue
		}
		if err := d.Config.DefaultFDPolicy.Apply(entry.FD, "default-policy", reg); err != nil {
			log.WithField("fd", entry.FD).WithError(err).Warn("default fd policy application failed")
		}
	}
}

func (d *Driver) finalize(result Result, beforeErr, restoreErr error, failures []fdclaim.FailureRecord, phase string, start time.Time) (Result, error) {
	if beforeErr == nil && restoreErr == nil && len(failures) == 0 {
		result.Code = OK
	} else {
		result.Code = ErrorResult
	}
	d.observe(phase, result.Code, start)

	switch {
	case beforeErr != nil && restoreErr != nil:
		return result, fmt.Errorf("%w; %v", beforeErr, restoreErr)
	case beforeErr != nil:
		return result, beforeErr
	case restoreErr != nil:
		return result, restoreErr
	default:
		return result, nil
	}
}

func (d *Driver) observe(phase string, code ResultCode, start time.Time) {
	if d.Metrics != nil {
		d.Metrics.ObserveAttempt(phase, code.String())
		d.Metrics.Duration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}

// completeRestore implements the restore side of §4.2/§4.6: read and parse
// the blob (best-effort per RESTORE_PARAM_PARSE), apply flags/properties/
// env, and dispatch afterRestore in reverse order.
func (d *Driver) completeRestore(ctx context.Context, segmentName string) (Result, error) {
	result := Result{}

	f, err := restoreblob.OpenReader(segmentName)
	if err != nil {
		logger.WithError(err).Warn("restore blob unreadable, proceeding best-effort")
		restoreErr := d.Bus.AfterRestore(ctx)
		return result, restoreErr
	}
	defer f.Close()

	buf, err := restoreblob.ReadAll(f)
	if err != nil {
		logger.WithError(errdefs.DataLoss(err)).Warn("restore blob read failed, proceeding best-effort")
		restoreErr := d.Bus.AfterRestore(ctx)
		return result, restoreErr
	}

	blob, err := restoreblob.Parse(buf)
	if err != nil {
		logger.WithError(err).Warn("restore blob malformed, proceeding best-effort")
		restoreErr := d.Bus.AfterRestore(ctx)
		return result, restoreErr
	}

	applied, err := restoreblob.Apply(blob)
	if err != nil {
		logger.WithError(err).Warn("restore blob contents malformed, proceeding best-effort")
		restoreErr := d.Bus.AfterRestore(ctx)
		return result, restoreErr
	}

	applyEnv(applied.Env)
	if len(applied.Properties) > 0 {
		result.NewProperties = make(map[string]string, len(applied.Properties))
		for _, p := range applied.Properties {
			result.NewProperties[p.Key] = p.Value
		}
	}
	if applied.EntryPoint != "" {
		result.NewEntryPoint = applied.EntryPoint
		result.NewProgramArgs = applied.Args
	}

	restoreErr := d.Bus.AfterRestore(ctx)
	return result, restoreErr
}

// RestoreFromEnv implements the cold-start restore path: a freshly exec'd
// process (via Invoker.Restore's syscall.Exec) that never called Checkpoint
// itself reads the blob named by NEW_ARGS_ID directly, rather than resuming
// out of a sigwaitinfo call (§4.3 "Restore handshake").
func (d *Driver) RestoreFromEnv(ctx context.Context) (Result, error) {
	start := time.Now()
	attemptID := uuid.New().String()
	name := os.Getenv(restoreblob.EnvKey)
	if name == "" {
		return Result{Code: None, AttemptID: attemptID}, nil
	}
	result, err := d.completeRestore(ctx, name)
	result.AttemptID = attemptID
	return d.finalize(result, nil, err, nil, "restore", start)
}

// applyEnv replaces the process environment in bulk per §4.2: the blob's
// env list is the new environment, not an overlay on top of whatever the
// checkpointed process happened to have set, so stale entries absent from
// the blob are cleared first. Native putenv implementations don't copy the
// string buffer they're given, so callers must keep it alive for the
// process lifetime; Go's os.Setenv always copies into its own map, so no
// such leak applies here.
func applyEnv(entries []string) {
	os.Clearenv()
	for _, kv := range entries {
		i := indexByte(kv, '=')
		if i < 0 {
			continue
		}
		os.Setenv(kv[:i], kv[i+1:])
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
