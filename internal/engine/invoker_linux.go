//go:build linux

package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/restorepoint/vmcr/internal/errdefs"
	"github.com/restorepoint/vmcr/internal/log"
	"github.com/restorepoint/vmcr/internal/restoreblob"
)

var logger = log.For("engine")

// siQueue is Linux's SI_QUEUE si_code value (-1), identifying a signal
// delivered via sigqueueinfo/rt_sigqueueinfo rather than the kernel. §4.3
// requires si_code == SI_QUEUE before trusting si_int.
const siQueue int32 = -1

// Invoker drives the external image-capture engine (C3).
type Invoker struct {
	Config Config
}

// Checkpoint implements the handshake in §4.3: fork+exec the engine, then
// race a child-exit wait against the RESTORE_SIGNAL thaw wait — whichever
// fires first decides the outcome. A real freeze-then-thaw engine suspends
// the whole process including both goroutines; only the signal wait can
// ever observe a post-thaw world, so in practice it is the one that
// resolves when the engine actually checkpoints.
func (inv *Invoker) Checkpoint(ctx context.Context, imageDir string) (Outcome, error) {
	path, err := inv.Config.Resolve()
	if err != nil {
		return Outcome{State: Failed, Err: err}, err
	}
	extra, err := inv.Config.ExtraTokens()
	if err != nil {
		return Outcome{State: Failed, Err: err}, err
	}

	if _, err := blockRestoreSignal(); err != nil {
		return Outcome{State: Failed, Err: err}, err
	}

	args := append([]string{"checkpoint", imageDir}, extra...)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr

	if err := cmd.Start(); err != nil {
		return Outcome{State: Failed, Err: err}, errdefs.Unavailable(fmt.Errorf("engine: start checkpoint: %w", err))
	}
	logger.WithField("pid", cmd.Process.Pid).WithField("image_dir", imageDir).Info("engine checkpoint started")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	sigCh := make(chan struct {
		code, siInt int32
		err         error
	}, 1)
	go func() {
		code, siInt, err := waitForRestoreSignal()
		sigCh <- struct {
			code, siInt int32
			err         error
		}{code, siInt, err}
	}()

	select {
	case werr := <-waitCh:
		if werr != nil {
			return Outcome{State: Failed, Err: werr}, errdefs.Aborted(fmt.Errorf("engine checkpoint failed: %w", werr))
		}
		return Outcome{State: Skipped}, nil

	case sr := <-sigCh:
		if sr.err != nil {
			return Outcome{State: Failed, Err: sr.err}, sr.err
		}
		if sr.code != siQueue {
			err := fmt.Errorf("engine: unexpected si_code %d on restore signal", sr.code)
			return Outcome{State: Failed, Err: err}, err
		}
		if sr.siInt < 0 {
			err := errdefs.Aborted(fmt.Errorf("native checkpoint failed"))
			return Outcome{State: Failed, Err: err}, err
		}
		return Outcome{State: Restoring, RestoreBlobID: sr.siInt}, nil
	}
}

// Restore implements §4.3's "Restore handshake": it writes the restore blob
// to a fresh shared-memory segment, exports its name via NEW_ARGS_ID, then
// replaces the current process image with the engine (`engine restore
// <image-dir>`). On success this call never returns — the process becomes
// the engine, which thaws the frozen image and delivers RESTORE_SIGNAL to
// it once execution resumes inside the old sigwaitinfo call.
func (inv *Invoker) Restore(imageDir string, blob restoreblob.Blob, segmentPrefix string, writerPID int) error {
	path, err := inv.Config.Resolve()
	if err != nil {
		return err
	}
	extra, err := inv.Config.ExtraTokens()
	if err != nil {
		return err
	}

	buf, err := restoreblob.Serialize(blob)
	if err != nil {
		return fmt.Errorf("engine: serialize restore blob: %w", err)
	}
	name := restoreblob.SegmentName(segmentPrefix, writerPID)
	f, err := restoreblob.CreateWriter(name)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return errdefs.Unavailable(fmt.Errorf("engine: write restore blob: %w", err))
	}
	if err := f.Close(); err != nil {
		return errdefs.Unavailable(fmt.Errorf("engine: close restore blob: %w", err))
	}

	if err := os.Setenv(restoreblob.EnvKey, name); err != nil {
		return fmt.Errorf("engine: set %s: %w", restoreblob.EnvKey, err)
	}

	args := append([]string{path, "restore", imageDir}, extra...)
	logger.WithField("image_dir", imageDir).WithField("segment", name).Info("execing engine for restore")
	return syscall.Exec(path, args, os.Environ())
}
