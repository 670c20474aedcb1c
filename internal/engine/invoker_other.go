//go:build !linux

package engine

import (
	"context"
	"errors"

	"github.com/restorepoint/vmcr/internal/restoreblob"
)

// ErrUnsupportedPlatform is returned on platforms without the real-time
// signal handshake this coordinator relies on (§6 "RESTORE_SIGNAL ... or
// platform equivalent" — no equivalent is wired here).
var ErrUnsupportedPlatform = errors.New("engine: checkpoint/restore is only implemented on linux")

type Invoker struct {
	Config Config
}

func (inv *Invoker) Checkpoint(ctx context.Context, imageDir string) (Outcome, error) {
	return Outcome{State: Failed, Err: ErrUnsupportedPlatform}, ErrUnsupportedPlatform
}

func (inv *Invoker) Restore(imageDir string, blob restoreblob.Blob, segmentPrefix string, writerPID int) error {
	return ErrUnsupportedPlatform
}
