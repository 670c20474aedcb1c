//go:build linux

package engine

import (
	"fmt"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// rtSigMin is glibc's user-visible SIGRTMIN on Linux/x86_64: the kernel's
// real-time range starts at 32, but glibc reserves signals 32 and 33 for
// its own pthread implementation (NPTL thread cancellation and setuid
// handling), so application code sees 34 as the first usable real-time
// signal. golang.org/x/sys/unix does not expose SIGRTMIN because Go's own
// signal machinery reserves a handful of these too; this coordinator claims
// one fixed slot the way §6 specifies.
const rtSigMin = 34

// RestoreSignal is SIGRTMIN+2 (§6): delivered by the engine to the
// resurrected process to indicate thaw.
const RestoreSignal = syscall.Signal(rtSigMin + 2)

// linuxSiginfo mirrors the portion of Linux's siginfo_t this coordinator
// reads: si_signo/si_errno/si_code followed (after the ABI's alignment
// padding) by si_pid/si_uid and the sigval_t union carrying si_int/si_ptr.
// Only x86_64's layout is modeled; other architectures would need their own
// offsets.
type linuxSiginfo struct {
	signo, errno, code int32
	_                  int32 // ABI padding before the union
	pid, uid           int32
	value              int64 // sigval_t union: low 4 bytes are si_int
}

func (s linuxSiginfo) siInt() int32 { return int32(s.value) }

// blockRestoreSignal blocks RestoreSignal in the calling OS thread's mask so
// it is queued instead of delivered to a default handler while the driver
// is between fork/exec and the sigwaitinfo call (§4.3 step 3, §5 "the
// driver blocks it in its own sigmask before invoking the engine").
func blockRestoreSignal() (unix.Sigset_t, error) {
	var set unix.Sigset_t
	if err := unix.SigsetAdd(&set, int(RestoreSignal)); err != nil {
		return set, fmt.Errorf("engine: build sigset: %w", err)
	}
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		return set, fmt.Errorf("engine: block restore signal: %w", err)
	}
	return set, nil
}

// waitForRestoreSignal suspends the current OS thread in sigwaitinfo until
// RestoreSignal arrives (§4.3 step 3, §5 "the single canonical thaw
// suspension point"). EINTR is retried per §5's cancellation policy. The
// caller must have locked the calling goroutine to its OS thread and
// blocked RestoreSignal via blockRestoreSignal first.
func waitForRestoreSignal() (code int32, siInt int32, err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var set unix.Sigset_t
	if serr := unix.SigsetAdd(&set, int(RestoreSignal)); serr != nil {
		return 0, 0, fmt.Errorf("engine: build wait sigset: %w", serr)
	}

	var info linuxSiginfo
	for {
		_, _, errno := unix.Syscall6(
			unix.SYS_RT_SIGTIMEDWAIT,
			uintptr(unsafe.Pointer(&set)),
			uintptr(unsafe.Pointer(&info)),
			0, // no timeout: block indefinitely, matching "no timeout on engine child"
			unsafe.Sizeof(set),
			0, 0,
		)
		if errno == 0 {
			break
		}
		if errno == syscall.EINTR {
			continue
		}
		return 0, 0, fmt.Errorf("engine: sigwaitinfo: %w", errno)
	}
	return info.code, info.siInt(), nil
}

// waitForRestoreSignalTimeout is a bounded variant of waitForRestoreSignal
// that gives up after d, so a broken handshake cannot block forever. Nothing
// in this repository calls it.
func waitForRestoreSignalTimeout(d time.Duration) (code int32, siInt int32, err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var set unix.Sigset_t
	if serr := unix.SigsetAdd(&set, int(RestoreSignal)); serr != nil {
		return 0, 0, fmt.Errorf("engine: build wait sigset: %w", serr)
	}
	ts := unix.NsecToTimespec(d.Nanoseconds())

	var info linuxSiginfo
	_, _, errno := unix.Syscall6(
		unix.SYS_RT_SIGTIMEDWAIT,
		uintptr(unsafe.Pointer(&set)),
		uintptr(unsafe.Pointer(&info)),
		uintptr(unsafe.Pointer(&ts)),
		unsafe.Sizeof(set),
		0, 0,
	)
	if errno != 0 {
		return 0, 0, fmt.Errorf("engine: sigwaitinfo: %w", errno)
	}
	return info.code, info.siInt(), nil
}
