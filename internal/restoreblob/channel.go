package restoreblob

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/restorepoint/vmcr/internal/log"
)

var logger = log.For("restoreblob")

// EnvKey is the environment variable the image-producing side sets and the
// resurrected process reads to locate the shared-memory segment (§6).
const EnvKey = "NEW_ARGS_ID"

// SegmentName returns the "/<prefix>_<writer-pid>" shared-memory name from
// §4.2. prefix is configuration-supplied so multiple coordinators sharing a
// host don't collide.
func SegmentName(prefix string, writerPID int) string {
	return fmt.Sprintf("/%s_%d", prefix, writerPID)
}

// shmPath maps a POSIX shared-memory name to the backing path this
// implementation uses: a tmpfs-backed regular file under /dev/shm, which on
// Linux is byte-for-byte equivalent to a shm_open segment for our purposes
// (create, write, mmap-or-read, unlink) without needing raw shm_open/mmap
// syscalls that golang.org/x/sys/unix does not wrap directly.
func shmPath(name string) string {
	return "/dev/shm" + name
}

// CreateWriter creates segment name write-only and 0600, per §5 ("created
// 0600"), returning the open file so the caller can write a serialized Blob
// to it before handing the name to the resurrected process via EnvKey.
func CreateWriter(name string) (*os.File, error) {
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("restoreblob: create segment %s: %w", name, err)
	}
	return f, nil
}

// OpenReader opens segment name read-only and immediately unlinks it, per
// §4.2 ("opened read-only by the restored process, which unlinks it
// immediately after opening") and the invariant in §3 that the segment does
// not outlive the restored process's parse step.
func OpenReader(name string) (*os.File, error) {
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("restoreblob: open segment %s: %w", name, err)
	}
	if err := unix.Unlink(path); err != nil {
		logger.WithField("segment", name).WithError(err).Warn("failed to unlink restore-blob segment")
	}
	return f, nil
}

// ReadAll reads f fully after fstat-ing it to size the buffer (§4.2 "Read
// path": "fstat to size the buffer; read fully").
func ReadAll(f *os.File) ([]byte, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("restoreblob: fstat segment: %w", err)
	}
	buf := make([]byte, st.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("restoreblob: read segment: %w", err)
	}
	return buf, nil
}
