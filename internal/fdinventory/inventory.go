// Package fdinventory implements C1 from spec §4.1: an immutable,
// per-checkpoint-attempt snapshot of every open file descriptor, classified
// as ROOT, a duplicate of an earlier ROOT, invalid, or closed.
package fdinventory

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/restorepoint/vmcr/internal/log"
)

var logger = log.For("fdinventory")

// State classifies one FDInfo entry (spec §3).
type State int

const (
	Invalid State = iota
	Closed
	Root
	Dup
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "INVALID"
	case Closed:
		return "CLOSED"
	case Root:
		return "ROOT"
	case Dup:
		return "DUP_OF"
	default:
		return "UNKNOWN"
	}
}

// Mark bits, mirroring the spec's bitset field.
type Mark uint32

const (
	CantRestore Mark = 1 << iota
)

// FDInfo is one descriptor's record, see spec §3.
type FDInfo struct {
	FD     int
	Stat   unix.Stat_t
	State  State
	DupOf  int // index into Inventory.Entries of the ROOT this dups, valid iff State == Dup
	Mark   Mark
	Flags  int // fcntl F_GETFL result at enumeration time
	Target string
}

func (f FDInfo) CantRestore() bool { return f.Mark&CantRestore != 0 }

// Inventory is the immutable snapshot produced by Initialize.
type Inventory struct {
	Entries []FDInfo
}

// nfsSillyRename matches ".nfs" followed by hex fileid and hex counter, the
// silly-rename pattern NFS clients leave behind for files unlinked while
// still open.
func nfsSillyRename(base string) bool {
	if !strings.HasPrefix(base, ".nfs") {
		return false
	}
	rest := base[len(".nfs"):]
	if len(rest) == 0 {
		return false
	}
	for _, r := range rest {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// Initialize enumerates every open descriptor under /proc/self/fd, excluding
// excludeFD (the handle used to perform the enumeration itself), and
// classifies each one (§4.1).
func Initialize(excludeFD int) (*Inventory, error) {
	dir, err := os.Open("/proc/self/fd")
	if err != nil {
		return nil, fmt.Errorf("fdinventory: open /proc/self/fd: %w", err)
	}
	defer dir.Close()

	names, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("fdinventory: read /proc/self/fd: %w", err)
	}

	inv := &Inventory{}
	for _, name := range names {
		fd, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		if fd == excludeFD || fd == int(dir.Fd()) {
			continue
		}
		inv.Entries = append(inv.Entries, inspect(fd))
	}

	classify(inv)
	return inv, nil
}

func inspect(fd int) FDInfo {
	info := FDInfo{FD: fd}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		logger.WithField("fd", fd).WithError(err).Debug("fstat failed, marking CLOSED")
		info.State = Closed
		return info
	}
	info.Stat = st

	target, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd))
	if err != nil {
		logger.WithField("fd", fd).WithError(err).Debug("readlink failed, marking CLOSED")
		info.State = Closed
		return info
	}
	info.Target = target

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		info.State = Closed
		return info
	}
	info.Flags = flags

	if strings.Contains(target, " (deleted)") {
		info.Mark |= CantRestore
	}
	if st.Nlink == 0 {
		info.Mark |= CantRestore
	}
	if nfsSillyRename(filepathBase(target)) {
		info.Mark |= CantRestore
	}

	info.State = Root // tentative; classify() may downgrade to Dup
	info.DupOf = -1
	return info
}

func filepathBase(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
