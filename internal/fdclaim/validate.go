package fdclaim

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/restorepoint/vmcr/internal/fdinventory"
)

// FailureKind is the externally-observable failure-code vocabulary from §6.
type FailureKind int

const (
	Generic FailureKind = 0
	File    FailureKind = 1
	Socket  FailureKind = 2
	Pipe    FailureKind = 3
)

func (k FailureKind) String() string {
	switch k {
	case Generic:
		return "GENERIC"
	case File:
		return "FILE"
	case Socket:
		return "SOCKET"
	case Pipe:
		return "PIPE"
	default:
		return "UNKNOWN"
	}
}

// FailureRecord is the §3 FailureRecord, produced only by the FD
// validation pass. An inventory-level problem (e.g. /proc/self/fd cannot be
// read) reaches the checkpoint driver's caller as a returned error, not as
// a FailureRecord.
type FailureRecord struct {
	Kind    FailureKind
	Message string
}

// Identity is the device+inode pair used to decide whether a descriptor
// still open at checkpoint time is the same one the process inherited at
// VM-init (§4.5 step 2).
type Identity struct {
	Dev, Ino uint64
}

func identityOf(st unix.Stat_t) Identity {
	return Identity{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}
}

func kindFromMode(mode uint32) FailureKind {
	switch mode & unix.S_IFMT {
	case unix.S_IFSOCK:
		return Socket
	case unix.S_IFIFO:
		return Pipe
	case unix.S_IFREG, unix.S_IFLNK, unix.S_IFDIR, unix.S_IFCHR, unix.S_IFBLK:
		return File
	default:
		return Generic
	}
}

// Validate implements the §4.5 check pass: for every non-CLOSED descriptor
// in inv, a claim, a matching VM-init identity, or a match against
// diagnosticSocketFD is required, else it becomes a FailureRecord. The
// testable invariant "claims + unclaimed_ok + failures == inventory size"
// holds by construction: every entry falls into exactly one bucket.
func Validate(inv *fdinventory.Inventory, reg *Registry, preexisting map[int]Identity, diagnosticSocketFD int) []FailureRecord {
	var failures []FailureRecord

	for _, entry := range inv.Entries {
		if entry.State == fdinventory.Closed || entry.State == fdinventory.Invalid {
			continue
		}

		if claim, ok := reg.Lookup(entry.FD); ok {
			if claim.Supplier != nil {
				if err := claim.Supplier(); err != nil {
					failures = append(failures, FailureRecord{
						Kind:    kindFromMode(entry.Stat.Mode),
						Message: fmt.Sprintf("fd=%d owner=%s: %v", entry.FD, claim.Owner, err),
					})
				}
			}
			continue
		}

		if pre, ok := preexisting[entry.FD]; ok && pre == identityOf(entry.Stat) {
			continue
		}

		if diagnosticSocketFD >= 0 && entry.FD == diagnosticSocketFD {
			continue
		}

		failures = append(failures, FailureRecord{
			Kind:    kindFromMode(entry.Stat.Mode),
			Message: fmt.Sprintf("fd=%d type=%s target=%q left open and unclaimed", entry.FD, kindFromMode(entry.Stat.Mode), entry.Target),
		})
	}

	return failures
}

// MatchesPreexisting reports whether entry is the same descriptor (by
// device+inode identity) the process inherited at VM-init, per the
// preexisting snapshot taken by Snapshot. Used by the checkpoint driver to
// decide whether a still-open, unclaimed descriptor needs a default policy
// applied before validation runs.
func MatchesPreexisting(preexisting map[int]Identity, entry fdinventory.FDInfo) bool {
	pre, ok := preexisting[entry.FD]
	return ok && pre == identityOf(entry.Stat)
}

// Snapshot captures the identities of every currently-open descriptor,
// intended to be called once at VM-init time so later Validate calls can
// recognize inherited descriptors (§4.5 step 2).
func Snapshot(inv *fdinventory.Inventory) map[int]Identity {
	out := make(map[int]Identity, len(inv.Entries))
	for _, e := range inv.Entries {
		if e.State == fdinventory.Closed || e.State == fdinventory.Invalid {
			continue
		}
		out[e.FD] = identityOf(e.Stat)
	}
	return out
}
