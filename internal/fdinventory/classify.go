package fdinventory

import "golang.org/x/sys/unix"

// classify performs the pairwise ROOT/DUP_OF pass described in §4.1:
// entries sharing device+inode and identical open-flags are probed by
// toggling O_NONBLOCK on the later entry and observing whether the earlier
// one's flags change atomically, which indicates a shared open-file
// description rather than two independent opens of the same inode.
func classify(inv *Inventory) {
	for i := range inv.Entries {
		a := &inv.Entries[i]
		if a.State != Root {
			continue
		}
		for j := 0; j < i; j++ {
			b := &inv.Entries[j]
			if b.State != Root && b.State != Dup {
				continue
			}
			if !sameFile(a, b) {
				continue
			}
			if sharesOpenFileDescription(a.FD, b.FD) {
				root := j
				if b.State == Dup {
					root = b.DupOf
				}
				a.State = Dup
				a.DupOf = root
				break
			}
		}
	}
}

func sameFile(a, b *FDInfo) bool {
	return a.Stat.Dev == b.Stat.Dev && a.Stat.Ino == b.Stat.Ino && a.Flags == b.Flags
}

// sharesOpenFileDescription toggles O_NONBLOCK on fd a and checks whether
// the change becomes visible on fd b, then restores a's original flags
// regardless of outcome (§4.1: "The probe restores the original flags").
func sharesOpenFileDescription(a, b int) bool {
	origA, err := unix.FcntlInt(uintptr(a), unix.F_GETFL, 0)
	if err != nil {
		return false
	}
	defer unix.FcntlInt(uintptr(a), unix.F_SETFL, origA)

	toggled := origA ^ unix.O_NONBLOCK
	if _, err := unix.FcntlInt(uintptr(a), unix.F_SETFL, toggled); err != nil {
		return false
	}

	observedB, err := unix.FcntlInt(uintptr(b), unix.F_GETFL, 0)
	if err != nil {
		return false
	}
	// A shared open-file-description makes the toggle visible on b
	// immediately; an independent open of the same inode leaves b's
	// O_NONBLOCK bit exactly where it started.
	return observedB&unix.O_NONBLOCK == toggled&unix.O_NONBLOCK
}
