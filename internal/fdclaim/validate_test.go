package fdclaim

import (
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"

	"github.com/restorepoint/vmcr/internal/fdinventory"
)

func TestClaimedFDPasses(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "claimed")
	assert.NilError(t, err)
	defer f.Close()

	reg := New()
	assert.NilError(t, reg.Claim(int(f.Fd()), "test-resource", nil))

	st := statOf(t, int(f.Fd()))
	inv := &fdinventory.Inventory{Entries: []fdinventory.FDInfo{{FD: int(f.Fd()), Stat: st, State: fdinventory.Root}}}

	failures := Validate(inv, reg, nil, -1)
	assert.Equal(t, len(failures), 0)
}

// S3: an unclaimed socket fails validation with kind Socket.
func TestUnclaimedSocketFails(t *testing.T) {
	l, err := net.ListenUDP("udp", &net.UDPAddr{})
	assert.NilError(t, err)
	defer l.Close()

	sc, err := l.File()
	assert.NilError(t, err)
	defer sc.Close()

	inv := &fdinventory.Inventory{}
	st := statOf(t, int(sc.Fd()))
	inv.Entries = append(inv.Entries, fdinventory.FDInfo{
		FD:    int(sc.Fd()),
		Stat:  st,
		State: fdinventory.Root,
	})

	reg := New()
	failures := Validate(inv, reg, nil, -1)
	assert.Equal(t, len(failures), 1)
	assert.Equal(t, failures[0].Kind, Socket)
}

func TestPreexistingSameIdentityPasses(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "preexisting")
	assert.NilError(t, err)
	defer f.Close()

	st := statOf(t, int(f.Fd()))
	inv := &fdinventory.Inventory{Entries: []fdinventory.FDInfo{{FD: int(f.Fd()), Stat: st, State: fdinventory.Root}}}

	pre := map[int]Identity{int(f.Fd()): identityOf(st)}
	failures := Validate(inv, New(), pre, -1)
	assert.Equal(t, len(failures), 0)
}

func TestDiagnosticSocketPasses(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "diagsock")
	assert.NilError(t, err)
	defer f.Close()
	st := statOf(t, int(f.Fd()))
	inv := &fdinventory.Inventory{Entries: []fdinventory.FDInfo{{FD: int(f.Fd()), Stat: st, State: fdinventory.Root}}}

	failures := Validate(inv, New(), nil, int(f.Fd()))
	assert.Equal(t, len(failures), 0)
}

func TestClaimedAtMostOnce(t *testing.T) {
	reg := New()
	assert.NilError(t, reg.Claim(5, "a", nil))
	err := reg.Claim(5, "b", nil)
	assert.ErrorContains(t, err, "already claimed")
}

func statOf(t *testing.T, fd int) unix.Stat_t {
	t.Helper()
	var st unix.Stat_t
	assert.NilError(t, unix.Fstat(fd, &st))
	return st
}
