package fdinventory

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
)

func TestNFSSillyRename(t *testing.T) {
	cases := map[string]bool{
		".nfs0000000012345678deadbeef": true,
		".nfsabc":                      true,
		".nfs":                         false,
		".nfsxyz123":                   false,
		"regular-file":                 false,
	}
	for name, want := range cases {
		assert.Equal(t, nfsSillyRename(name), want, name)
	}
}

// TestDupClassification covers testable property 4: two descriptors
// produced by dup() of the same parent classify as ROOT+DUP_OF(root).
func TestDupClassification(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "fdinventory")
	assert.NilError(t, err)
	defer f.Close()
	defer os.Remove(f.Name())

	rootFD := int(f.Fd())
	dupFD, err := unix.Dup(rootFD)
	assert.NilError(t, err)
	defer unix.Close(dupFD)

	inv := &Inventory{Entries: []FDInfo{
		inspect(rootFD),
		inspect(dupFD),
	}}
	classify(inv)

	assert.Equal(t, inv.Entries[0].State, Root)
	assert.Equal(t, inv.Entries[1].State, Dup)
	assert.Equal(t, inv.Entries[1].DupOf, 0)
}

// TestIndependentOpensOfSameInode covers the ROOT+ROOT half of property 4.
func TestIndependentOpensOfSameInode(t *testing.T) {
	path := t.TempDir() + "/same-inode"
	assert.NilError(t, os.WriteFile(path, []byte("x"), 0o600))

	f1, err := os.Open(path)
	assert.NilError(t, err)
	defer f1.Close()
	f2, err := os.Open(path)
	assert.NilError(t, err)
	defer f2.Close()

	inv := &Inventory{Entries: []FDInfo{
		inspect(int(f1.Fd())),
		inspect(int(f2.Fd())),
	}}
	classify(inv)

	assert.Equal(t, inv.Entries[0].State, Root)
	assert.Equal(t, inv.Entries[1].State, Root)
}

func TestDeletedFileMarkedCantRestore(t *testing.T) {
	path := t.TempDir() + "/deleteme"
	assert.NilError(t, os.WriteFile(path, []byte("x"), 0o600))
	f, err := os.Open(path)
	assert.NilError(t, err)
	defer f.Close()
	assert.NilError(t, os.Remove(path))

	info := inspect(int(f.Fd()))
	assert.Check(t, info.CantRestore())
}
