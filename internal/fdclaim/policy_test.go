package fdclaim

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
)

func TestPolicyErrorClaimsWithFailingSupplier(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "policy-error")
	assert.NilError(t, err)
	defer f.Close()
	fd := int(f.Fd())

	reg := New()
	assert.NilError(t, PolicyError.Apply(fd, "test-resource", reg))

	claim, ok := reg.Lookup(fd)
	assert.Assert(t, ok)
	assert.Assert(t, claim.Supplier != nil)
	assert.ErrorContains(t, claim.Supplier(), "policy 'error'")
}

func TestPolicyCloseClosesThenClaims(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "policy-close")
	assert.NilError(t, err)
	fd := int(f.Fd())

	reg := New()
	assert.NilError(t, PolicyClose.Apply(fd, "test-resource", reg))

	_, ok := reg.Lookup(fd)
	assert.Assert(t, ok)

	var st unix.Stat_t
	assert.ErrorContains(t, unix.Fstat(fd, &st), "bad file descriptor")
}

func TestPolicyIgnoreClaimsWithoutTouchingTheDescriptor(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "policy-ignore")
	assert.NilError(t, err)
	defer f.Close()
	fd := int(f.Fd())

	reg := New()
	assert.NilError(t, PolicyIgnore.Apply(fd, "test-resource", reg))

	claim, ok := reg.Lookup(fd)
	assert.Assert(t, ok)
	assert.Assert(t, claim.Supplier == nil)

	var st unix.Stat_t
	assert.NilError(t, unix.Fstat(fd, &st))
}

func TestPolicyReopenKeepsTheDescriptorNumberValid(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "policy-reopen")
	assert.NilError(t, err)
	fd := int(f.Fd())

	reg := New()
	assert.NilError(t, PolicyReopen.Apply(fd, "test-resource", reg))

	_, ok := reg.Lookup(fd)
	assert.Assert(t, ok)

	var st unix.Stat_t
	assert.NilError(t, unix.Fstat(fd, &st))
	assert.Assert(t, st.Mode&unix.S_IFMT == unix.S_IFCHR)
}

func TestPolicyUnknownValueFails(t *testing.T) {
	reg := New()
	err := Policy("bogus").Apply(5, "test-resource", reg)
	assert.ErrorContains(t, err, "unknown policy")
}
