package fdclaim

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Policy is the small default-handling vocabulary from §4.5 for still-open
// descriptors belonging to the FILE_DESCRIPTORS tier's resources.
type Policy string

const (
	PolicyError  Policy = "error"
	PolicyClose  Policy = "close"
	PolicyIgnore Policy = "ignore"
	PolicyReopen Policy = "reopen"
)

// Apply claims fd in reg according to p:
//   - error:  claims with a deferred supplier that fails validation
//   - close:  closes fd, then claims it silently so it never reaches
//     validation as unclaimed
//   - ignore: claims it silently with no supplier
//   - reopen: closes fd and reopens it against /dev/null before claiming
//     silently, so the descriptor number stays valid post-restore
func (p Policy) Apply(fd int, owner string, reg *Registry) error {
	switch p {
	case PolicyError:
		return reg.Claim(fd, owner, func() error {
			return fmt.Errorf("fd %d left open by policy 'error' for owner %q", fd, owner)
		})
	case PolicyClose:
		if err := unix.Close(fd); err != nil {
			return fmt.Errorf("fdclaim: close fd %d: %w", fd, err)
		}
		return reg.Claim(fd, owner, nil)
	case PolicyIgnore:
		return reg.Claim(fd, owner, nil)
	case PolicyReopen:
		return reopen(fd, owner, reg)
	default:
		return fmt.Errorf("fdclaim: unknown policy %q", p)
	}
}

func reopen(fd int, owner string, reg *Registry) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("fdclaim: close fd %d for reopen: %w", fd, err)
	}
	null, err := unix.Open("/dev/null", unix.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("fdclaim: reopen fd %d onto /dev/null: %w", fd, err)
	}
	if null != fd {
		if err := unix.Dup2(null, fd); err != nil {
			unix.Close(null)
			return fmt.Errorf("fdclaim: dup2 onto fd %d: %w", fd, err)
		}
		unix.Close(null)
	}
	return reg.Claim(fd, owner, nil)
}
