// Package engine implements C3 from spec §4.3: locating and invoking the
// external image-capture engine, and the signal-based handshake that
// detects thaw.
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/restorepoint/vmcr/internal/errdefs"
	"github.com/restorepoint/vmcr/internal/restoreblob"
)

// maxExtraTokens bounds the engine extra-argument list (§4.3 "The token
// list is length-bounded; overflow is reported").
const maxExtraTokens = 64

// Config names and configures the external engine (§4.3 "Engine location").
type Config struct {
	// Path is the engine executable. If absolute, used directly; if
	// relative, resolved against the VM installation directory.
	Path string

	// ExtraArgs is a comma-separated, backslash-escaped token string
	// appended after the checkpoint-dir / restore-dir positional argument.
	ExtraArgs string

	// VMLibDir is the VM's library directory; a relative Path resolves two
	// path components above it (§4.3).
	VMLibDir string
}

// Resolve computes the absolute engine path and validates it exists.
func (c Config) Resolve() (string, error) {
	path := c.Path
	if !filepath.IsAbs(path) {
		base := filepath.Dir(filepath.Dir(c.VMLibDir))
		path = filepath.Join(base, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", errdefs.Unavailable(fmt.Errorf("engine: resolve %q: %w", c.Path, err))
	}
	return path, nil
}

// ExtraTokens tokenizes ExtraArgs using the comma-separated, backslash
// escaped grammar shared with §4.2 (restoreblob.Tokenize), enforcing the
// length bound.
func (c Config) ExtraTokens() ([]string, error) {
	tokens := restoreblob.Tokenize(c.ExtraArgs, ',')
	if len(tokens) > maxExtraTokens {
		return nil, errdefs.InvalidParameter(fmt.Errorf("engine: %d extra tokens exceeds limit of %d", len(tokens), maxExtraTokens))
	}
	return tokens, nil
}
