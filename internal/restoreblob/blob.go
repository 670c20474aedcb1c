// Package restoreblob implements C2 from spec §4.2: the restore-parameter
// channel that carries flags, properties, environment, and new program
// arguments from the image-producing side into the resurrected process
// through a named shared-memory segment.
package restoreblob

import (
	"fmt"
	"strings"

	"github.com/restorepoint/vmcr/internal/errdefs"
)

// FlagKind distinguishes the three forms in the §6 flag-token grammar.
type FlagKind int

const (
	FlagBoolTrue FlagKind = iota
	FlagBoolFalse
	FlagTyped
)

// Flag is one parsed flag token, origin-tagged per §4.2 ("CRaC_RESTORE").
type Flag struct {
	Name  string
	Kind  FlagKind
	Value string // only meaningful when Kind == FlagTyped
}

const restoreOrigin = "CRaC_RESTORE"

// Origin is the tag applied to every flag parsed from a restore blob so the
// runtime can later report which settings were supplied on restore.
func (f Flag) Origin() string { return restoreOrigin }

// ParseFlag parses one token of the grammar:
//
//	flag := "+" NAME | "-" NAME | NAME "=" VALUE
//
// A bare NAME with no leading sigil and no '=' is a hard error. The third
// form splits on the first '=' only (§9 open question: "=" is treated
// greedily), so VALUE may itself contain '='.
func ParseFlag(tok string) (Flag, error) {
	if tok == "" {
		return Flag{}, errdefs.InvalidParameter(fmt.Errorf("empty flag token"))
	}
	switch tok[0] {
	case '+':
		return Flag{Name: tok[1:], Kind: FlagBoolTrue}, nil
	case '-':
		return Flag{Name: tok[1:], Kind: FlagBoolFalse}, nil
	default:
		i := strings.IndexByte(tok, '=')
		if i < 0 {
			return Flag{}, errdefs.InvalidParameter(fmt.Errorf("flag token %q missing '='", tok))
		}
		return Flag{Name: tok[:i], Kind: FlagTyped, Value: tok[i+1:]}, nil
	}
}

// Property is one "key=value" system property entry (§3 RestoreBlob).
type Property struct {
	Key   string
	Value string
}

// ParseProperty splits "key=value" on the first '=' (exactly one split per
// §4.2's applying-the-blob semantics); a missing '=' is a hard error.
func ParseProperty(tok string) (Property, error) {
	i := strings.IndexByte(tok, '=')
	if i < 0 {
		return Property{}, errdefs.InvalidParameter(fmt.Errorf("property token %q missing '='", tok))
	}
	return Property{Key: tok[:i], Value: tok[i+1:]}, nil
}

// Blob is the fully-decoded form of the §3/§6 shared-memory payload.
type Blob struct {
	RestoreWallMS int64
	RestoreMonoNS int64
	Flags         []string
	Properties    []string
	Env           []string
	Args          string
}

// ParseArgs tokenizes the program-arguments string using the space-separated,
// backslash-escaped grammar of §4.2/§6. The first token is the entry-point
// identifier; the rest are its arguments. An empty string yields (nil, nil)
// and the spec's "restored process continues at its original entry point".
func (b Blob) ParseArgs() (entryPoint string, args []string, err error) {
	if b.Args == "" {
		return "", nil, nil
	}
	tokens := Tokenize(b.Args, ' ')
	if len(tokens) == 0 {
		return "", nil, nil
	}
	return tokens[0], tokens[1:], nil
}
