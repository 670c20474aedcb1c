package restoreblob

import (
	"fmt"
	"time"
)

// Applied is the fully-parsed, ready-to-apply form of a restore blob (§4.2
// "Semantics of applying the blob").
type Applied struct {
	Flags      []Flag
	Properties []Property
	Env        []string // "K=V" entries, applied in bulk per entry
	EntryPoint string
	Args       []string
	WallTime   time.Time
	Monotonic  time.Duration // offset from an arbitrary monotonic origin
	hasClock   bool
}

// HasClock reports whether the header carried a usable wall/monotonic pair.
// When false, callers fall back to "the instant the restored process
// observes completion" per §4.2.
func (a Applied) HasClock() bool { return a.hasClock }

// Apply parses every section of b into its ready-to-apply form: flags per
// the §6 grammar, properties split once on the first '=' (left is the key),
// environment entries passed through unchanged, and the program-arguments
// string tokenized per §4.2/§6. Apply itself has no side effects; it does
// not touch the process environment (the checkpoint driver's applyEnv does
// that). Any single malformed token is a hard error for the whole blob,
// matching "Missing '=' ... is a hard error".
func Apply(b Blob) (Applied, error) {
	out := Applied{Env: b.Env}

	for _, tok := range b.Flags {
		f, err := ParseFlag(tok)
		if err != nil {
			return Applied{}, fmt.Errorf("restoreblob: apply flags: %w", err)
		}
		out.Flags = append(out.Flags, f)
	}
	for _, tok := range b.Properties {
		p, err := ParseProperty(tok)
		if err != nil {
			return Applied{}, fmt.Errorf("restoreblob: apply properties: %w", err)
		}
		out.Properties = append(out.Properties, p)
	}

	entryPoint, args, err := b.ParseArgs()
	if err != nil {
		return Applied{}, fmt.Errorf("restoreblob: apply args: %w", err)
	}
	out.EntryPoint = entryPoint
	out.Args = args

	if b.RestoreWallMS != 0 || b.RestoreMonoNS != 0 {
		out.WallTime = time.UnixMilli(b.RestoreWallMS)
		out.Monotonic = time.Duration(b.RestoreMonoNS)
		out.hasClock = true
	}

	return out, nil
}
