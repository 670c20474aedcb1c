package checkpoint

import "github.com/restorepoint/vmcr/internal/fdclaim"

// ResultCode is the three-way outcome from §4.6 step 9.
type ResultCode int

const (
	// OK means the attempt (checkpoint or restore) completed with no
	// unrecovered failures.
	OK ResultCode = iota
	// ErrorResult means callback failures and/or FD validation failures
	// were accumulated; see Result.FailureCodes/FailureMessages.
	ErrorResult
	// None means the feature is not configured — image directory unset —
	// and no callbacks were invoked at all (§7 CHECKPOINT_CONFIG_MISSING).
	None
)

func (c ResultCode) String() string {
	switch c {
	case OK:
		return "OK"
	case ErrorResult:
		return "ERROR"
	case None:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// Result is the structured outcome the driver returns to its caller
// (§4.6 step 9).
type Result struct {
	Code ResultCode

	// AttemptID correlates this result with its log lines; a fresh uuid is
	// minted per call to Driver.Checkpoint or Driver.RestoreFromEnv.
	AttemptID string

	// NewProgramArgs is non-nil only after a restore that carried a
	// non-empty program-arguments string (§4.2).
	NewProgramArgs []string
	NewEntryPoint  string

	// NewProperties is non-nil only after a restore that carried
	// properties.
	NewProperties map[string]string

	FailureCodes    []fdclaim.FailureKind
	FailureMessages []string
}

func (r *Result) addFailures(records []fdclaim.FailureRecord) {
	for _, f := range records {
		r.FailureCodes = append(r.FailureCodes, f.Kind)
		r.FailureMessages = append(r.FailureMessages, f.Message)
	}
}
