package resourcebus

// Tier is the fixed, ordered priority enum from spec §3. Order is the public
// contract (§6): beforeCheckpoint dispatches low-to-high, afterRestore
// dispatches high-to-low. Reordering these constants is a breaking change.
type Tier int

const (
	FileDescriptors Tier = iota
	PreFileDescriptors
	PostFileDescriptors
	Recording
	Cleaners
	ReferenceHandler
	SeederHolder
	SecureRandom
	NativePRNG
	EventLoopSelector
	Sockets
	Normal

	numTiers
)

var tierNames = [numTiers]string{
	FileDescriptors:     "FILE_DESCRIPTORS",
	PreFileDescriptors:  "PRE_FILE_DESCRIPTORS",
	PostFileDescriptors: "POST_FILE_DESCRIPTORS",
	Recording:           "RECORDING",
	Cleaners:            "CLEANERS",
	ReferenceHandler:    "REFERENCE_HANDLER",
	SeederHolder:        "SEEDER_HOLDER",
	SecureRandom:        "SECURE_RANDOM",
	NativePRNG:          "NATIVE_PRNG",
	EventLoopSelector:   "EVENT_LOOP_SELECTOR",
	Sockets:             "SOCKETS",
	Normal:              "NORMAL",
}

func (t Tier) String() string {
	if t < 0 || t >= numTiers {
		return "UNKNOWN_TIER"
	}
	return tierNames[t]
}

// blocking reports whether registrations against this tier suspend while a
// checkpoint is in progress (§4.4). The FD-adjacent tiers are where resources
// claim descriptors the checkpoint validation pass depends on, so a late
// registrant must never be invoked mid-attempt; every other tier admits new
// registrants immediately since their ordering guarantee only concerns
// already-registered resources.
func (t Tier) blocking() bool {
	switch t {
	case FileDescriptors, PreFileDescriptors, PostFileDescriptors:
		return true
	default:
		return false
	}
}
