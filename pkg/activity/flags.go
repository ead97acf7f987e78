package activity

// Assignment flags track the phases of a plan execution. Several can be
// raised at once: Executing stays up for the whole run while the phase flags
// come and go underneath it.
const (
	AssignmentExecuting Flag = 1 << iota
	AssignmentProbing
	AssignmentDispatching
	AssignmentAborting
	AssignmentWaitingForGuiding
	AssignmentExposingSpec
	AssignmentWaitingForSpecDone
)

// AssignmentFlagNames maps assignment flags to their reporting names.
var AssignmentFlagNames = map[Flag]string{
	AssignmentExecuting:          "Executing",
	AssignmentProbing:            "Probing",
	AssignmentDispatching:        "Dispatching",
	AssignmentAborting:           "Aborting",
	AssignmentWaitingForGuiding:  "WaitingForGuiding",
	AssignmentExposingSpec:       "ExposingSpec",
	AssignmentWaitingForSpecDone: "WaitingForSpecDone",
}

// Unit flags are the activities a remote telescope unit reports in its status
// bitmask. The values are part of the wire contract with the units and must
// not be renumbered.
const (
	UnitAutofocusing Flag = 1 << iota
	UnitGuiding
	UnitStartingUp
	UnitShuttingDown
	UnitAcquiring
	UnitPositioning
	UnitSolving
	UnitCorrecting
)

// UnitFlagNames maps unit flags to their reporting names.
var UnitFlagNames = map[Flag]string{
	UnitAutofocusing: "Autofocusing",
	UnitGuiding:      "Guiding",
	UnitStartingUp:   "StartingUp",
	UnitShuttingDown: "ShuttingDown",
	UnitAcquiring:    "Acquiring",
	UnitPositioning:  "Positioning",
	UnitSolving:      "Solving",
	UnitCorrecting:   "Correcting",
}

// Spec flags are the activities the shared spectrograph reports. Like the
// unit flags, the values are wire contract.
const (
	SpecExposing Flag = 1 << iota
	SpecReadingOut
	SpecSaving
	SpecStartingUp
	SpecShuttingDown
)

// SpecFlagNames maps spectrograph flags to their reporting names.
var SpecFlagNames = map[Flag]string{
	SpecExposing:     "Exposing",
	SpecReadingOut:   "ReadingOut",
	SpecSaving:       "Saving",
	SpecStartingUp:   "StartingUp",
	SpecShuttingDown: "ShuttingDown",
}
