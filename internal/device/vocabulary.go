package device

// Feature names exposed on the side-channel. External readers depend on
// these exact values.
const (
	FeatureRunState = "RUN_STATE"
	FeatureErrorMsg = "ERROR_MSG"
)

// StateNone is the canonical "nothing to report" feature value, distinct
// from every vendor string.
const StateNone = "-"

// Sentinel literals reported across firmware and API generations.
const (
	StatePowerOff = "STATE_POWER_OFF"
	stateInitial  = "STATE_INITIAL"
	ErrorOff      = "OFF"
)

var (
	// stateTerminal marks a finished cycle. Matched by containment:
	// vendor strings may embed extra qualifiers around the sentinel.
	stateTerminal = []string{"STATE_END", "STATE_COMPLETE"}

	// errorNoError lists the "no error" spellings seen in the wild.
	// Matched by equality.
	errorNoError = []string{"ERROR_NOERROR", "ERROR_NOERROR_TITLE", "No Error", "No_Error"}

	// Raw payload key aliases. Older firmware reports lowercase keys.
	runStateKeys = []string{"State", "state"}
	errorKeys    = []string{"Error", "error"}

	// wakeUpCommands is scanned in order; earlier pairs are preferred
	// when the device metadata supports more than one.
	wakeUpCommands = []Command{
		{Group: "Config", Command: "Wakeup"},
		{Group: "Set", Command: "Wakeup"},
		{Group: "WakeUp"},
	}
)
