package worker

// Lifecycle of a run, logged per scenario
type State int

const (
	NotStarted State = iota
	Setup
	WarmingUp
	Measuring
	TearingDown
	Reported
	Done
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "notStarted"
	case Setup:
		return "setup"
	case WarmingUp:
		return "warmingUp"
	case Measuring:
		return "measuring"
	case TearingDown:
		return "tearingDown"
	case Reported:
		return "reported"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}
