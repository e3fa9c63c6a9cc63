package agent

// State is the orchestrator's position in the turn cycle.
type State int32

const (
	StateInit State = iota
	StateAwaitingUserTurn
	StateCallingCompletion
	StateDispatchingTools
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingUserTurn:
		return "awaiting_user_turn"
	case StateCallingCompletion:
		return "calling_completion"
	case StateDispatchingTools:
		return "dispatching_tools"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
