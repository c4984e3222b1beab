package conversation

// State is the position of a conversation in its question sequence.
// Error variants re-ask the same question with a corrective prompt, so
// invalid input never discards prior progress.
type State int

const (
	StateInit State = iota
	StateQ1
	StateQ1Error
	StateQ2
	StateQ2Error
	StateQ3
	StateQ3Error
	StateQ4
	StateQ4Error
	StateConfirm
	StateConfirmError
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateQ1:
		return "q1"
	case StateQ1Error:
		return "q1-error"
	case StateQ2:
		return "q2"
	case StateQ2Error:
		return "q2-error"
	case StateQ3:
		return "q3"
	case StateQ3Error:
		return "q3-error"
	case StateQ4:
		return "q4"
	case StateQ4Error:
		return "q4-error"
	case StateConfirm:
		return "confirm"
	case StateConfirmError:
		return "confirm-error"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Terminal reports whether the conversation has finished.
func (s State) Terminal() bool { return s == StateDone }

// ErrorVariant returns the re-ask state paired with a question state.
// For states without one it returns the state unchanged.
func (s State) ErrorVariant() State {
	switch s {
	case StateQ1, StateQ1Error:
		return StateQ1Error
	case StateQ2, StateQ2Error:
		return StateQ2Error
	case StateQ3, StateQ3Error:
		return StateQ3Error
	case StateQ4, StateQ4Error:
		return StateQ4Error
	case StateConfirm, StateConfirmError:
		return StateConfirmError
	default:
		return s
	}
}

// Base is the shared state holder concrete conversations embed.
type Base struct {
	state State
	final string
}

func (b *Base) State() State       { return b.state }
func (b *Base) SetState(s State)   { b.state = s }
func (b *Base) FinalReply() string { return b.final }

// Finish moves the conversation to StateDone with the given final reply.
func (b *Base) Finish(reply string) {
	b.state = StateDone
	b.final = reply
}
