package screenshot

type State int32

const (
	StateIdle State = iota
	StateAwaitingPermission
	StateAwaitingFrame
	StateEncoding
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPermission:
		return "awaiting_permission"
	case StateAwaitingFrame:
		return "awaiting_frame"
	case StateEncoding:
		return "encoding"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}
