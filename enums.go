package stagechain

const (
	First  = StageKind("first")
	Second = StageKind("second")
	Third  = StageKind("third")
)

const (
	Enqueued  = State("enqueued")
	Running   = State("running")
	Succeeded = State("succeeded")
	Failed    = State("failed")
	Cancelled = State("cancelled")
)

// IsFinished reports whether no further transitions are possible.
func (s State) IsFinished() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// canMove reports whether from -> to is a legal lifecycle transition.
func canMove(from, to State) bool {
	switch from {
	case Enqueued:
		return to == Running || to == Cancelled
	case Running:
		return to == Succeeded || to == Failed
	default:
		return false
	}
}
