package types

// LockState is the position of the lock actuator. Transitions follow
// Locked -> Unlocking -> Unlocked -> Relocking -> Locked.
type LockState int

const (
	Locked LockState = iota
	Unlocking
	Unlocked
	Relocking
)

func (s LockState) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	case Relocking:
		return "relocking"
	default:
		return "unknown"
	}
}
