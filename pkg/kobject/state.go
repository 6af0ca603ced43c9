package kobject

// State is a node's lifecycle state.
type State uint8

const (
	StateUninitialized State = iota
	StateInitialized
	StateRegistered
	StateUnregistered
	StateDestroyed
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateInitialized:   "initialized",
	StateRegistered:    "registered",
	StateUnregistered:  "unregistered",
	StateDestroyed:     "destroyed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
