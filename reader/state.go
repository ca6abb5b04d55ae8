package reader

import "strings"

// State is the PC/SC reader state bitset. The values match SCARD_STATE_*.
type State uint32

const (
	StateUnaware     State = 0x0000
	StateIgnore      State = 0x0001
	StateChanged     State = 0x0002
	StateUnknown     State = 0x0004
	StateUnavailable State = 0x0008
	StateEmpty       State = 0x0010
	StatePresent     State = 0x0020
	StateAtrMatch    State = 0x0040
	StateExclusive   State = 0x0080
	StateInUse       State = 0x0100
	StateMute        State = 0x0200
	StateUnpowered   State = 0x0400
)

var stateNames = []struct {
	flag State
	name string
}{
	{StateIgnore, "ignore"},
	{StateChanged, "changed"},
	{StateUnknown, "unknown"},
	{StateUnavailable, "unavailable"},
	{StateEmpty, "empty"},
	{StatePresent, "present"},
	{StateAtrMatch, "atrmatch"},
	{StateExclusive, "exclusive"},
	{StateInUse, "inuse"},
	{StateMute, "mute"},
	{StateUnpowered, "unpowered"},
}

// All reports whether every flag in f is set.
func (s State) All(f State) bool {
	return s&f == f
}

// Any reports whether at least one flag in f is set.
func (s State) Any(f State) bool {
	return s&f != 0
}

func (s State) String() string {
	var parts []string
	for _, n := range stateNames {
		if s&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "unaware"
	}
	return strings.Join(parts, "|")
}

// ReaderState is one watched slot passed to Context.GetStatusChange.
type ReaderState struct {
	Reader       string
	CurrentState State
	EventState   State
	Atr          []byte
}
