package loader

import "fmt"

// State is a step of the load. Steps only move forward.
type State int

const (
	StateInit State = iota
	StateTripleTableRegistered
	StatePredicatesDiscovered
	StatePartitioningComplete
	StateStatsEmitted
	StatePropertyTableDelegated
	StateDone
)

var stateNames = [...]string{
	StateInit:                   "Init",
	StateTripleTableRegistered:  "TripleTableRegistered",
	StatePredicatesDiscovered:   "PredicatesDiscovered",
	StatePartitioningComplete:   "PartitioningComplete",
	StateStatsEmitted:           "StatsEmitted",
	StatePropertyTableDelegated: "PropertyTableDelegated",
	StateDone:                   "Done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Event is a progress notification. Stage is the state being worked
// towards; Completed and Total count its units of work.
type Event struct {
	Stage     State
	Completed int
	Total     int
}

// Sink receives progress events. It is called from one goroutine at a time.
type Sink func(Event)
