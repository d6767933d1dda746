// Package frame records the per-frame command sequences and submits them
// to the queue in the order the deferred passes depend on.
package frame

import (
	"fmt"

	"github.com/vkngwrapper/sponza/internal/gpu"
)

// State is the position of the frame in its lifecycle. Sequences are
// recorded ahead of time by the Recorder; the recording states mark
// which sequence of the current frame is being handed to the queue.
type State int

const (
	Idle State = iota
	RecordingOffscreen
	RecordingOnscreen
	Submitted
	// Failed is terminal: the offscreen sequence was queued but the
	// onscreen one was not, leaving its semaphore signaled with no waiter.
	Failed
)

var stateNames = [...]string{
	Idle:               "Idle",
	RecordingOffscreen: "RecordingOffscreen",
	RecordingOnscreen:  "RecordingOnscreen",
	Submitted:          "Submitted",
	Failed:             "Failed",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// next is the only legal successor of each state. Submitted returns to
// Idle once the in-flight fence has signaled. Failed has none.
var next = map[State]State{
	Idle:               RecordingOffscreen,
	RecordingOffscreen: RecordingOnscreen,
	RecordingOnscreen:  Submitted,
	Submitted:          Idle,
}

// Frame tracks the state of the single frame in flight.
type Frame struct {
	state State
}

func (f *Frame) State() State { return f.state }

// Transition moves the frame to state to. Any other move than the next
// step of the cycle is a configuration error.
func (f *Frame) Transition(to State) error {
	if n, ok := next[f.state]; !ok || n != to {
		return gpu.Configurationf("illegal frame transition %s -> %s", f.state, to)
	}
	f.state = to
	return nil
}

func (f *Frame) requireIdle(op string) error {
	if f.state != Idle {
		return gpu.Configurationf("%s while the frame is %s", op, f.state)
	}
	return nil
}
