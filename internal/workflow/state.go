// Package workflow runs the two-stage topic digest pipeline: a classify
// stage that turns a query into a topic name, followed by a retrieve stage
// that turns the topic into a formatted digest. Stages run in a fixed order
// and return deltas that the orchestrator merges into a per-run State.
package workflow

import "fmt"

// Phase is the position of a run in the linear state machine.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseClassified
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseClassified:
		return "classified"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is created per run and discarded when the run ends. Each field is
// written once by the stage that owns it.
type State struct {
	Query         string
	DetectedTopic string
	Response      string
	Phase         Phase
}

// Update is the delta a stage returns. Only the field owned by that stage
// is read by the orchestrator.
type Update struct {
	DetectedTopic string
	Response      string
}

// Result is what a completed run hands back to the caller.
type Result struct {
	Topic    string `json:"topic"`
	Response string `json:"response"`
}
