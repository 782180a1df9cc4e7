package sequencer

import "fmt"

// State is the execution state of one descriptor.
type State int

const (
	Pending State = iota
	Rendering
	Sent
	Extracting
	Applied
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Rendering:
		return "rendering"
	case Sent:
		return "sent"
	case Extracting:
		return "extracting"
	case Applied:
		return "applied"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends a descriptor's execution.
func (s State) Terminal() bool {
	return s == Applied || s == Failed
}

// Reason explains a Failed state.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonMissingDependency    Reason = "MissingDependency"
	ReasonMissingCustomPayload Reason = "MissingCustomPayload"
	ReasonAuthToken            Reason = "AuthToken"
	ReasonRender               Reason = "RenderError"
	ReasonTransport            Reason = "TransportError"
	ReasonUnexpectedStatus     Reason = "UnexpectedStatus"
	ReasonNoDynamicObjects     Reason = "NoDynamicObjectsExtracted"
	ReasonCanceled             Reason = "Canceled"
)
