package session

import "encoding/json"

// State is the coarse lifecycle state of a Session, derived from its flags.
type State int

const (
	Empty State = iota
	Uploading
	Ready
	Stepping
	Playing
	Selecting
	Rendering
)

var stateNames = map[State]string{
	Empty:     "empty",
	Uploading: "uploading",
	Ready:     "ready",
	Stepping:  "stepping",
	Playing:   "playing",
	Selecting: "selecting",
	Rendering: "rendering",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// derive picks the most significant state when several operations overlap.
func (snap Snapshot) derive() State {
	switch {
	case snap.IsUploading:
		return Uploading
	case snap.SessionID == "":
		return Empty
	case snap.IsRendering:
		return Rendering
	case snap.IsPlaying:
		return Playing
	case snap.IsLoadingFrame:
		return Stepping
	case snap.PendingSelections > 0:
		return Selecting
	default:
		return Ready
	}
}
