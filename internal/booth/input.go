package booth

// InputType names the operator and guest inputs the machine accepts.
type InputType string

const (
	InputStart    InputType = "start"
	InputDone     InputType = "done"
	InputActivity InputType = "activity"
	InputKey      InputType = "key"
)

// Input is one input event. Key is set for InputKey and uses DOM-style key
// codes ("Space", "Enter").
type Input struct {
	Type InputType `json:"type"`
	Key  string    `json:"key,omitempty"`
}

// normalize maps key inputs onto the logical input they stand for.
func (in Input) normalize() InputType {
	if in.Type != InputKey {
		return in.Type
	}
	switch in.Key {
	case "Space", " ":
		return InputStart
	default:
		return InputActivity
	}
}
