package booking

import "strings"

// DefaultMinutes is the preferred session length when none is given.
const DefaultMinutes = 5

// Selection modes for audio calls.
const (
	ModeTime = "time"
	ModeSlot = "slot"
)

// SingleRequest books one session outside a package.
type SingleRequest struct {
	MentorID    string `json:"mentor_id"`
	CallType    string `json:"call_type"`
	Mode        string `json:"mode,omitempty"`
	Minutes     int    `json:"minutes,omitempty"`
	SlotID      string `json:"slot_id,omitempty"`
	Date        string `json:"date,omitempty"`
	SessionType string `json:"session_type,omitempty"`
}

// Validate applies the per call type rules: chat books by time only, audio by
// time or slot, and video by slot.
func (r *SingleRequest) Validate() error {
	r.CallType = strings.ToLower(strings.TrimSpace(r.CallType))
	if r.MentorID == "" {
		return invalid("mentor is required")
	}
	if r.CallType == "" {
		return invalid("please select a call type")
	}
	if r.Minutes < 0 {
		return invalid("please enter a valid preferred time")
	}

	switch r.CallType {
	case "chat":
		r.Mode = ModeTime
		r.SlotID = ""
	case "audio":
		switch r.Mode {
		case ModeTime:
			r.SlotID = ""
		case ModeSlot:
			if r.SlotID == "" {
				return invalid("please select a time slot")
			}
		default:
			return invalid("please choose either preferred time or select a time slot")
		}
	case "video":
		if r.SlotID == "" {
			return invalid("please select a time slot")
		}
		r.Mode = ModeSlot
	default:
		return invalid("unsupported call type " + r.CallType)
	}

	if r.Minutes == 0 {
		r.Minutes = DefaultMinutes
	}
	if r.SessionType == "" {
		r.SessionType = "individual"
	}
	return nil
}
