// Package calls classifies the user's call history and keeps countdowns
// running for calls that are in progress.
package calls

import (
	"time"

	"mentorbuddy-backend/internal/mentorapi"
	"mentorbuddy-backend/internal/parse"
)

// Status is where a call sits relative to now.
type Status string

const (
	StatusUpcoming  Status = "Upcoming"
	StatusOngoing   Status = "Ongoing"
	StatusCompleted Status = "Completed"
)

// Entry is a classified call.
type Entry struct {
	CallID           string    `json:"call_id"`
	MentorID         string    `json:"mentor_id,omitempty"`
	MentorName       string    `json:"mentor_name"`
	CallType         string    `json:"call_type"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Duration         string    `json:"duration"`
	DurationMinutes  int       `json:"duration_minutes"`
	Status           Status    `json:"status"`
	RemainingSeconds int       `json:"remaining_seconds,omitempty"`
	RoomID           string    `json:"room_id,omitempty"`
	RecordingURL     string    `json:"recording_url,omitempty"`
	RecordingStatus  string    `json:"recording_status,omitempty"`
}

// HasRecording reports whether a recording can be requested for the call.
func (e Entry) HasRecording() bool {
	return e.Status == StatusCompleted && (e.CallType == "audio" || e.CallType == "video")
}

// Classify turns raw call history into entries relative to now. Timestamps
// without a zone are read in loc.
func Classify(raw []mentorapi.Call, now time.Time, loc *time.Location) []Entry {
	entries := make([]Entry, 0, len(raw))
	for _, c := range raw {
		entries = append(entries, classifyOne(c, now, loc))
	}
	return entries
}

func classifyOne(c mentorapi.Call, now time.Time, loc *time.Location) Entry {
	d := c.SessionDetails

	startRaw := d.StartTime
	if startRaw == "" {
		startRaw = c.CreatedAt
	}
	endRaw := d.EndTime
	if endRaw == "" {
		endRaw = c.UpdatedAt
	}
	start, startErr := parse.Timestamp(startRaw, loc)
	end, _ := parse.Timestamp(endRaw, loc)

	minutes, _ := parse.DurationMinutes(d.Duration)
	scheduledEnd := start.Add(time.Duration(minutes) * time.Minute)

	duration := d.Duration
	if duration == "" {
		duration = "N/A"
	}

	e := Entry{
		CallID:          c.ID,
		MentorID:        c.Users.Mentor.ID,
		MentorName:      c.Users.Mentor.Name.Full(),
		CallType:        normaliseCallType(d.CallType),
		StartTime:       start,
		EndTime:         end,
		Duration:        duration,
		DurationMinutes: minutes,
		RoomID:          d.RoomID,
		RecordingURL:    d.RecordingURL,
		RecordingStatus: d.RecordingStatus,
	}

	switch {
	case startErr != nil:
		e.Status = StatusCompleted
	case now.Before(start):
		e.Status = StatusUpcoming
	case !now.After(scheduledEnd):
		e.Status = StatusOngoing
		e.RemainingSeconds = int(scheduledEnd.Sub(now) / time.Second)
	default:
		e.Status = StatusCompleted
	}
	return e
}

func normaliseCallType(t string) string {
	switch t {
	case "chat", "audio", "video":
		return t
	}
	return "chat"
}
