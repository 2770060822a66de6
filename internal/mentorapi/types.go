package mentorapi

import (
	"encoding/json"
	"strings"
)

// envelope is the { "data": ... } wrapper every upstream response uses.
type envelope[T any] struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// SlotDay groups the slots a mentor offers on one date.
type SlotDay struct {
	SlotsDate string `json:"slotsDate"`
	Slots     []Slot `json:"slots"`
}

// Slot is a bookable calendar slot.
type Slot struct {
	ID       string `json:"_id"`
	Time     string `json:"time"`
	CallType string `json:"callType"`
	Booked   bool   `json:"booked"`
}

// Package is a prepaid session package.
type Package struct {
	ID            string  `json:"_id"`
	PackageName   string  `json:"packageName,omitempty"`
	Type          string  `json:"type,omitempty"`
	PackageType   string  `json:"packageType,omitempty"`
	TotalSessions int     `json:"totalSessions,omitempty"`
	TotalSession  int     `json:"totalSession,omitempty"`
	Remaining     int     `json:"remainingSessions,omitempty"`
	Price         float64 `json:"price,omitempty"`
	MentorID      string  `json:"mentorId,omitempty"`
}

// Quota is the number of slots the package allows. Upstream uses either
// spelling of the field; a package with neither allows one session.
func (p Package) Quota() int {
	if p.TotalSessions > 0 {
		return p.TotalSessions
	}
	if p.TotalSession > 0 {
		return p.TotalSession
	}
	return 1
}

// Name returns a display name for the package.
func (p Package) Name() string {
	if p.PackageName != "" {
		return p.PackageName
	}
	kind := p.Type
	if kind == "" {
		kind = p.PackageType
	}
	return strings.TrimSpace(kind + " Package")
}

// BookRequest is the body of PUT /slot/book.
type BookRequest struct {
	UserID    string
	MentorID  string
	SlotID    string
	CallType  string
	Type      string
	PackageID string
	Date      string
	// Minutes is the preferred session length for time-based bookings.
	Minutes int
	// SlotTime is the slot's wall-clock time for package bookings.
	SlotTime string
}

// MarshalJSON sends "time" as the slot time for package bookings and as the
// preferred minutes otherwise.
func (r BookRequest) MarshalJSON() ([]byte, error) {
	body := map[string]any{
		"userId":   r.UserID,
		"mentorId": r.MentorID,
		"callType": r.CallType,
		"type":     r.Type,
	}
	if r.SlotID != "" {
		body["slotId"] = r.SlotID
	}
	if r.PackageID != "" {
		body["packageId"] = r.PackageID
	}
	if r.Date != "" {
		body["date"] = r.Date
	}
	if r.SlotTime != "" {
		body["time"] = r.SlotTime
	} else {
		body["time"] = r.Minutes
	}
	return json.Marshal(body)
}

// BookResponse is the confirmation returned for a booked slot.
type BookResponse struct {
	ID           string `json:"_id"`
	BookingID    string `json:"bookingId,omitempty"`
	GuestJoinURL string `json:"guestJoinURL,omitempty"`
	HostJoinURL  string `json:"hostJoinURL,omitempty"`
	ChatLink     string `json:"chatLink,omitempty"`
	JoinLink     string `json:"joinLink,omitempty"`
}

// Reference returns the booking identifier.
func (b BookResponse) Reference() string {
	if b.BookingID != "" {
		return b.BookingID
	}
	return b.ID
}

// MeetingLink returns the link a guest should use to join.
func (b BookResponse) MeetingLink() string {
	for _, link := range []string{b.GuestJoinURL, b.ChatLink, b.JoinLink} {
		if link != "" {
			return link
		}
	}
	return ""
}

// GroupSession is a mentor-hosted session with shared capacity.
type GroupSession struct {
	ID          string   `json:"_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Capacity    int      `json:"capacity"`
	BookedUsers []string `json:"bookedUsers"`
	SessionDate string   `json:"sessionDate,omitempty"`
	SessionTime string   `json:"sessionTime,omitempty"`
	RoomID      string   `json:"roomId,omitempty"`
}

// Full reports whether the session has no capacity left.
func (g GroupSession) Full() bool {
	return g.Capacity > 0 && len(g.BookedUsers) >= g.Capacity
}

// HasUser reports whether userID already booked the session.
func (g GroupSession) HasUser(userID string) bool {
	for _, u := range g.BookedUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// Wallet is the user's coin balance.
type Wallet struct {
	Balance float64 `json:"balance"`
}

// Call is one entry of the user's call history.
type Call struct {
	ID             string         `json:"_id"`
	CreatedAt      string         `json:"createdAt"`
	UpdatedAt      string         `json:"updatedAt"`
	SessionDetails SessionDetails `json:"sessionDetails"`
	Users          CallUsers      `json:"users"`
}

// SessionDetails describes the scheduled session behind a call.
type SessionDetails struct {
	StartTime       string `json:"startTime,omitempty"`
	EndTime         string `json:"endTime,omitempty"`
	Duration        string `json:"duration,omitempty"`
	CallType        string `json:"callType,omitempty"`
	RoomID          string `json:"roomId,omitempty"`
	RecordingURL    string `json:"recordingUrl,omitempty"`
	RecordingStatus string `json:"recordingStatus,omitempty"`
}

// CallUsers names the participants of a call.
type CallUsers struct {
	Mentor Person `json:"mentor"`
	User   Person `json:"user"`
}

// Person is a participant.
type Person struct {
	ID   string     `json:"_id"`
	Name PersonName `json:"name"`
}

// PersonName is a participant's name.
type PersonName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Full joins first and last name.
func (n PersonName) Full() string {
	return strings.TrimSpace(n.FirstName + " " + n.LastName)
}

// Recording is the result of a recording lookup.
type Recording struct {
	RecordingURL string `json:"recordingUrl"`
}
