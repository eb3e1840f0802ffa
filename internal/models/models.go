package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Unavailable is the literal used in notifications when a fact is missing
const Unavailable = "unavailable"

// ExternalID is an identifier issued by the chat platform (user or chat id).
// The platform hands them out as signed integers but records may store them as strings.
type ExternalID string

// UnmarshalJSON accepts both JSON numbers and strings
func (e *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = ExternalID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*e = ExternalID(n.String())
	return nil
}

// Normalize returns the canonical string form used for comparisons
func (e ExternalID) Normalize() string {
	s := strings.TrimSpace(string(e))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return s
}

// Equal compares two identifiers after normalization; empty ids never match
func (e ExternalID) Equal(other ExternalID) bool {
	a := e.Normalize()
	return a != "" && a == other.Normalize()
}

// IsZero reports whether the identifier is empty
func (e ExternalID) IsZero() bool {
	return e.Normalize() == ""
}

// Location is a coordinate pair where either half may be missing
type Location struct {
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`
}

// UnmarshalJSON accepts numbers or numeric strings; anything else leaves the coordinate unset
func (l *Location) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.Lat = parseCoordinate(raw["lat"])
	l.Lon = parseCoordinate(raw["lon"])
	return nil
}

func parseCoordinate(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil
		}
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	return &value
}

// Complete reports whether both latitude and longitude are present
func (l *Location) Complete() bool {
	return l != nil && l.Lat != nil && l.Lon != nil
}

// NewLocation builds a complete location
func NewLocation(lat, lon float64) *Location {
	return &Location{Lat: &lat, Lon: &lon}
}

// Member is a resident registered in a community
type Member struct {
	ID                 string     `json:"id"`
	ExternalChatUserID ExternalID `json:"externalChatUserId,omitempty"`
	DisplayName        string     `json:"displayName"`
	Phone              string     `json:"phone,omitempty"`
	OptedIn            bool       `json:"optedIn"`
	Address            string     `json:"address,omitempty"`
	DefaultLocation    *Location  `json:"defaultLocation,omitempty"`
}

// Community is a group of members sharing one group chat
type Community struct {
	Name            string     `json:"name"`
	GroupChatTarget ExternalID `json:"groupChatTarget,omitempty"`
	Members         []Member   `json:"members"`
}

// MemberByExternalID returns the first member whose external id matches
func (c *Community) MemberByExternalID(id ExternalID) (Member, bool) {
	if id.IsZero() {
		return Member{}, false
	}
	for _, member := range c.Members {
		if member.ExternalChatUserID.Equal(id) {
			return member, true
		}
	}
	return Member{}, false
}

// AlertSubmission is one inbound alert request
type AlertSubmission struct {
	Community    string     `json:"community" validate:"required_without=ChatID"`
	ChatID       ExternalID `json:"chat_id" validate:"required_without=Community"`
	Type         string     `json:"type"`
	Description  string     `json:"description" validate:"required"`
	Location     *Location  `json:"location,omitempty"`
	Address      string     `json:"address,omitempty"`
	ReporterID   ExternalID `json:"reporter_id,omitempty"`
	LiveLocation bool       `json:"live_location"`
}

// PendingReporter is a correlation entry: who most recently sent SOS in a community
type PendingReporter struct {
	Community  string     `json:"community"`
	ExternalID ExternalID `json:"external_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Confidence tags how a reporter was attributed
type Confidence string

const (
	ConfidenceExplicit   Confidence = "explicit"
	ConfidenceCorrelated Confidence = "correlated"
	ConfidenceLow        Confidence = "low-confidence"
)

// Resolution is the outcome of reporter attribution plus the location policy
type Resolution struct {
	Reporter   Member     `json:"reporter"`
	Confidence Confidence `json:"confidence"`
	Location   *Location  `json:"location,omitempty"`
	Address    string     `json:"address"`
}

// GroupMessage is the broadcast posted to the community group chat
type GroupMessage struct {
	Target  ExternalID `json:"target"`
	Text    string     `json:"text"`
	MapLink string     `json:"map_link"`
	SentAt  time.Time  `json:"sent_at"`
}

// PerMemberMessage carries the private chat text and the voice script for one member.
// The reporter gets a voice call but no private message, so IsReporter entries have no ChatText.
type PerMemberMessage struct {
	Member     Member `json:"member"`
	ChatText   string `json:"chat_text,omitempty"`
	VoiceText  string `json:"voice_text"`
	IsReporter bool   `json:"is_reporter,omitempty"`
}

// ChannelKind names a notification channel
type ChannelKind string

const (
	ChannelGroupMessage   ChannelKind = "group-message"
	ChannelPrivateMessage ChannelKind = "private-message"
	ChannelVoiceCall      ChannelKind = "voice-call"
)

// DispatchOutcome records one delivery attempt
type DispatchOutcome struct {
	Channel   ChannelKind `json:"channel"`
	Recipient string      `json:"recipient"`
	Success   bool        `json:"success"`
	Skipped   bool        `json:"skipped,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Failed reports whether the attempt was made and did not succeed
func (o DispatchOutcome) Failed() bool {
	return !o.Success && !o.Skipped
}

// DispatchSummary aggregates every outcome for one alert
type DispatchSummary struct {
	Community string            `json:"community"`
	Outcomes  []DispatchOutcome `json:"outcomes"`
	Sent      int               `json:"sent"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Duration  string            `json:"duration"`
}

// Tally recomputes the counters from the outcomes
func (s *DispatchSummary) Tally() {
	s.Sent, s.Failed, s.Skipped = 0, 0, 0
	for _, outcome := range s.Outcomes {
		switch {
		case outcome.Success:
			s.Sent++
		case outcome.Skipped:
			s.Skipped++
		default:
			s.Failed++
		}
	}
}

// AlertReceipt is returned to the submission caller
type AlertReceipt struct {
	Status     string           `json:"status"`
	AlertID    string           `json:"alert_id"`
	Community  string           `json:"community"`
	Confidence Confidence       `json:"confidence"`
	Summary    *DispatchSummary `json:"summary,omitempty"`
}

// AlertRecord is the full record of a processed alert, used for operator reports
type AlertRecord struct {
	ID         string          `json:"id"`
	Submission AlertSubmission `json:"submission"`
	Community  string          `json:"community"`
	Resolution Resolution      `json:"resolution"`
	Group      GroupMessage    `json:"group"`
	Summary    DispatchSummary `json:"summary"`
	CreatedAt  time.Time       `json:"created_at"`
}
