// Package compose builds the group broadcast and per-member payloads for an alert.
package compose

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/alertaperu/community-alarm/internal/models"
)

// DefaultAlertType is used when the submission does not name one
const DefaultAlertType = "Unspecified alert"

const timestampLayout = "02/01/2006 15:04:05"

var groupTemplate = template.Must(template.New("group").Parse(
	`🚨 <b>COMMUNITY ALERT - {{.Community}}</b> 🚨

<b>Type:</b> {{.Type}}
<b>Reported by:</b> {{.Reporter}}
<b>Description:</b> {{.Description}}
<b>Location:</b> {{if .HasMap}}<a href="{{.MapLink}}">View on map</a>{{else}}{{.MapLink}}{{end}}
<b>Address:</b> {{.Address}}
<b>Time:</b> {{.Timestamp}}

ℹ️ Registered members are being notified and the call protocol has started.`))

var privateTemplate = template.Must(template.New("private").Parse(
	`<b>🚨 EMERGENCY ALERT 🚨</b>
<b>Type:</b> {{.Type}}
<b>Community:</b> {{.Community}}
<b>Reported by:</b> {{.Reporter}}
<b>Description:</b> {{.Description}}
<b>Location:</b> {{if .HasMap}}<a href="{{.MapLink}}">View on map</a>{{else}}{{.MapLink}}{{end}}
<b>Address:</b> {{.Address}}
<b>Time:</b> {{.Timestamp}}

{{.Recipient}}, please check the group for details!`))

// alertFacts is the data shared by every payload of one alert
type alertFacts struct {
	Type        string
	Community   string
	Reporter    string
	Description string
	MapLink     string
	HasMap      bool
	Address     string
	Timestamp   string
	Recipient   string
}

// Composer turns an alert into notification payloads. It has no side effects.
type Composer struct {
	now      func() time.Time
	location *time.Location
}

// Option customizes a Composer
type Option func(*Composer)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(c *Composer) {
		c.now = now
	}
}

// WithTimeZone renders timestamps in loc
func WithTimeZone(loc *time.Location) Option {
	return func(c *Composer) {
		c.location = loc
	}
}

// New creates a composer
func New(opts ...Option) *Composer {
	c := &Composer{now: time.Now, location: time.Local}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds the group message and one private payload per eligible member
func (c *Composer) Compose(submission *models.AlertSubmission, community *models.Community, resolution models.Resolution) (models.GroupMessage, []models.PerMemberMessage, error) {
	sentAt := c.now()
	mapLink := MapLink(resolution.Location)

	facts := alertFacts{
		Type:        firstNonEmpty(strings.TrimSpace(submission.Type), DefaultAlertType),
		Community:   strings.ToUpper(community.Name),
		Reporter:    resolution.Reporter.DisplayName,
		Description: submission.Description,
		MapLink:     mapLink,
		HasMap:      mapLink != models.Unavailable,
		Address:     firstNonEmpty(resolution.Address, models.Unavailable),
		Timestamp:   sentAt.In(c.location).Format(timestampLayout),
	}

	groupText, err := render(groupTemplate, facts)
	if err != nil {
		return models.GroupMessage{}, nil, fmt.Errorf("failed to render group message: %w", err)
	}

	group := models.GroupMessage{
		Target:  community.GroupChatTarget,
		Text:    groupText,
		MapLink: mapLink,
		SentAt:  sentAt,
	}

	voiceText := voiceScript(facts)

	var perMember []models.PerMemberMessage
	for _, member := range community.Members {
		if !member.OptedIn {
			continue
		}

		// the reporter is still called, only the private chat message is withheld
		if isReporter(member, resolution.Reporter) {
			perMember = append(perMember, models.PerMemberMessage{
				Member:     member,
				VoiceText:  voiceText,
				IsReporter: true,
			})
			continue
		}

		memberFacts := facts
		memberFacts.Recipient = firstNonEmpty(member.DisplayName, "Neighbor")

		chatText, err := render(privateTemplate, memberFacts)
		if err != nil {
			return models.GroupMessage{}, nil, fmt.Errorf("failed to render message for %s: %w", member.ID, err)
		}

		perMember = append(perMember, models.PerMemberMessage{
			Member:    member,
			ChatText:  chatText,
			VoiceText: voiceText,
		})
	}

	return group, perMember, nil
}

// MapLink builds a map URL for a complete location, or returns the unavailable marker
func MapLink(location *models.Location) string {
	if !location.Complete() {
		return models.Unavailable
	}
	lat := strconv.FormatFloat(*location.Lat, 'f', -1, 64)
	lon := strconv.FormatFloat(*location.Lon, 'f', -1, 64)
	return fmt.Sprintf("https://maps.google.com/?q=%s,%s", lat, lon)
}

func voiceScript(facts alertFacts) string {
	return fmt.Sprintf(
		"Emergency alert. %s raised an alarm in community %s. Description: %s. Address: %s. Check your phone for details.",
		facts.Reporter, facts.Community, facts.Description, facts.Address,
	)
}

func isReporter(member, reporter models.Member) bool {
	if member.ExternalChatUserID.Equal(reporter.ExternalChatUserID) {
		return true
	}
	return member.ID != "" && member.ID == reporter.ID
}

func render(t *template.Template, facts alertFacts) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, facts); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
