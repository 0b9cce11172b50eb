package notify

import (
	"bytes"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"meeting-scheduler/internal/calls"
)

// Composer renders the scheduling emails.
type Composer struct {
	publicURL string
	loc       *time.Location
}

func NewComposer(publicURL string, loc *time.Location) *Composer {
	if loc == nil {
		loc = time.UTC
	}
	return &Composer{publicURL: strings.TrimRight(publicURL, "/"), loc: loc}
}

type messageData struct {
	Name        string
	Title       string
	Notes       string
	Duration    int
	Link        string
	When        string
	Deadline    string
	MeetingLink string
	CalendarURL string
	Reason      string
}

const layout = "Monday 2 January 2006, 15:04 MST"

var (
	textTmpl = texttemplate.Must(texttemplate.New("text").Parse(`
{{define "request"}}Hi {{.Name}},

you are invited to "{{.Title}}" ({{.Duration}} minutes).
Please share when you are available{{if .Deadline}} before {{.Deadline}}{{end}}:
{{.Link}}
{{if .Notes}}
Notes: {{.Notes}}
{{end}}{{end}}
{{define "scheduled"}}Hi {{.Name}},

"{{.Title}}" is scheduled for {{.When}} ({{.Duration}} minutes).
{{if .MeetingLink}}Join: {{.MeetingLink}}
{{end}}Add to your calendar: {{.CalendarURL}}
{{end}}
{{define "canceled"}}Hi {{.Name}},

"{{.Title}}" has been canceled: {{.Reason}}.
{{end}}
{{define "reconnect"}}Hi {{.Name}},

we could not access your calendar, so "{{.Title}}" was canceled.
Please reconnect your calendar: {{.Link}}
{{end}}`))

	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(`
{{define "request"}}<p>Hi {{.Name}},</p>
<p>you are invited to <strong>{{.Title}}</strong> ({{.Duration}} minutes).</p>
<p>Please <a href="{{.Link}}">share when you are available</a>{{if .Deadline}} before {{.Deadline}}{{end}}.</p>
{{if .Notes}}<p>Notes: {{.Notes}}</p>{{end}}{{end}}
{{define "scheduled"}}<p>Hi {{.Name}},</p>
<p><strong>{{.Title}}</strong> is scheduled for {{.When}} ({{.Duration}} minutes).</p>
{{if .MeetingLink}}<p><a href="{{.MeetingLink}}">Join the meeting</a></p>{{end}}
<p><a href="{{.CalendarURL}}">Add to your calendar</a></p>{{end}}
{{define "canceled"}}<p>Hi {{.Name}},</p>
<p><strong>{{.Title}}</strong> has been canceled: {{.Reason}}.</p>{{end}}
{{define "reconnect"}}<p>Hi {{.Name}},</p>
<p>we could not access your calendar, so <strong>{{.Title}}</strong> was canceled.</p>
<p><a href="{{.Link}}">Reconnect your calendar</a></p>{{end}}`))
)

func (c *Composer) render(name, to, subject string, data messageData) Message {
	var text, html bytes.Buffer
	// Templates are parsed at init and data is plain strings; execution
	// cannot fail short of a programming error.
	_ = textTmpl.ExecuteTemplate(&text, name, data)
	_ = htmlTmpl.ExecuteTemplate(&html, name, data)
	return Message{
		To:      to,
		Subject: subject,
		Text:    strings.TrimSpace(text.String()) + "\n",
		HTML:    strings.TrimSpace(html.String()),
	}
}

func (c *Composer) base(call calls.Call, p calls.Participant) messageData {
	name := p.Name
	if name == "" {
		name = p.Email
	}
	d := messageData{Name: name, Title: call.Title, Notes: call.Notes, Duration: call.DurationMinutes}
	if call.Deadline != nil {
		d.Deadline = call.Deadline.In(c.loc).Format(layout)
	}
	return d
}

// AvailabilityLink is the participant's deep link for submitting availability.
func (c *Composer) AvailabilityLink(token string) string {
	return c.publicURL + "/availability/" + url.PathEscape(token)
}

func (c *Composer) AvailabilityRequest(call calls.Call, p calls.Participant) Message {
	d := c.base(call, p)
	d.Link = c.AvailabilityLink(p.AccessToken)
	return c.render("request", p.Email, "Availability request: "+call.Title, d)
}

func (c *Composer) Scheduled(call calls.Call, p calls.Participant) Message {
	d := c.base(call, p)
	if slot, ok := call.Slot(); ok {
		d.When = slot.Start.In(c.loc).Format(layout)
		d.CalendarURL = AddToCalendarURL(call.Title, call.Notes, call.MeetingLink, slot.Start, slot.End)
	}
	d.MeetingLink = call.MeetingLink
	return c.render("scheduled", p.Email, "Scheduled: "+call.Title, d)
}

func (c *Composer) Canceled(call calls.Call, p calls.Participant) Message {
	d := c.base(call, p)
	d.Reason = reasonText(call.CancelReason)
	return c.render("canceled", p.Email, "Canceled: "+call.Title, d)
}

func (c *Composer) Reconnect(call calls.Call, p calls.Participant) Message {
	d := c.base(call, p)
	d.Link = c.publicURL + "/connect"
	return c.render("reconnect", p.Email, "Reconnect your calendar", d)
}

func reasonText(r calls.CancelReason) string {
	switch r {
	case calls.CancelDeclined:
		return "a participant declined"
	case calls.CancelDeadlinePassed:
		return "not everyone shared their availability before the deadline"
	case calls.CancelNoCommonSlot:
		return "no time slot works for every participant"
	case calls.CancelCredentialRevoked:
		return "a participant's calendar is no longer connected"
	default:
		return "the organizer canceled it"
	}
}

// AddToCalendarURL builds a Google Calendar "add event" link.
func AddToCalendarURL(title, details, location string, start, end time.Time) string {
	const stamp = "20060102T150405Z"
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", title)
	q.Set("dates", start.UTC().Format(stamp)+"/"+end.UTC().Format(stamp))
	if details != "" {
		q.Set("details", details)
	}
	if location != "" {
		q.Set("location", location)
	}
	return "https://calendar.google.com/calendar/render?" + q.Encode()
}
