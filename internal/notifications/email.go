package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/alertaperu/community-alarm/internal/models"
	"gopkg.in/gomail.v2"
)

// mailSender is satisfied by *gomail.Dialer
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailReporter mails the dispatch record of every alert to an operator
type EmailReporter struct {
	from   string
	to     string
	sender mailSender
}

// Ensure EmailReporter implements ReportChannel
var _ ReportChannel = (*EmailReporter)(nil)

// SMTPConfig holds the operator mailbox settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	To       string
}

// NewEmailReporter creates an SMTP-backed reporter
func NewEmailReporter(cfg SMTPConfig) *EmailReporter {
	return &EmailReporter{
		from:   cfg.Username,
		to:     cfg.To,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// SendReport mails the alert record. gomail has no context support, so ctx only guards the start.
func (r *EmailReporter) SendReport(ctx context.Context, record *models.AlertRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("Alert %s - %s (%d sent, %d failed)",
		strings.ToUpper(record.Community), record.Resolution.Confidence, record.Summary.Sent, record.Summary.Failed)

	htmlBody, err := buildReportHTML(record)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", r.from)
	m.SetHeader("To", r.to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", buildReportText(record))
	m.AddAlternative("text/html", htmlBody)

	if err := r.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

var reportTemplate = template.Must(template.New("report").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Community Alert Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #d13438; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .ok { color: #107c10; }
        .failed { color: #d13438; }
        .skipped { color: #605e5c; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Alert in {{.Community}}</h1>
        <p>Raised {{.CreatedAt.Format "January 2, 2006 at 3:04 PM MST"}} (alert {{.ID}})</p>
    </div>

    <div class="summary">
        <p><strong>Reporter:</strong> {{.Resolution.Reporter.DisplayName}} ({{.Resolution.Confidence}})</p>
        <p><strong>Description:</strong> {{.Submission.Description}}</p>
        <p><strong>Address:</strong> {{.Resolution.Address}}</p>
        <p><strong>Map:</strong> {{.Group.MapLink}}</p>
        <p><strong>Delivered:</strong> {{.Summary.Sent}} | <strong>Failed:</strong> {{.Summary.Failed}} | <strong>Skipped:</strong> {{.Summary.Skipped}}</p>
    </div>

    <h2>Deliveries</h2>
    <ul>
    {{range .Summary.Outcomes}}
        <li class="{{if .Success}}ok{{else if .Skipped}}skipped{{else}}failed{{end}}">
            {{.Channel}} to {{.Recipient}}{{if .Error}}: {{.Error}}{{end}}
        </li>
    {{end}}
    </ul>
</body>
</html>
`))

func buildReportHTML(record *models.AlertRecord) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, record); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildReportText(record *models.AlertRecord) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Alert in %s\n", strings.ToUpper(record.Community)))
	text.WriteString(fmt.Sprintf("Alert ID: %s\n", record.ID))
	text.WriteString(fmt.Sprintf("Raised: %s\n\n", record.CreatedAt.Format("2006-01-02 15:04:05 MST")))

	text.WriteString(fmt.Sprintf("Reporter: %s (%s)\n", record.Resolution.Reporter.DisplayName, record.Resolution.Confidence))
	text.WriteString(fmt.Sprintf("Description: %s\n", record.Submission.Description))
	text.WriteString(fmt.Sprintf("Address: %s\n", record.Resolution.Address))
	text.WriteString(fmt.Sprintf("Map: %s\n\n", record.Group.MapLink))

	text.WriteString("DELIVERIES\n")
	text.WriteString("==========\n")
	text.WriteString(fmt.Sprintf("Sent: %d | Failed: %d | Skipped: %d | Duration: %s\n",
		record.Summary.Sent, record.Summary.Failed, record.Summary.Skipped, record.Summary.Duration))

	for _, outcome := range record.Summary.Outcomes {
		status := "ok"
		switch {
		case outcome.Skipped:
			status = "skipped"
		case !outcome.Success:
			status = "FAILED"
		}
		line := fmt.Sprintf("- [%s] %s to %s", status, outcome.Channel, outcome.Recipient)
		if outcome.Error != "" {
			line += ": " + outcome.Error
		}
		text.WriteString(line + "\n")
	}

	return text.String()
}
