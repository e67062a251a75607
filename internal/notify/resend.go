package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/resend/resend-go/v3"
)

// ResendSender implements Sender using the Resend API.
type ResendSender struct {
	client      *resend.Client
	fromAddress string
}

// NewResendSender creates a Resend sender. fromAddress must be verified in
// Resend.
func NewResendSender(apiKey, fromAddress string) *ResendSender {
	return &ResendSender{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
	}
}

// Send renders the template and sends it through Resend.
func (r *ResendSender) Send(to, templateName string, data any) error {
	subject, body := renderTemplate(templateName, data)

	params := &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}

	if _, err := r.client.Emails.Send(params); err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	return nil
}

// renderTemplate returns the subject and HTML body. Every value that came
// from the page under test is escaped.
func renderTemplate(templateName string, data any) (subject, body string) {
	if d, ok := data.(RunFailedData); ok && templateName == TemplateRunFailed {
		subject = fmt.Sprintf("aurora-verify: %d of %d scenarios failed (%s)", d.Failed, d.Failed+d.Passed, d.RunID)
		return subject, renderRunFailedHTML(d)
	}
	return "Message from aurora-verify", fmt.Sprintf("<p>%s</p>", html.EscapeString(fmt.Sprintf("%+v", data)))
}

func renderRunFailedHTML(d RunFailedData) string {
	var rows strings.Builder
	for _, f := range d.Failures {
		shot := "-"
		if f.Screenshot != "" {
			shot = fmt.Sprintf(`<a href="%s">screenshot</a>`, html.EscapeString(f.Screenshot))
		}
		fmt.Fprintf(&rows, `<tr><td>%s</td><td>%s</td><td>%s</td><td><pre style="white-space: pre-wrap; margin: 0;">%s</pre></td><td>%s</td></tr>`+"\n",
			html.EscapeString(f.Scenario),
			html.EscapeString(f.Step),
			html.EscapeString(f.Code),
			html.EscapeString(f.Error),
			shot,
		)
	}
	report := ""
	if d.ReportURL != "" {
		report = fmt.Sprintf(`<p><a href="%s">Open the full report</a></p>`, html.EscapeString(d.ReportURL))
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Verification failed</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.5; color: #333; max-width: 760px; margin: 0 auto; padding: 20px;">
    <h2 style="margin-top: 0;">Verification run %s</h2>
    <p>Target: %s<br>%d passed, %d failed</p>
    <table style="border-collapse: collapse; width: 100%%;" border="1" cellpadding="6">
        <tr><th>Scenario</th><th>Step</th><th>Code</th><th>Error</th><th></th></tr>
%s    </table>
    %s
</body>
</html>`, html.EscapeString(d.RunID), html.EscapeString(d.Target), d.Passed, d.Failed, rows.String(), report)
}
