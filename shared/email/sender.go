package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"video-insight/internal/models"
	"video-insight/shared/config"
)

type Sender struct {
	config *config.EmailConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSender(cfg *config.EmailConfig) *Sender {
	return &Sender{
		config: cfg,
		send:   smtp.SendMail,
	}
}

func (s *Sender) SendDigest(report *models.DigestReport) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	if len(report.Reports) == 0 {
		return nil // Nothing analyzed this run
	}

	subject := fmt.Sprintf("Video Insight Digest - %d Videos Analyzed (%s)",
		len(report.Reports), report.Date.Format("Jan 2, 2006"))

	body, err := generateDigestBody(report)
	if err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}

	return s.SendHTML(subject, body)
}

// SendHTML sends an email with custom HTML content
func (s *Sender) SendHTML(subject, htmlBody string) error {
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPServer)

	to := []string{s.config.ToEmail}
	msg := []byte(fmt.Sprintf(`To: %s
From: %s
Subject: %s
MIME-Version: 1.0
Content-Type: text/html; charset=UTF-8

%s`, s.config.ToEmail, s.config.FromEmail, subject, htmlBody))

	addr := fmt.Sprintf("%s:%d", s.config.SMTPServer, s.config.SMTPPort)
	return s.send(addr, auth, s.config.FromEmail, to, msg)
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"percent": func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
}).Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Video Insight Digest</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; }
        .header { background-color: #37474F; color: white; padding: 20px; border-radius: 8px; margin-bottom: 20px; text-align: center; }
        .video { background-color: #f8f9fa; padding: 15px; border-radius: 8px; margin-bottom: 20px; }
        .failed { border-left: 4px solid #F44336; }
        .ok { border-left: 4px solid #4CAF50; }
        .warning { color: #FF9800; font-weight: bold; }
        .metric { display: inline-block; margin: 10px 15px 10px 0; }
        .metric-label { font-weight: bold; color: #666; }
        .metric-value { font-size: 18px; color: #37474F; }
        .summary { white-space: pre-line; }
        .footer { text-align: center; color: #666; font-size: 12px; margin-top: 30px; border-top: 1px solid #ddd; padding-top: 15px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Video Insight Digest</h1>
        <p>{{.Date.Format "Monday, January 2, 2006 at 3:04 PM MST"}}</p>
        <p>{{len .Reports}} videos analyzed{{if .Failed}}, {{.Failed}} failed{{end}}</p>
    </div>

    {{range .Reports}}
    <div class="video {{if .Success}}ok{{else}}failed{{end}}">
        <h3>{{.VideoURL}}</h3>
        {{if .Success}}
        <div class="metric">
            <div class="metric-label">Frames</div>
            <div class="metric-value">{{.TotalFrames}}</div>
        </div>
        <div class="metric">
            <div class="metric-label">Failed frames</div>
            <div class="metric-value">{{.FailedFrames}}</div>
        </div>
        {{with .DiversityScore}}
        <div class="metric">
            <div class="metric-label">Diversity</div>
            <div class="metric-value">{{percent .OverallDiversityScore}}</div>
        </div>
        {{end}}
        {{with .SummaryReport}}
            {{if .Error}}<p class="warning">Summary unavailable: {{.Error}}</p>{{else}}<p class="summary">{{.Summary}}</p>{{end}}
        {{end}}
        {{else}}
        <p class="warning">Analysis failed: {{.Error}}</p>
        {{end}}
    </div>
    {{end}}

    <div class="footer">
        <p>Generated by Video Analyst Agent</p>
    </div>
</body>
</html>
`))

func generateDigestBody(report *models.DigestReport) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}
