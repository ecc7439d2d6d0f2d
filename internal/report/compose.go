package report

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
	_ "time/tzdata"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/report.html.tmpl"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/report.txt.tmpl"))
)

// TimeLayout is the pt-BR "dd/mm/yyyy, hh:mm" layout used in the email.
const TimeLayout = "02/01/2006, 15:04"

// Content is a rendered email body pair.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

type view struct {
	Report
	Risks         []RiskIndicator
	FormattedTime string
}

// Renderer renders reports in a fixed display time zone.
type Renderer struct {
	loc *time.Location
}

// NewRenderer loads timezone, falling back to UTC-3 when it is unknown.
func NewRenderer(timezone string) *Renderer {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.FixedZone("BRT", -3*60*60)
	}
	return &Renderer{loc: loc}
}

// FormatTime renders t in the display zone.
func (r *Renderer) FormatTime(t time.Time) string {
	return t.In(r.loc).Format(TimeLayout)
}

// Render produces the subject and both bodies for rep.
func (r *Renderer) Render(rep Report) (Content, error) {
	v := view{
		Report:        rep,
		Risks:         rep.RiskIndicators(),
		FormattedTime: r.FormatTime(rep.Timestamp),
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.ExecuteTemplate(&html, "report.html.tmpl", v); err != nil {
		return Content{}, fmt.Errorf("render html report: %w", err)
	}
	if err := textTemplate.ExecuteTemplate(&text, "report.txt.tmpl", v); err != nil {
		return Content{}, fmt.Errorf("render text report: %w", err)
	}

	return Content{Subject: rep.Subject(), HTML: html.String(), Text: text.String()}, nil
}
