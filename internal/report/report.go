// Package report turns an incident report into an alert email and
// delivers it over SMTP.
package report

import (
	"strings"
	"time"
)

// Severity grades a risk indicator.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// RiskIndicator is one highlighted risk factor of a report.
type RiskIndicator struct {
	Label    string
	Severity Severity
}

// Report is a sanitized incident report. Empty strings mean "not informed".
type Report struct {
	VictimName      string `validate:"required"`
	AggressorName   string
	Location        string
	LocationDetails string
	AdditionalInfo  string
	ReporterPhone   string

	IsImmediate         bool
	HasWeapon           bool
	HasFirearm          bool
	IsIntoxicated       bool
	HasMinors           bool
	HasInjuries         bool
	IsRecurring         bool
	HasRestrainingOrder bool

	Timestamp time.Time
}

// RiskIndicators lists the flagged risks, most severe first.
func (r Report) RiskIndicators() []RiskIndicator {
	checks := []struct {
		set      bool
		label    string
		severity Severity
	}{
		{r.HasFirearm, "Possui arma de fogo", SeverityCritical},
		{r.HasWeapon, "Possui arma branca ou objeto perigoso", SeverityCritical},
		{r.HasInjuries, "Vítima com lesões visíveis", SeverityCritical},
		{r.IsIntoxicated, "Agressor sob efeito de álcool/drogas", SeverityCritical},
		{r.IsRecurring, "Situação recorrente", SeverityCritical},
		{r.HasRestrainingOrder, "Medida protetiva vigente", SeverityCritical},
		{r.HasMinors, "Menores presentes no local", SeverityWarning},
	}

	var out []RiskIndicator
	for _, c := range checks {
		if c.set {
			out = append(out, RiskIndicator{Label: c.label, Severity: c.severity})
		}
	}
	return out
}

// Subject returns the email subject line.
func (r Report) Subject() string {
	prefix := ""
	if r.IsImmediate {
		prefix = "[URGENTE] "
	}
	return prefix + "Alerta de Ocorrência - " + r.VictimName
}

// FromRequest sanitizes a decoded JSON request body. Missing, null, blank and
// "null" strings become empty; flags follow JavaScript truthiness. A timestamp
// without a zone is read in now's location; an absent or unparsable one falls
// back to now.
func FromRequest(body map[string]any, now time.Time) Report {
	r := Report{
		VictimName:          sanitizeString(body["victimName"]),
		AggressorName:       sanitizeString(body["aggressorName"]),
		Location:            sanitizeString(body["location"]),
		LocationDetails:     sanitizeString(body["locationDetails"]),
		AdditionalInfo:      sanitizeString(body["additionalInfo"]),
		ReporterPhone:       sanitizeString(body["reporterPhone"]),
		IsImmediate:         truthy(body["isImmediate"]),
		HasWeapon:           truthy(body["hasWeapon"]),
		HasFirearm:          truthy(body["hasFirearm"]),
		IsIntoxicated:       truthy(body["isIntoxicated"]),
		HasMinors:           truthy(body["hasMinors"]),
		HasInjuries:         truthy(body["hasInjuries"]),
		IsRecurring:         truthy(body["isRecurring"]),
		HasRestrainingOrder: truthy(body["hasRestrainingOrder"]),
		Timestamp:           now,
	}

	if ts := sanitizeString(body["timestamp"]); ts != "" {
		if t, ok := parseTimestamp(ts, now.Location()); ok {
			r.Timestamp = t
		}
	}
	return r
}

// localLayouts are accepted after RFC 3339, as sent by datetime-local inputs.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(ts string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, ts, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sanitizeString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case nil:
		return false
	default:
		return true
	}
}
