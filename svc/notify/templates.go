package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type receiptData struct {
	PlanName      string
	Amount        string
	TransactionID string
	Method        string
	PaidOn        string
	ValidUntil    string
	SupportEmail  string
}

type renewalData struct {
	PlanName         string
	Amount           string
	TransactionID    string
	AuthorizationURL string
	SupportEmail     string
}

type expiryData struct {
	PlanName     string
	ExpiredOn    string
	SupportEmail string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("notify: render %s: %w", name, err)
	}
	return buf.String(), nil
}
