package delivery

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"notifyhub/internal/microservices/http-api/models"
)

//go:embed templates/email.html
var templateFS embed.FS

type emailView struct {
	AppName        string
	Title          string
	Paragraphs     []string
	ActionURL      string
	ActionLabel    string
	PreferencesURL string
}

// EmailRenderer fills the shared header/body/CTA/footer shell.
type EmailRenderer struct {
	tmpl    *template.Template
	appName string
	baseURL string
}

func NewEmailRenderer(appName, baseURL string) (*EmailRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/email.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email template: %w", err)
	}
	return &EmailRenderer{
		tmpl:    tmpl,
		appName: appName,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Render returns the HTML and plain-text bodies for payload.
func (r *EmailRenderer) Render(payload models.OutboxPayload) (string, string, error) {
	view := emailView{
		AppName:        r.appName,
		Title:          payload.Title,
		Paragraphs:     splitParagraphs(payload.Body),
		ActionURL:      r.absoluteURL(payload.URL),
		ActionLabel:    "View details",
		PreferencesURL: r.baseURL + "/settings/notifications",
	}
	if label, ok := payload.Metadata["cta_label"].(string); ok && label != "" {
		view.ActionLabel = label
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("failed to render email: %w", err)
	}

	text := payload.Title + "\n\n" + payload.Body
	if view.ActionURL != "" {
		text += "\n\n" + view.ActionURL
	}
	return buf.String(), text, nil
}

func (r *EmailRenderer) absoluteURL(u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return r.baseURL + "/" + strings.TrimLeft(u, "/")
}

func splitParagraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(body, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
