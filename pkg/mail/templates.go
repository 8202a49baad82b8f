package mail

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// LeadParams feeds both lead templates.
type LeadParams struct {
	LeadID       string
	Name         string
	Email        string
	Company      string
	Phone        string
	Service      string
	Budget       string
	Message      string
	Source       string
	SubmittedAt  time.Time
	AdminURL     string
	BrandingName string
}

var (
	//go:embed templates/*.html
	templateFS embed.FS

	templates = template.Must(template.New("mail").
			Funcs(sprig.FuncMap()).
			ParseFS(templateFS, "templates/*.html"))
)

func render(name string, p any) (string, error) {
	var b bytes.Buffer
	if err := templates.ExecuteTemplate(&b, name, p); err != nil {
		return "", err
	}
	return b.String(), nil
}

// RenderLeadNotification renders the mail sent to the sales inbox.
func RenderLeadNotification(p LeadParams) (string, error) {
	return render("lead_notification.html", p)
}

// RenderLeadConfirmation renders the mail sent back to the submitter.
func RenderLeadConfirmation(p LeadParams) (string, error) {
	return render("lead_confirmation.html", p)
}
