package email

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.txt
var templateFS embed.FS

// Template identifies one of the notification messages.
type Template string

const (
	TemplateSubscriptionConfirmation Template = "subscription_confirmation"
	TemplateAlreadySubscribed        Template = "already_subscribed"
	TemplateCancellationConfirmation Template = "cancellation_confirmation"
	TemplateNotSubscribed            Template = "not_subscribed"
	TemplatePublicationEvent         Template = "publication_event"
)

// Templates lists every message the renderer must provide.
var Templates = []Template{
	TemplateSubscriptionConfirmation,
	TemplateAlreadySubscribed,
	TemplateCancellationConfirmation,
	TemplateNotSubscribed,
	TemplatePublicationEvent,
}

// Data is the context every template is rendered with. Content is the node
// the message is about; Subscribed is the node holding the subscription.
type Data struct {
	From              string
	To                string
	SiteName          string
	ContentTitle      string
	ContentURL        string
	SubscribedTitle   string
	SubscribedURL     string
	ServiceURL        string
	ConfirmationURL   string
	ConfirmationDelay int
}

type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates and checks that each message
// defines both a subject and a body.
func NewRenderer() (*Renderer, error) {
	templates, err := template.New("email").Option("missingkey=error").ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parsing email templates: %w", err)
	}
	for _, t := range Templates {
		for _, part := range []string{"_subject", "_body"} {
			if templates.Lookup(string(t)+part) == nil {
				return nil, fmt.Errorf("missing email template %s%s", t, part)
			}
		}
	}
	return &Renderer{templates: templates}, nil
}

// Render returns the subject and plain-text body of t.
func (r *Renderer) Render(t Template, data Data) (string, string, error) {
	var subject, body bytes.Buffer
	if err := r.templates.ExecuteTemplate(&subject, string(t)+"_subject", data); err != nil {
		return "", "", fmt.Errorf("rendering %s subject: %w", t, err)
	}
	if err := r.templates.ExecuteTemplate(&body, string(t)+"_body", data); err != nil {
		return "", "", fmt.Errorf("rendering %s body: %w", t, err)
	}
	// Subjects are header values
	s := strings.Join(strings.Fields(subject.String()), " ")
	return s, body.String(), nil
}
