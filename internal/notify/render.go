package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/hkschools/admission-monitor/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

var typeHeadline = map[models.NotificationType]string{
	models.NotifyApplicationOpen:   "The application period for this school has started. Don't miss this opportunity!",
	models.NotifyApplicationClosed: "The application period for this school has closed. Check back later for future opportunities.",
	models.NotifyDeadlineReminder:  "The application deadline is approaching. Make sure to submit your application on time!",
	models.NotifyDeadlineUpdate:    "The application deadline has changed. Check the latest details.",
}

const defaultHeadline = "The school's website has been updated with new information. Check the latest details."

var priorityColor = map[models.Priority]string{
	models.PriorityLow:    "#28a745",
	models.PriorityMedium: "#ffc107",
	models.PriorityHigh:   "#fd7e14",
	models.PriorityUrgent: "#dc3545",
}

// Renderer builds notification emails from the embedded templates.
type Renderer struct {
	frontendURL string
	html        *htmltemplate.Template
	text        *texttemplate.Template
}

func NewRenderer(frontendURL string) (*Renderer, error) {
	funcs := map[string]any{
		"headline": func(t models.NotificationType) string {
			if h, ok := typeHeadline[t]; ok {
				return h
			}
			return defaultHeadline
		},
		"color": func(p models.Priority) string { return priorityColor[p] },
		"upper": func(v any) string { return strings.ToUpper(fmt.Sprint(v)) },
		"date": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format("2 January 2006")
		},
	}

	h, err := htmltemplate.New("html").Funcs(funcs).ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	t, err := texttemplate.New("text").Funcs(funcs).ParseFS(templateFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Renderer{frontendURL: strings.TrimRight(frontendURL, "/"), html: h, text: t}, nil
}

type notificationView struct {
	models.Notification
	DetailsURL string
}

type digestView struct {
	User          models.User
	Notifications []notificationView
	FrontendURL   string
}

func (r *Renderer) view(n models.Notification) notificationView {
	return notificationView{Notification: n, DetailsURL: r.frontendURL + "/kindergartens/" + n.SchoolNo}
}

// Notification renders a single notification.
func (r *Renderer) Notification(n models.Notification) (Message, error) {
	v := r.view(n)
	msg := Message{Subject: "[School Portal] " + n.Title}
	var err error
	if msg.HTML, err = r.execHTML("notification.html.tmpl", v); err != nil {
		return Message{}, err
	}
	if msg.Text, err = r.execText("notification.txt.tmpl", v); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Digest renders several pending notifications as one email. A single
// notification renders as a plain notification email.
func (r *Renderer) Digest(u models.User, notes []models.Notification) (Message, error) {
	if len(notes) == 1 {
		return r.Notification(notes[0])
	}
	v := digestView{User: u, FrontendURL: r.frontendURL}
	for _, n := range notes {
		v.Notifications = append(v.Notifications, r.view(n))
	}
	msg := Message{Subject: fmt.Sprintf("[School Portal] %d school updates", len(notes))}
	var err error
	if msg.HTML, err = r.execHTML("digest.html.tmpl", v); err != nil {
		return Message{}, err
	}
	if msg.Text, err = r.execText("digest.txt.tmpl", v); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Test is the configuration check email.
func (r *Renderer) Test(now time.Time) Message {
	stamp := now.Format(time.RFC1123)
	return Message{
		Subject: "Test Email - School Portal Notification System",
		HTML: "<h2>Test Email</h2><p>This is a test email to verify that the School Portal notification system is working correctly.</p>" +
			"<p>Time sent: " + htmltemplate.HTMLEscapeString(stamp) + "</p>",
		Text: "Test email from School Portal notification system. Time sent: " + stamp,
	}
}

func (r *Renderer) execHTML(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.html.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Renderer) execText(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.text.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// TelegramText is the plain-text form used for push messages.
func TelegramText(notes []models.Notification) string {
	var b strings.Builder
	for i, n := range notes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s\n%s", n.SchoolName, n.Title, n.Message)
		if n.Metadata.Deadline != nil {
			fmt.Fprintf(&b, "\nDeadline: %s", n.Metadata.Deadline.Format("2 January 2006"))
		}
		if n.Metadata.WebsiteURL != "" {
			b.WriteString("\n")
			b.WriteString(n.Metadata.WebsiteURL)
		}
	}
	return b.String()
}
