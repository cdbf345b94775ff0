package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/learnmade/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	WelcomeSubject = "Welcome to LearnMade! 🚀"

	// entityID groups every newsletter message so mail clients don't thread
	// unrelated announcements together.
	entityID = "LearnMade-Newsletter"
)

// Composer renders the LearnMade emails. PublicURL is the site root that
// course and unsubscribe links point at.
type Composer struct {
	publicURL string
	now       func() time.Time
}

func NewComposer(publicURL string) *Composer {
	return &Composer{
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

// UnsubscribeURL is the one-click link carried by every newsletter email.
func (c *Composer) UnsubscribeURL(token string) string {
	return c.publicURL + "/unsubscribe?token=" + url.QueryEscape(token)
}

// CourseURL is the public page of a course.
func (c *Composer) CourseURL(slug string) string {
	return c.publicURL + "/courses/" + url.PathEscape(slug)
}

// Welcome is sent once, when an email subscribes for the first time.
func (c *Composer) Welcome(to, unsubscribeURL string) (Message, error) {
	html, err := render("welcome.html", map[string]any{
		"LibraryURL":     c.publicURL,
		"UnsubscribeURL": unsubscribeURL,
		"Year":           c.now().Year(),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{to},
		Subject: WelcomeSubject,
		HTML:    html,
		Headers: newsletterHeaders(unsubscribeURL),
	}, nil
}

// NewCourse announces a freshly published course to one subscriber.
func (c *Composer) NewCourse(course *model.Course, to, unsubscribeURL string) (Message, error) {
	html, err := render("new_course.html", map[string]any{
		"Title":          course.Title,
		"Description":    course.Description,
		"Thumbnail":      course.Thumbnail,
		"CourseURL":      c.CourseURL(course.Slug),
		"UnsubscribeURL": unsubscribeURL,
		"Year":           c.now().Year(),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{to},
		Subject: "New Course: " + course.Title,
		HTML:    html,
		Headers: newsletterHeaders(unsubscribeURL),
	}, nil
}

func newsletterHeaders(unsubscribeURL string) map[string]string {
	h := map[string]string{"X-Entity-ID": entityID}
	if unsubscribeURL != "" {
		h["List-Unsubscribe"] = "<" + unsubscribeURL + ">"
		h["List-Unsubscribe-Post"] = "List-Unsubscribe=One-Click"
	}
	return h
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("email: rendering %s: %w", name, err)
	}
	return buf.String(), nil
}
