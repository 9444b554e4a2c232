package services

import (
	"regexp"
	"strings"
	"text/template"
)

// Theme is the named HTML layout a rendered body is wrapped in.
type Theme string

const (
	ThemeModern       Theme = "modern"
	ThemeMinimal      Theme = "minimal"
	ThemeProfessional Theme = "professional"
)

// Template is the operator-supplied subject and body, both of which may
// contain {identifier} placeholders.
type Template struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Recipient is one row of the uploaded recipient list. The "email" field is
// required; every other field is a placeholder source.
type Recipient map[string]string

// Email returns the recipient's address.
func (r Recipient) Email() string { return r["email"] }

var placeholderRegex = regexp.MustCompile(`\{(\w+)\}`)

// Render replaces every {identifier} in text with fields[identifier].
// A field that is missing, or present with an empty value, does not
// substitute: the placeholder stays in the output verbatim.
func Render(text string, fields map[string]string) string {
	return placeholderRegex.ReplaceAllStringFunc(text, func(match string) string {
		if v := fields[match[1:len(match)-1]]; v != "" {
			return v
		}
		return match
	})
}

// WrapDocument places each line of an already rendered body in its own
// paragraph inside the theme's full HTML document. The body is inserted
// verbatim: operators are trusted to supply safe markup. Unknown themes get
// the professional layout.
func WrapDocument(renderedBody string, theme Theme) string {
	var paragraphs strings.Builder
	for _, line := range strings.Split(renderedBody, "\n") {
		paragraphs.WriteString("<p>")
		paragraphs.WriteString(line)
		paragraphs.WriteString("</p>")
	}

	layout, ok := themeLayouts[theme]
	if !ok {
		layout = themeLayouts[ThemeProfessional]
	}

	var doc strings.Builder
	// Execute only fails on writer errors, which strings.Builder never returns.
	_ = layout.Execute(&doc, struct{ Content string }{paragraphs.String()})
	return doc.String()
}

// RenderMessage renders subject and themed HTML body for one recipient.
func RenderMessage(tpl Template, r Recipient, theme Theme) (subject, html string) {
	return Render(tpl.Subject, r), WrapDocument(Render(tpl.Body, r), theme)
}

// ParseTheme maps a request value to a Theme. The empty string selects the
// modern theme; any other unknown value is kept and falls back to the
// professional layout when wrapped.
func ParseTheme(s string) Theme {
	if s == "" {
		return ThemeModern
	}
	return Theme(s)
}

var themeLayouts = map[Theme]*template.Template{
	ThemeModern:       template.Must(template.New("modern").Parse(modernLayout)),
	ThemeMinimal:      template.Must(template.New("minimal").Parse(minimalLayout)),
	ThemeProfessional: template.Must(template.New("professional").Parse(professionalLayout)),
}

const modernLayout = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Email</title>
  <style>
    body { margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; background-color: #f8f9fa; }
    .email-container { max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 12px; overflow: hidden; box-shadow: 0 4px 6px rgba(0, 0, 0, 0.1); }
    .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 40px 30px; text-align: center; }
    .header h1 { margin: 0; font-size: 28px; font-weight: 600; }
    .content { padding: 40px 30px; background-color: #ffffff; }
    .content p { margin: 0 0 20px 0; font-size: 16px; color: #4a5568; }
    .footer { background-color: #f7fafc; padding: 30px; text-align: center; border-top: 1px solid #e2e8f0; }
    .footer p { margin: 0; color: #718096; font-size: 14px; }
    @media (max-width: 600px) {
      .email-container { margin: 10px; border-radius: 8px; }
      .header, .content, .footer { padding: 20px; }
    }
  </style>
</head>
<body>
  <div class="email-container">
    <div class="header">
      <h1>Your Message</h1>
    </div>
    <div class="content">
      {{.Content}}
    </div>
    <div class="footer">
      <p>Sent with ❤️ from your email campaign</p>
    </div>
  </div>
</body>
</html>
`

const minimalLayout = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Email</title>
  <style>
    body { margin: 0; padding: 20px; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #2d3748; background-color: #ffffff; }
    .email-content { max-width: 600px; margin: 0 auto; padding: 40px 20px; }
    .email-content p { margin: 0 0 16px 0; font-size: 16px; }
    @media (max-width: 600px) {
      body { padding: 10px; }
      .email-content { padding: 20px 10px; }
    }
  </style>
</head>
<body>
  <div class="email-content">
    {{.Content}}
  </div>
</body>
</html>
`

const professionalLayout = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Email</title>
  <style>
    body { margin: 0; padding: 0; font-family: Georgia, serif; line-height: 1.8; color: #2c3e50; background-color: #ecf0f1; }
    .email-container { max-width: 600px; margin: 0 auto; background-color: #ffffff; border: 2px solid #34495e; }
    .header { background-color: #34495e; color: white; padding: 30px; text-align: center; border-bottom: 3px solid #e74c3c; }
    .header h1 { margin: 0; font-size: 24px; font-weight: normal; }
    .content { padding: 40px 30px; background-color: #ffffff; }
    .content p { margin: 0 0 20px 0; font-size: 16px; text-align: justify; }
    .footer { background-color: #34495e; color: white; padding: 20px; text-align: center; font-size: 14px; }
    @media (max-width: 600px) {
      .email-container { margin: 10px; }
      .header, .content, .footer { padding: 20px; }
    }
  </style>
</head>
<body>
  <div class="email-container">
    <div class="header">
      <h1>Professional Communication</h1>
    </div>
    <div class="content">
      {{.Content}}
    </div>
    <div class="footer">
      <p>Best regards,<br>Your Team</p>
    </div>
  </div>
</body>
</html>
`
