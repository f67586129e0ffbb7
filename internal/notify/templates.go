package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var defaultTemplates embed.FS

type emailTemplate struct {
	file    string
	subject string
}

var emailTemplates = map[Kind]emailTemplate{
	KindVerification:  {file: "verification_email.html", subject: "Your Verification Code"},
	KindPasswordReset: {file: "password_reset_email.html", subject: "Reset Your Password"},
}

// TemplateSource supplies template overrides by object key.
type TemplateSource interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Templates renders notification emails.
type Templates struct {
	set map[Kind]*template.Template
}

// LoadTemplates parses the embedded templates, replacing each with the
// object prefix+file from source when source is non-nil and has it.
func LoadTemplates(ctx context.Context, source TemplateSource, prefix string, logger *zap.Logger) (*Templates, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	set := make(map[Kind]*template.Template, len(emailTemplates))
	for kind, et := range emailTemplates {
		text, err := fs.ReadFile(defaultTemplates, path.Join("templates", et.file))
		if err != nil {
			return nil, err
		}

		if source != nil {
			key := prefix + et.file
			override, err := readOverride(ctx, source, key)
			if err != nil {
				logger.Warn("template override unavailable, using embedded default",
					zap.String("key", key), zap.Error(err))
			} else {
				text = override
			}
		}

		tmpl, err := template.New(et.file).Parse(string(text))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", et.file, err)
		}
		set[kind] = tmpl
	}
	return &Templates{set: set}, nil
}

// Render returns the subject and HTML body for n.
func (t *Templates) Render(n Notification) (string, string, error) {
	tmpl, ok := t.set[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("no template for notification kind %q", n.Kind)
	}

	var buf bytes.Buffer
	data := struct {
		Username string
		Code     string
	}{Username: n.Username, Code: n.Code}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return emailTemplates[n.Kind].subject, buf.String(), nil
}

// DefaultTemplateFiles returns the embedded template files keyed by file name.
func DefaultTemplateFiles() (map[string][]byte, error) {
	files := make(map[string][]byte, len(emailTemplates))
	for _, et := range emailTemplates {
		data, err := fs.ReadFile(defaultTemplates, path.Join("templates", et.file))
		if err != nil {
			return nil, err
		}
		files[et.file] = data
	}
	return files, nil
}

func readOverride(ctx context.Context, source TemplateSource, key string) ([]byte, error) {
	rc, err := source.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
