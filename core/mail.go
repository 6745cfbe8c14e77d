package core

import (
	"bytes"
	"context"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/feeded/fs"
)

const templatesDir = "templates/email"

var (
	templates    tmplCache
	tmplInit     sync.Once
	tmplParseErr error
)

type (
	tmplCacheEntry struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}
	tmplCache map[string]*tmplCacheEntry // {name: entry}

	EmailMessage struct {
		From    mail.Address
		To      []mail.Address
		Subject string

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		Data interface{}
	}

	// EmailService is any service that can deliver emails.
	// Send returns once the provider accepted or rejected the message.
	EmailService interface {
		Send(ctx context.Context, msg *EmailMessage) error
	}
)

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// Render fills TextContent and HTMLContent from the message template, if any.
// Contents that are already set are left untouched.
func (m *EmailMessage) Render() error {
	if m.TemplateName == "" {
		return nil
	}
	tmplInit.Do(parseTemplates) // only parsed once
	if tmplParseErr != nil {
		return tmplParseErr
	}
	entry, ok := templates[m.TemplateName]
	if !ok {
		return errors.Errorf("email template %q not found", m.TemplateName)
	}

	ctxData := ContextData{Data: m.TemplateData}
	if m.TextContent == "" && entry.text != nil {
		var buff bytes.Buffer
		if err := entry.text.Execute(&buff, ctxData); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = strings.TrimSpace(buff.String())
	}
	if m.HTMLContent == "" && entry.html != nil {
		var buff bytes.Buffer
		if err := entry.html.Execute(&buff, ctxData); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func parseTemplates() {
	templates = make(tmplCache)

	fps, err := fs.Glob(appfs.FS, path.Join(templatesDir, "*"))
	if err != nil {
		tmplParseErr = errors.Wrap(err, "core.parseTemplates")
		return
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := templates[name]
		if !ok {
			entry = new(tmplCacheEntry)
			templates[name] = entry
		}

		base := path.Join(templatesDir, "_base"+ext)
		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(appfs.FS, base, fp)
			if err != nil {
				tmplParseErr = errors.Wrap(err, "core.parseTemplates")
				return
			}
			entry.text = tmpl.Option("missingkey=error")
		} else {
			tmpl, err := htmltmpl.ParseFS(appfs.FS, base, fp)
			if err != nil {
				tmplParseErr = errors.Wrap(err, "core.parseTemplates")
				return
			}
			entry.html = tmpl.Option("missingkey=error")
		}
	}
}
