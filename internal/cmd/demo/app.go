package demo

import (
	"context"
	"embed"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/language"

	"github.com/loomwork/loom/mount"
	"github.com/loomwork/loom/pages"
	"github.com/loomwork/loom/requestlog"
	"github.com/loomwork/loom/resource"
	"github.com/loomwork/loom/session"
	"github.com/loomwork/loom/web"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/site.css
var siteCSS []byte

var demoTemplates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// application holds the state demo pages share. The session attribute prefix
// is captured in the Init hook, once the filter name is known.
type application struct {
	attrPrefix string
}

// newApplication assembles the demo application: a visit counter on the home
// page, a guestbook exercising the post-redirect-get flow, a docs page group,
// a guarded admin page, and a shared stylesheet.
func newApplication(opts ...web.Option) (*web.Application, error) {
	d := &application{}
	base := []web.Option{
		web.WithName("Loom Demo"),
		web.WithLocales(language.English, language.Spanish),
		web.WithRequestLogger(requestlog.NewRecorder(nil)),
		web.WithInit(func(app *web.Application) error {
			prefix, err := app.SessionAttributePrefix()
			if err != nil {
				return err
			}
			d.attrPrefix = prefix
			return nil
		}),
	}
	app := web.NewApplication(append(base, opts...)...)

	if err := app.SharedResources().Add("site-css", resource.NewBytesResource("text/css; charset=utf-8", siteCSS)); err != nil {
		return nil, err
	}
	if err := app.MountResource("/static/site.css", "site-css"); err != nil {
		return nil, err
	}
	if err := app.MountPage("/", d.homePage); err != nil {
		return nil, err
	}
	if err := app.MountPage("/guestbook", d.guestbookPage); err != nil {
		return nil, err
	}
	if err := app.MountPage("/admin", d.adminPage, mount.WithGuard(d.adminGuard)); err != nil {
		return nil, err
	}
	if err := app.MountPage("/grant", d.grantPage); err != nil {
		return nil, err
	}

	docs := mount.NewPageGroup()
	if err := docs.Add("start", docPage("Getting started", "Mount pages, hand the application to a filter, and serve it.")); err != nil {
		return nil, err
	}
	if err := docs.Add("faq", docPage("FAQ", "Sessions are cookie-backed and expire after long inactivity.")); err != nil {
		return nil, err
	}
	if err := docs.SetDefault("start"); err != nil {
		return nil, err
	}
	if err := app.MountPageGroup("/docs", docs, nil); err != nil {
		return nil, err
	}

	app.AddIgnoreMountPath("/healthz")
	return app, nil
}

func (d *application) attr(name string) string {
	return d.attrPrefix + name
}

type homeView struct {
	AppName string
	Visits  int
}

func (d *application) homePage(pctx pages.Context) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		visits := 0
		if sess := web.SessionFromContext(ctx); sess != nil {
			if value, ok := sess.Attribute(d.attr("visits")); ok {
				if n, ok := toInt(value); ok {
					visits = n
				}
			}
			visits++
			sess.SetAttribute(d.attr("visits"), visits)
		}
		return demoTemplates.ExecuteTemplate(w, "home.html", homeView{
			AppName: pctx.AppName,
			Visits:  visits,
		})
	})
}

type guestbookView struct {
	AppName string
	Entries []string
}

// guestbookPage appends the posted message before rendering. Posts render
// into a stored buffer and redirect, so reloading the result page does not
// sign the book twice.
func (d *application) guestbookPage(pctx pages.Context) templ.Component {
	message := strings.TrimSpace(pctx.Params.Get("message"))
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		sess := web.SessionFromContext(ctx)
		entries := d.entries(sess)
		if message != "" && sess != nil {
			entries = append(entries, message)
			sess.SetAttribute(d.attr("entries"), entries)
		}
		return demoTemplates.ExecuteTemplate(w, "guestbook.html", guestbookView{
			AppName: pctx.AppName,
			Entries: entries,
		})
	})
}

// entries loads the guestbook entries. The sqlite store round-trips
// attributes through JSON, so a restored list arrives as []any.
func (d *application) entries(sess *session.Session) []string {
	if sess == nil {
		return nil
	}
	value, ok := sess.Attribute(d.attr("entries"))
	if !ok {
		return nil
	}
	switch list := value.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		entries := make([]string, 0, len(list))
		for _, item := range list {
			if entry, ok := item.(string); ok {
				entries = append(entries, entry)
			}
		}
		return entries
	}
	return nil
}

type noticeView struct {
	AppName string
	Title   string
	Message string
}

func (d *application) adminGuard(r *http.Request) error {
	sess := web.SessionFromContext(r.Context())
	if sess == nil {
		return mount.ErrAccessDenied
	}
	value, _ := sess.Attribute(d.attr("admin"))
	if granted, ok := value.(bool); !ok || !granted {
		return mount.ErrAccessDenied
	}
	return nil
}

func (d *application) adminPage(pctx pages.Context) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return demoTemplates.ExecuteTemplate(w, "notice.html", noticeView{
			AppName: pctx.AppName,
			Title:   "Admin",
			Message: "You are signed in as an admin for this session.",
		})
	})
}

func (d *application) grantPage(pctx pages.Context) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if sess := web.SessionFromContext(ctx); sess != nil {
			sess.SetAttribute(d.attr("admin"), true)
		}
		return demoTemplates.ExecuteTemplate(w, "notice.html", noticeView{
			AppName: pctx.AppName,
			Title:   "Access granted",
			Message: "This session may now open the admin page.",
		})
	})
}

type docView struct {
	AppName string
	Title   string
	Body    string
}

func docPage(title, body string) pages.Factory {
	return func(pctx pages.Context) templ.Component {
		return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
			return demoTemplates.ExecuteTemplate(w, "doc.html", docView{
				AppName: pctx.AppName,
				Title:   title,
				Body:    body,
			})
		})
	}
}

func toInt(value any) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
