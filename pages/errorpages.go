package pages

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/a-h/templ"
)

//go:embed templates/*.html
var templatesFS embed.FS

var errorTemplate = template.Must(template.ParseFS(templatesFS, "templates/error.html"))

// errorView is the data handed to the shared error document template.
type errorView struct {
	Title     string
	Heading   string
	Message   string
	HomeLabel string
	AppName   string
}

// InternalError renders the default page shown for unexpected failures.
func InternalError(pctx Context) templ.Component {
	return errorComponent(errorView{
		Title:     pctx.Sprintf("Internal error"),
		Heading:   pctx.Sprintf("Something went wrong"),
		Message:   pctx.Sprintf("The server hit an unexpected error while handling this request."),
		HomeLabel: pctx.Sprintf("Back to home"),
		AppName:   pctx.AppName,
	})
}

// PageExpired renders the default page shown when a request references
// session state that no longer exists.
func PageExpired(pctx Context) templ.Component {
	return errorComponent(errorView{
		Title:     pctx.Sprintf("Page expired"),
		Heading:   pctx.Sprintf("This page has expired"),
		Message:   pctx.Sprintf("The page you requested is no longer available in your session."),
		HomeLabel: pctx.Sprintf("Back to home"),
		AppName:   pctx.AppName,
	})
}

// AccessDenied renders the default page shown when a request is not
// authorized for its target.
func AccessDenied(pctx Context) templ.Component {
	return errorComponent(errorView{
		Title:     pctx.Sprintf("Access denied"),
		Heading:   pctx.Sprintf("Access denied"),
		Message:   pctx.Sprintf("You are not allowed to view this page."),
		HomeLabel: pctx.Sprintf("Back to home"),
		AppName:   pctx.AppName,
	})
}

func errorComponent(view errorView) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return errorTemplate.Execute(w, view)
	})
}
