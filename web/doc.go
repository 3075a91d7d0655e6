// Package web binds a Loom application to the net/http container lifecycle.
//
// An Application owns the mount table, session machinery, shared resources,
// and buffered redirect responses for one deployment. A Filter is the
// http.Handler the container mounts: it resolves the session, decodes the
// request into a page or resource target through the mount table, and drives
// a RequestCycle that renders the target per the configured strategy.
// Requests no mount resolves fall through to the filter's next handler.
package web
