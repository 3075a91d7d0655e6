// Package session manages framework sessions for web applications.
//
// A session carries an identifier, a negotiated locale, and a mutable
// attribute bag. Stores persist sessions between requests; the cookie codec
// moves signed session identifiers between the browser and the server.
package session
