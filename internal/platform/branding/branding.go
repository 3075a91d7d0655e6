// Package branding centralizes product naming so display strings stay
// consistent across applications and command line output.
package branding

// AppName is the default display name for applications that do not set
// their own.
const AppName = "Loom"
