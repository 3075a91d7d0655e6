package session

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// LangCookieName stores the visitor's language preference.
	LangCookieName = "loom_lang"
)

// LocaleResolver negotiates a session locale from request signals.
//
// Resolution order: lang query parameter, language preference cookie,
// Accept-Language header, then the configured default.
type LocaleResolver struct {
	supported []language.Tag
	matcher   language.Matcher
	fallback  language.Tag
}

// NewLocaleResolver builds a resolver with the default tag and any further
// supported tags.
func NewLocaleResolver(fallback language.Tag, others ...language.Tag) *LocaleResolver {
	supported := append([]language.Tag{fallback}, others...)
	return &LocaleResolver{
		supported: supported,
		matcher:   language.NewMatcher(supported),
		fallback:  fallback,
	}
}

// Supported returns the list of supported language tags.
func (lr *LocaleResolver) Supported() []language.Tag {
	out := make([]language.Tag, len(lr.supported))
	copy(out, lr.supported)
	return out
}

// Default returns the fallback language tag.
func (lr *LocaleResolver) Default() language.Tag {
	return lr.fallback
}

// Resolve determines the best language tag for the request.
// The bool indicates whether the lang query param should be persisted as a cookie.
func (lr *LocaleResolver) Resolve(r *http.Request) (language.Tag, bool) {
	if r == nil {
		return lr.fallback, false
	}

	if langValue := strings.TrimSpace(r.URL.Query().Get(LangParam)); langValue != "" {
		if tag, ok := lr.parse(langValue); ok {
			return tag, true
		}
	}

	if cookie, err := r.Cookie(LangCookieName); err == nil {
		if tag, ok := lr.parse(cookie.Value); ok {
			return tag, false
		}
	}

	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil {
			_, index, _ := lr.matcher.Match(tags...)
			return lr.supported[index], false
		}
	}

	return lr.fallback, false
}

// SetLocaleCookie persists the selected language on the response.
func (lr *LocaleResolver) SetLocaleCookie(w http.ResponseWriter, tag language.Tag) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookieName,
		Value:    tag.String(),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

// parse coerces a raw tag value to a supported tag.
func (lr *LocaleResolver) parse(value string) (language.Tag, bool) {
	tag, err := language.Parse(strings.TrimSpace(value))
	if err != nil {
		return language.Und, false
	}
	_, index, conf := lr.matcher.Match(tag)
	if conf == language.No {
		return language.Und, false
	}
	return lr.supported[index], true
}
