package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/text/language"
)

func testLocaleResolver() *LocaleResolver {
	return NewLocaleResolver(language.AmericanEnglish, language.BrazilianPortuguese)
}

func TestResolveQueryParam(t *testing.T) {
	t.Parallel()

	lr := testLocaleResolver()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/?lang=pt-BR", nil)

	tag, persist := lr.Resolve(req)
	if tag != language.BrazilianPortuguese {
		t.Fatalf("tag = %v, want %v", tag, language.BrazilianPortuguese)
	}
	if !persist {
		t.Fatal("persist = false, want true")
	}
}

func TestResolveUnknownQueryParamFallsThrough(t *testing.T) {
	t.Parallel()

	lr := testLocaleResolver()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/?lang=zz-not-a-tag", nil)

	tag, persist := lr.Resolve(req)
	if tag != language.AmericanEnglish {
		t.Fatalf("tag = %v, want %v", tag, language.AmericanEnglish)
	}
	if persist {
		t.Fatal("persist = true, want false")
	}
}

func TestResolveCookie(t *testing.T) {
	t.Parallel()

	lr := testLocaleResolver()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.AddCookie(&http.Cookie{Name: LangCookieName, Value: "pt-BR"})

	tag, persist := lr.Resolve(req)
	if tag != language.BrazilianPortuguese {
		t.Fatalf("tag = %v, want %v", tag, language.BrazilianPortuguese)
	}
	if persist {
		t.Fatal("persist = true, want false")
	}
}

func TestResolveAcceptLanguage(t *testing.T) {
	t.Parallel()

	lr := testLocaleResolver()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")

	tag, _ := lr.Resolve(req)
	if tag != language.BrazilianPortuguese {
		t.Fatalf("tag = %v, want %v", tag, language.BrazilianPortuguese)
	}
}

func TestResolveDefault(t *testing.T) {
	t.Parallel()

	lr := testLocaleResolver()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)

	tag, persist := lr.Resolve(req)
	if tag != language.AmericanEnglish {
		t.Fatalf("tag = %v, want %v", tag, language.AmericanEnglish)
	}
	if persist {
		t.Fatal("persist = true, want false")
	}

	if tag, _ := lr.Resolve(nil); tag != language.AmericanEnglish {
		t.Fatalf("tag for nil request = %v, want %v", tag, language.AmericanEnglish)
	}
}

func TestQueryParamBeatsCookie(t *testing.T) {
	t.Parallel()

	lr := testLocaleResolver()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/?lang=en-US", nil)
	req.AddCookie(&http.Cookie{Name: LangCookieName, Value: "pt-BR"})

	tag, persist := lr.Resolve(req)
	if tag != language.AmericanEnglish {
		t.Fatalf("tag = %v, want %v", tag, language.AmericanEnglish)
	}
	if !persist {
		t.Fatal("persist = false, want true")
	}
}

func TestSetLocaleCookie(t *testing.T) {
	t.Parallel()

	lr := testLocaleResolver()
	rr := httptest.NewRecorder()
	lr.SetLocaleCookie(rr, language.BrazilianPortuguese)

	cookie, err := parseSetCookie(rr.Header().Get("Set-Cookie"))
	if err != nil {
		t.Fatalf("ParseSetCookie() error = %v", err)
	}
	if cookie.Name != LangCookieName {
		t.Fatalf("cookie name = %q, want %q", cookie.Name, LangCookieName)
	}
	if cookie.Value != "pt-BR" {
		t.Fatalf("cookie value = %q, want %q", cookie.Value, "pt-BR")
	}
	if cookie.MaxAge <= 0 {
		t.Fatalf("cookie max-age = %d, want > 0", cookie.MaxAge)
	}
}
