package upstream

import (
	"net/http"
	"net/url"
)

// CSRFSource supplies the CSRF header for requests to the check-in API.
type CSRFSource interface {
	Token(target *url.URL) (header, value string, ok bool)
}

// StaticToken is a token taken from configuration, the equivalent of the
// csrf-token meta tag.
type StaticToken string

// Token returns the configured token as X-CSRF-TOKEN.
func (t StaticToken) Token(*url.URL) (string, string, bool) {
	if t == "" {
		return "", "", false
	}
	return "X-CSRF-TOKEN", string(t), true
}

// CookieToken echoes the token cookie set by the API as X-XSRF-TOKEN.
type CookieToken struct {
	Jar  http.CookieJar
	Name string
}

// Token looks the cookie up for target.
func (t CookieToken) Token(target *url.URL) (string, string, bool) {
	if t.Jar == nil || t.Name == "" {
		return "", "", false
	}
	for _, cookie := range t.Jar.Cookies(target) {
		if cookie.Name != t.Name {
			continue
		}
		value, err := url.QueryUnescape(cookie.Value)
		if err != nil {
			value = cookie.Value
		}
		return "X-XSRF-TOKEN", value, true
	}
	return "", "", false
}
