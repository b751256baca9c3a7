package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

var (
	supportedTags = []language.Tag{language.English, language.Russian}
	matcher       = language.NewMatcher(supportedTags)
)

// Middleware picks the tutor language per request. An explicit "lang" query
// parameter wins, then Accept-Language, then the server default.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := requestLang(r, defaultLang)
			ctx := WithLang(r.Context(), lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestLang(r *http.Request, defaultLang string) string {
	if q := r.URL.Query().Get("lang"); q != "" {
		return q
	}
	accept := r.Header.Get("Accept-Language")
	if accept == "" {
		return defaultLang
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return defaultLang
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return defaultLang
	}
	base, _ := supportedTags[idx].Base()
	return base.String()
}
