package oauth

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/giantswarm/oauth-core/security"
)

// pageStyle is shared by the login and error pages. The page CSP allows
// inline styles and nothing else.
const pageStyle = `<style>
      body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f4f5f7; margin: 0; }
      main { max-width: 360px; margin: 10vh auto; background: #fff; padding: 2rem; border-radius: 8px; box-shadow: 0 1px 4px rgba(0,0,0,0.1); }
      h1 { font-size: 1.4rem; margin-top: 0; }
      label { display: block; margin-top: 1rem; font-size: 0.9rem; }
      input[type=text], input[type=password] { width: 100%; box-sizing: border-box; padding: 0.5rem; margin-top: 0.25rem; }
      button { margin-top: 1.5rem; width: 100%; padding: 0.6rem; background: #2f6fdb; color: #fff; border: 0; border-radius: 4px; font-size: 1rem; }
      .error { color: #b00020; }
    </style>`

const loginPageTemplate = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Login</title>
    {{.Style}}
  </head>
  <body>
    <main>
      <h1>User Login</h1>
      {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
      <form method="post" action="{{.Action}}">
        <label for="username">Email</label>
        <input type="text" id="username" name="username" autocomplete="username" required autofocus>
        <label for="password">Password</label>
        <input type="password" id="password" name="password" autocomplete="current-password" required>
        <input type="hidden" name="login_id" value="{{.LoginID}}">
        <button type="submit">Log in</button>
      </form>
    </main>
  </body>
</html>
`

const errorPageTemplate = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Error</title>
    {{.Style}}
  </head>
  <body>
    <main>
      <h1>Error</h1>
      <p>{{.Message}}</p>
    </main>
  </body>
</html>
`

var (
	loginPageTmpl = template.Must(template.New("login").Parse(loginPageTemplate))
	errorPageTmpl = template.Must(template.New("error").Parse(errorPageTemplate))
)

type loginPageData struct {
	Style   template.HTML
	Action  string
	LoginID string
	Error   string
}

type errorPageData struct {
	Style   template.HTML
	Message string
}

// renderPage executes tmpl into a buffer first so a failing template never
// produces a partial response
func (h *Handler) renderPage(w http.ResponseWriter, tmpl *template.Template, status int, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		h.logger.Error("Failed to render page", "template", tmpl.Name(), "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	security.SetPageSecurityHeaders(w, h.server.Core.Config.Issuer)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) renderLoginPage(w http.ResponseWriter, loginID, flash string) {
	h.renderPage(w, loginPageTmpl, http.StatusOK, loginPageData{
		Style:   template.HTML(pageStyle), //nolint:gosec // static stylesheet
		Action:  loginPath,
		LoginID: loginID,
		Error:   flash,
	})
}

func (h *Handler) renderErrorPage(w http.ResponseWriter, status int, message string) {
	h.renderPage(w, errorPageTmpl, status, errorPageData{
		Style:   template.HTML(pageStyle), //nolint:gosec // static stylesheet
		Message: message,
	})
}

// ====== Flash messages ======

const (
	// flashCookieName carries a one-shot message from POST /login to the
	// next GET /authorize
	flashCookieName = "oauth_flash"

	flashMaxAge = 60 // seconds

	flashInvalidCredentials = "invalid_credentials"
)

// flashMessages maps flash keys to display text. The cookie only ever
// carries a key, so a forged cookie cannot inject arbitrary text.
var flashMessages = map[string]string{
	flashInvalidCredentials: "Invalid username or password",
}

func (h *Handler) setFlash(w http.ResponseWriter, key string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

// takeFlash returns the pending flash message, if any, and clears the cookie
func (h *Handler) takeFlash(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})

	return flashMessages[cookie.Value]
}
