// Package auth binds UI clients to their in-memory sessions. The session ID
// travels in a cookie holding an HS256-signed JWT.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/savetrack/internal/logger"
	"github.com/patric-chuzhbe/savetrack/internal/session"
)

// Auth resolves the Session of every request and guards routes by session state.
type Auth struct {
	// sessions is the in-memory session registry.
	sessions *session.Manager

	// cookieName is the name of the cookie used to store the JWT.
	cookieName string

	// signingSecretKey is the key used to sign JWTs.
	signingSecretKey []byte
}

// Claims represents the JWT claims stored in the session cookie.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// SessionKey is the context key under which LoadSession stores the request's session binding.
const SessionKey ContextKey = "session"

// Paths the guards redirect to.
const (
	LoginPath = "/login"
	HomePath  = "/goals"
)

// New creates a new Auth handler with the given session registry,
// cookie name, and JWT signing secret.
func New(
	sessions *session.Manager,
	cookieName string,
	signingSecretKey []byte,
) *Auth {
	return &Auth{
		sessions:         sessions,
		cookieName:       cookieName,
		signingSecretKey: signingSecretKey,
	}
}

// ErrNoSession is returned when the request did not pass through LoadSession.
var ErrNoSession = errors.New("request carries no session")

// binding ties the Session of one request to the client's cookie.
type binding struct {
	sessions *session.Manager
	sess     *session.Session

	// issued is set once the client's cookie names sess.
	issued    bool
	committed bool
}

// sessionResponseWriter issues the session cookie right before the headers go out.
type sessionResponseWriter struct {
	http.ResponseWriter
	commit func()
}

// WriteHeader issues the cookie and sends the status code.
func (w *sessionResponseWriter) WriteHeader(statusCode int) {
	w.commit()
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write issues the cookie and writes the body.
func (w *sessionResponseWriter) Write(data []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(data)
}

// FromContext returns the Session stored by LoadSession.
func FromContext(ctx context.Context) (*session.Session, bool) {
	b, ok := ctx.Value(SessionKey).(*binding)
	if !ok || b == nil {
		return nil, false
	}

	return b.sess, true
}

// Renew replaces the request's Session with a fresh ANONYMOUS one under a new ID
// and forgets the old ID. Queued flashes move to the new session.
// The cookie naming it goes out with the response.
func Renew(ctx context.Context) (*session.Session, error) {
	b, ok := ctx.Value(SessionKey).(*binding)
	if !ok || b == nil {
		return nil, ErrNoSession
	}

	fresh := b.sessions.Draft()
	for _, flash := range b.sess.PopFlashes() {
		fresh.AddFlash(flash.Kind, flash.Text)
	}
	if b.issued {
		b.sessions.Delete(b.sess.ID)
	}
	b.sess = fresh
	b.issued = false

	return fresh, nil
}

// LoadSession is an HTTP middleware that puts the client's Session into the
// request context. Clients without a valid cookie, or whose session is gone
// after a restart, get a fresh ANONYMOUS session. It is registered and sent
// as a cookie only once it holds something: a login or a queued flash.
func (a *Auth) LoadSession(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		b := &binding{sessions: a.sessions}

		sess, err := a.sessions.Get(a.getSessionIDFromCookie(request))
		if err == nil {
			b.sess = sess
			b.issued = true
		} else {
			b.sess = a.sessions.Draft()
		}

		writer := &sessionResponseWriter{ResponseWriter: response}
		writer.commit = func() {
			if b.committed {
				return
			}
			b.committed = true

			if err := a.issue(response, b); err != nil {
				logger.Log.Errorw("session cookie was not issued", "error", err)
			}
		}

		ctx := context.WithValue(request.Context(), SessionKey, b)
		h.ServeHTTP(writer, request.WithContext(ctx))
		writer.commit()
	}

	return http.HandlerFunc(middleware)
}

func (a *Auth) issue(response http.ResponseWriter, b *binding) error {
	if b.issued || b.sess.IsBlank() {
		return nil
	}

	JWTString, err := a.BuildJWTString(&Claims{SessionID: b.sess.ID})
	if err != nil {
		return fmt.Errorf("in internal/auth/auth.go/issue(): error while `a.BuildJWTString()` calling: %w", err)
	}

	a.sessions.Store(b.sess)
	b.issued = true

	http.SetCookie(
		response,
		&http.Cookie{
			Name:     a.cookieName,
			Value:    JWTString,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	)

	return nil
}

func setNoCacheHeaders(response http.ResponseWriter) {
	response.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	response.Header().Set("Pragma", "no-cache")
	response.Header().Set("Expires", "0")
}

// RequireAuthenticated redirects ANONYMOUS sessions to the login page.
func (a *Auth) RequireAuthenticated(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		setNoCacheHeaders(response)

		sess, ok := FromContext(request.Context())
		if !ok || !sess.IsAuthenticated() {
			http.Redirect(response, request, LoginPath, http.StatusSeeOther)
			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}

// RequireAnonymous redirects AUTHENTICATED sessions to the goals page.
func (a *Auth) RequireAnonymous(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		setNoCacheHeaders(response)

		sess, ok := FromContext(request.Context())
		if ok && sess.IsAuthenticated() {
			http.Redirect(response, request, HomePath, http.StatusSeeOther)
			return
		}

		h.ServeHTTP(response, request)
	}

	return http.HandlerFunc(middleware)
}

func (a *Auth) getSessionIDFromCookie(request *http.Request) string {
	cookie, err := request.Cookie(a.cookieName)
	if err != nil {
		return ""
	}

	sessionID, err := a.GetSessionIDFromToken(cookie.Value)
	if err != nil {
		logger.Log.Debugln("Rejected session cookie: ", zap.Error(err))
		return ""
	}

	return sessionID
}

// GetSessionIDFromToken validates tokenString and returns the session ID it carries.
func (a *Auth) GetSessionIDFromToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.signingSecretKey, nil
		},
	)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	return claims.SessionID, nil
}

// BuildJWTString signs claims with the configured secret.
func (a *Auth) BuildJWTString(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, *claims)

	tokenString, err := token.SignedString(a.signingSecretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}
