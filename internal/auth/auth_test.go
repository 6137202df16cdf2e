package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/savetrack/internal/logger"
	"github.com/patric-chuzhbe/savetrack/internal/session"
)

const testCookieName = "session"

var testSecret = []byte("test-secret")

func setupAuth(t *testing.T) (*Auth, *session.Manager) {
	t.Helper()
	require.NoError(t, logger.Init("debug"))
	manager := session.NewManager()

	return New(manager, testCookieName, testSecret), manager
}

func sessionEcho(t *testing.T, seen **session.Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := FromContext(r.Context())
		require.True(t, ok)
		*seen = sess
		w.WriteHeader(http.StatusOK)
	})
}

func TestLoadSessionDoesNotStoreBlankSessions(t *testing.T) {
	theAuth, manager := setupAuth(t)

	var seen *session.Session
	handler := theAuth.LoadSession(sessionEcho(t, &seen))

	for i := 0; i < 3; i++ {
		response := httptest.NewRecorder()
		handler.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotNil(t, seen)
		assert.False(t, seen.IsAuthenticated())
		assert.Empty(t, response.Result().Cookies())
	}
	assert.Equal(t, 0, manager.Len())
}

func TestLoadSessionStoresSessionWithFlash(t *testing.T) {
	theAuth, manager := setupAuth(t)

	var seen *session.Session
	handler := theAuth.LoadSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = sess
		sess.AddFlash(session.FlashError, "Invalid credentials")
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
	}))

	response := httptest.NewRecorder()
	handler.ServeHTTP(response, httptest.NewRequest(http.MethodPost, "/login", nil))

	assert.Equal(t, http.StatusSeeOther, response.Code)
	assert.Equal(t, 1, manager.Len())

	cookies := response.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	sessionID, err := theAuth.GetSessionIDFromToken(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, seen.ID, sessionID)

	stored, err := manager.Get(sessionID)
	require.NoError(t, err)
	assert.Same(t, seen, stored)
}

func TestRenew(t *testing.T) {
	theAuth, manager := setupAuth(t)
	existing := manager.New()
	existing.AddFlash(session.FlashInfo, "carried over")

	token, err := theAuth.BuildJWTString(&Claims{SessionID: existing.ID})
	require.NoError(t, err)

	var renewed *session.Session
	handler := theAuth.LoadSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := Renew(r.Context())
		require.NoError(t, err)
		require.NoError(t, sess.Login("alice"))
		renewed = sess
		http.Redirect(w, r, HomePath, http.StatusSeeOther)
	}))

	request := httptest.NewRequest(http.MethodPost, "/login", nil)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
	response := httptest.NewRecorder()
	handler.ServeHTTP(response, request)

	require.NotNil(t, renewed)
	assert.NotEqual(t, existing.ID, renewed.ID)

	_, err = manager.Get(existing.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound, "the old ID is forgotten")
	assert.False(t, existing.IsAuthenticated())

	cookies := response.Result().Cookies()
	require.Len(t, cookies, 1)
	sessionID, err := theAuth.GetSessionIDFromToken(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, renewed.ID, sessionID)

	stored, err := manager.Get(sessionID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username())
	assert.Equal(t, []session.Flash{{Kind: session.FlashInfo, Text: "carried over"}}, stored.PopFlashes())
}

func TestRenewWithoutSession(t *testing.T) {
	_, err := Renew(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLoadSessionReusesSession(t *testing.T) {
	theAuth, manager := setupAuth(t)
	existing := manager.New()
	require.NoError(t, existing.Login("alice"))

	token, err := theAuth.BuildJWTString(&Claims{SessionID: existing.ID})
	require.NoError(t, err)

	var seen *session.Session
	handler := theAuth.LoadSession(sessionEcho(t, &seen))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
	response := httptest.NewRecorder()
	handler.ServeHTTP(response, request)

	assert.Same(t, existing, seen)
	assert.Empty(t, response.Result().Cookies(), "a valid cookie is not reissued")
	assert.Equal(t, 1, manager.Len())
}

func TestLoadSessionRejectsForeignToken(t *testing.T) {
	theAuth, manager := setupAuth(t)
	existing := manager.New()

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{SessionID: existing.ID})
	forgedString, err := forged.SignedString([]byte("another-secret"))
	require.NoError(t, err)

	var seen *session.Session
	handler := theAuth.LoadSession(sessionEcho(t, &seen))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: forgedString})
	handler.ServeHTTP(httptest.NewRecorder(), request)

	assert.NotEqual(t, existing.ID, seen.ID)
	assert.Equal(t, 1, manager.Len())
}

func TestGuards(t *testing.T) {
	theAuth, manager := setupAuth(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	anonymous := manager.New()
	authenticated := manager.New()
	require.NoError(t, authenticated.Login("alice"))

	tests := []struct {
		name         string
		guard        func(http.Handler) http.Handler
		sess         *session.Session
		wantStatus   int
		wantLocation string
	}{
		{name: "authenticated only, anonymous client", guard: theAuth.RequireAuthenticated, sess: anonymous, wantStatus: http.StatusSeeOther, wantLocation: LoginPath},
		{name: "authenticated only, logged in client", guard: theAuth.RequireAuthenticated, sess: authenticated, wantStatus: http.StatusOK},
		{name: "anonymous only, anonymous client", guard: theAuth.RequireAnonymous, sess: anonymous, wantStatus: http.StatusOK},
		{name: "anonymous only, logged in client", guard: theAuth.RequireAnonymous, sess: authenticated, wantStatus: http.StatusSeeOther, wantLocation: HomePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := theAuth.BuildJWTString(&Claims{SessionID: tt.sess.ID})
			require.NoError(t, err)

			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
			response := httptest.NewRecorder()

			theAuth.LoadSession(tt.guard(ok)).ServeHTTP(response, request)

			assert.Equal(t, tt.wantStatus, response.Code)
			assert.Equal(t, tt.wantLocation, response.Header().Get("Location"))
			assert.Contains(t, response.Header().Get("Cache-Control"), "no-store")
		})
	}
}
