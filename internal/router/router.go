// Package router wires the HTML interface of the savings tracker: login and
// sign up for anonymous sessions, goal management for authenticated ones.
// Every POST answers with 303 See Other so the following GET renders a fresh view.
package router

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/patric-chuzhbe/savetrack/internal/auth"
	"github.com/patric-chuzhbe/savetrack/internal/gzippedhttp"
	"github.com/patric-chuzhbe/savetrack/internal/logger"
	"github.com/patric-chuzhbe/savetrack/internal/models"
	"github.com/patric-chuzhbe/savetrack/internal/session"
)

type credentialsService interface {
	Register(ctx context.Context, username, password string) error
	Verify(ctx context.Context, username, password string) (bool, error)
}

type goalsService interface {
	LoadGoals(ctx context.Context, username string) ([]models.Goal, error)
	Overview(ctx context.Context, username string) ([]models.GoalView, models.Summary, error)
	AddGoal(ctx context.Context, username, name string, target, saved float64) (models.Goal, error)
	EditGoal(ctx context.Context, username, id, name string, target, saved float64) error
	UpdateSavings(ctx context.Context, username, id string, saved float64) error
	DeleteGoal(ctx context.Context, username, id string) (models.Goal, error)
}

type trackerService interface {
	credentialsService
	goalsService
}

type authenticator interface {
	LoadSession(h http.Handler) http.Handler
	RequireAuthenticated(h http.Handler) http.Handler
	RequireAnonymous(h http.Handler) http.Handler
}

// Router handles the HTML pages and form submissions.
type Router struct {
	svc   trackerService
	views *views
}

// New builds the chi mux serving the whole interface.
func New(svc trackerService, authMiddleware authenticator, currencySymbol string) (*chi.Mux, error) {
	theViews, err := newViews(currencySymbol)
	if err != nil {
		return nil, err
	}

	r := &Router{
		svc:   svc,
		views: theViews,
	}

	router := chi.NewRouter()
	router.Use(logger.WithLoggingHTTPMiddleware)
	router.Use(gzippedhttp.GzipResponse)
	router.Use(authMiddleware.LoadSession)

	router.Get(`/`, r.GetRoot)

	router.Group(func(anonymous chi.Router) {
		anonymous.Use(authMiddleware.RequireAnonymous)
		anonymous.Get(`/login`, r.GetLogin)
		anonymous.Post(`/login`, r.PostLogin)
		anonymous.Post(`/signup`, r.PostSignup)
	})

	router.Group(func(authenticated chi.Router) {
		authenticated.Use(authMiddleware.RequireAuthenticated)
		authenticated.Post(`/logout`, r.PostLogout)
		authenticated.Get(`/goals`, r.GetGoals)
		authenticated.Post(`/goals`, r.PostGoals)
		authenticated.Get(`/goals/new`, r.GetNewGoal)
		authenticated.Get(`/goals/edit`, r.GetEditGoal)
		authenticated.Post(`/goals/{id}/edit`, r.PostEditGoal)
		authenticated.Get(`/goals/delete`, r.GetDeleteGoal)
		authenticated.Post(`/goals/{id}/delete`, r.PostDeleteGoal)
		authenticated.Get(`/goals/savings`, r.GetSavings)
		authenticated.Post(`/goals/{id}/savings`, r.PostSavings)
	})

	return router, nil
}

func (r *Router) serverError(response http.ResponseWriter, request *http.Request, err error) {
	logger.Log.Errorw("request handling failed",
		"uri", request.RequestURI,
		"method", request.Method,
		"error", err,
	)
	http.Error(response, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (r *Router) seeOther(response http.ResponseWriter, request *http.Request, location string) {
	http.Redirect(response, request, location, http.StatusSeeOther)
}

func (r *Router) render(response http.ResponseWriter, request *http.Request, sess *session.Session, page string, data *pageData) {
	data.Username = sess.Username()
	data.Flashes = sess.PopFlashes()

	if err := r.views.render(response, page, data); err != nil {
		r.serverError(response, request, err)
	}
}

func currentSession(request *http.Request) (*session.Session, error) {
	sess, ok := auth.FromContext(request.Context())
	if !ok {
		return nil, auth.ErrNoSession
	}

	return sess, nil
}

// amountError reports a form field that is not a number.
type amountError struct {
	label string
	err   error
}

func (e *amountError) Error() string {
	return e.label + " must be a number"
}

func (e *amountError) Unwrap() error {
	return e.err
}

// parseAmount reads a money field. An empty field is zero; range checks belong to the service.
func parseAmount(request *http.Request, field, label string) (float64, error) {
	raw := strings.TrimSpace(request.PostFormValue(field))
	if raw == "" {
		return 0, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &amountError{label: label, err: err}
	}

	return value, nil
}

func goalLocation(base, id string) string {
	if id == "" {
		return base
	}

	return base + "?" + url.Values{"id": []string{id}}.Encode()
}

// selectGoal picks the goal with the requested ID, falling back to the first one.
func selectGoal(goals []models.Goal, id string) models.Goal {
	for _, goal := range goals {
		if goal.ID == id {
			return goal
		}
	}
	if len(goals) == 0 {
		return models.Goal{}
	}

	return goals[0]
}

// GetRoot sends clients to their landing page.
func (r *Router) GetRoot(response http.ResponseWriter, request *http.Request) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	if sess.IsAuthenticated() {
		r.seeOther(response, request, auth.HomePath)
		return
	}
	r.seeOther(response, request, auth.LoginPath)
}

// GetLogin renders the Login and Sign Up tabs.
func (r *Router) GetLogin(response http.ResponseWriter, request *http.Request) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	r.render(response, request, sess, pageLogin, &pageData{
		Title: "Login",
		Tab:   request.URL.Query().Get("tab"),
	})
}

// PostLogin checks the submitted credentials and authenticates the session.
func (r *Router) PostLogin(response http.ResponseWriter, request *http.Request) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	username := strings.TrimSpace(request.PostFormValue("username"))
	ok, err := r.svc.Verify(request.Context(), username, request.PostFormValue("password"))
	if err != nil {
		r.serverError(response, request, err)
		return
	}
	if !ok {
		sess.AddFlash(session.FlashError, "Invalid credentials")
		r.seeOther(response, request, auth.LoginPath)
		return
	}

	// Login always moves the client to a new session ID; the old one is forgotten.
	sess, err = auth.Renew(request.Context())
	if err != nil {
		r.serverError(response, request, err)
		return
	}
	if err := sess.Login(username); err != nil {
		r.serverError(response, request, err)
		return
	}
	logger.Log.Infow("user logged in", "username", username)

	r.seeOther(response, request, auth.HomePath)
}

// PostSignup registers a new account. The session stays ANONYMOUS.
func (r *Router) PostSignup(response http.ResponseWriter, request *http.Request) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	username := strings.TrimSpace(request.PostFormValue("username"))
	err = r.svc.Register(request.Context(), username, request.PostFormValue("password"))
	switch {
	case errors.Is(err, models.ErrUserExists):
		sess.AddFlash(session.FlashError, "Username already exists")
		r.seeOther(response, request, auth.LoginPath+"?tab=signup")
	case errors.Is(err, models.ErrInvalidCredentialsInput):
		sess.AddFlash(session.FlashError, err.Error())
		r.seeOther(response, request, auth.LoginPath+"?tab=signup")
	case err != nil:
		r.serverError(response, request, err)
	default:
		logger.Log.Infow("user registered", "username", username)
		sess.AddFlash(session.FlashSuccess, "Account created! Please login")
		r.seeOther(response, request, auth.LoginPath)
	}
}

// PostLogout returns the session to ANONYMOUS.
func (r *Router) PostLogout(response http.ResponseWriter, request *http.Request) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	if err := sess.Logout(); err != nil {
		r.serverError(response, request, err)
		return
	}

	r.seeOther(response, request, auth.LoginPath)
}

// GetGoals renders the goals table with progress and totals.
func (r *Router) GetGoals(response http.ResponseWriter, request *http.Request) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	goalViews, summary, err := r.svc.Overview(request.Context(), sess.Username())
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	r.render(response, request, sess, pageGoals, &pageData{
		Title:   "View Goals",
		Menu:    pageGoals,
		Views:   goalViews,
		Summary: summary,
	})
}

// GetNewGoal renders the Add Goal form.
func (r *Router) GetNewGoal(response http.ResponseWriter, request *http.Request) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	r.render(response, request, sess, pageNew, &pageData{
		Title: "Add Goal",
		Menu:  pageNew,
	})
}

// PostGoals appends the submitted goal.
func (r *Router) PostGoals(response http.ResponseWriter, request *http.Request) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	target, err := parseAmount(request, "target", "Target")
	if err == nil {
		var saved float64
		saved, err = parseAmount(request, "saved", "Saved")
		if err == nil {
			_, err = r.svc.AddGoal(request.Context(), sess.Username(), request.PostFormValue("name"), target, saved)
		}
	}

	if !r.handleGoalError(response, request, sess, err, "/goals/new") {
		return
	}

	sess.AddFlash(session.FlashSuccess, "Goal added!")
	r.seeOther(response, request, "/goals/new")
}

// handleGoalError turns a rejected form into a flash message and a redirect
// back to the form. It returns true when err is nil and the handler may go on.
func (r *Router) handleGoalError(
	response http.ResponseWriter,
	request *http.Request,
	sess *session.Session,
	err error,
	formLocation string,
) bool {
	if err == nil {
		return true
	}

	var numErr *amountError
	switch {
	case errors.As(err, &numErr), errors.Is(err, models.ErrInvalidGoal):
		sess.AddFlash(session.FlashError, err.Error())
		r.seeOther(response, request, formLocation)
	case errors.Is(err, models.ErrGoalNotFound):
		sess.AddFlash(session.FlashError, "Goal not found")
		r.seeOther(response, request, strings.SplitN(formLocation, "?", 2)[0])
	default:
		r.serverError(response, request, err)
	}

	return false
}

func (r *Router) renderGoalSelection(
	response http.ResponseWriter,
	request *http.Request,
	page string,
	title string,
) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	goals, err := r.svc.LoadGoals(request.Context(), sess.Username())
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	r.render(response, request, sess, page, &pageData{
		Title:    title,
		Menu:     page,
		Goals:    goals,
		Selected: selectGoal(goals, request.URL.Query().Get("id")),
	})
}

// GetEditGoal renders the goal selector with the edit form of the selected goal.
func (r *Router) GetEditGoal(response http.ResponseWriter, request *http.Request) {
	r.renderGoalSelection(response, request, pageEdit, "Edit Goal")
}

// PostEditGoal replaces name, target and saved amount of a goal.
func (r *Router) PostEditGoal(response http.ResponseWriter, request *http.Request) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	id := chi.URLParam(request, "id")
	target, err := parseAmount(request, "target", "Target")
	if err == nil {
		var saved float64
		saved, err = parseAmount(request, "saved", "Saved")
		if err == nil {
			err = r.svc.EditGoal(request.Context(), sess.Username(), id, request.PostFormValue("name"), target, saved)
		}
	}

	location := goalLocation("/goals/edit", id)
	if !r.handleGoalError(response, request, sess, err, location) {
		return
	}

	sess.AddFlash(session.FlashSuccess, "Goal updated!")
	r.seeOther(response, request, location)
}

// GetDeleteGoal renders the goal selector with the delete button.
func (r *Router) GetDeleteGoal(response http.ResponseWriter, request *http.Request) {
	r.renderGoalSelection(response, request, pageDelete, "Delete Goal")
}

// PostDeleteGoal removes a goal.
func (r *Router) PostDeleteGoal(response http.ResponseWriter, request *http.Request) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	removed, err := r.svc.DeleteGoal(request.Context(), sess.Username(), chi.URLParam(request, "id"))
	if !r.handleGoalError(response, request, sess, err, "/goals/delete") {
		return
	}

	sess.AddFlash(session.FlashWarning, "Deleted goal: "+removed.Name)
	r.seeOther(response, request, "/goals/delete")
}

// GetSavings renders the goal selector with the saved amount form.
func (r *Router) GetSavings(response http.ResponseWriter, request *http.Request) {
	r.renderGoalSelection(response, request, pageSavings, "Update Savings")
}

// PostSavings changes the saved amount of a goal.
func (r *Router) PostSavings(response http.ResponseWriter, request *http.Request) {
	sess, err := currentSession(request)
	if err != nil {
		r.serverError(response, request, err)
		return
	}

	id := chi.URLParam(request, "id")
	saved, err := parseAmount(request, "saved", "Saved amount")
	if err == nil {
		err = r.svc.UpdateSavings(request.Context(), sess.Username(), id, saved)
	}

	location := goalLocation("/goals/savings", id)
	if !r.handleGoalError(response, request, sess, err, location) {
		return
	}

	sess.AddFlash(session.FlashSuccess, "Savings updated!")
	r.seeOther(response, request, location)
}
