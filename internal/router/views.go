package router

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/patric-chuzhbe/savetrack/internal/models"
	"github.com/patric-chuzhbe/savetrack/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Page names, one per file under templates/ besides the shared ones.
const (
	pageLogin   = "login"
	pageGoals   = "goals"
	pageNew     = "new"
	pageEdit    = "edit"
	pageDelete  = "delete"
	pageSavings = "savings"
)

const noProgress = "—"

type pageData struct {
	Title    string
	Menu     string
	Tab      string
	Username string
	Currency string
	Flashes  []session.Flash

	Views   []models.GoalView
	Summary models.Summary

	Goals    []models.Goal
	Selected models.Goal
}

type selectorData struct {
	Action   string
	Label    string
	Goals    []models.Goal
	Selected models.Goal
}

type views struct {
	pages          map[string]*template.Template
	printer        *message.Printer
	currencySymbol string
}

func newViews(currencySymbol string) (*views, error) {
	v := &views{
		pages:          make(map[string]*template.Template),
		printer:        message.NewPrinter(language.English),
		currencySymbol: currencySymbol,
	}

	funcs := template.FuncMap{
		"money":    v.money,
		"amount":   amount,
		"progress": v.progress,
		"selector": selector,
	}

	for _, page := range []string{pageLogin, pageGoals, pageNew, pageEdit, pageDelete, pageSavings} {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(
			templatesFS,
			"templates/layout.html",
			"templates/select.html",
			"templates/"+page+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("in internal/router/views.go/newViews(): error while parsing %q page: %w", page, err)
		}
		v.pages[page] = tmpl
	}

	return v, nil
}

// money renders an amount as "₱1,234.56".
func (v *views) money(value float64) string {
	if value < 0 {
		return "-" + v.currencySymbol + v.printer.Sprintf("%.2f", -value)
	}

	return v.currencySymbol + v.printer.Sprintf("%.2f", value)
}

func (v *views) progress(goal models.GoalView) string {
	if !goal.HasProgress {
		return noProgress
	}

	return v.printer.Sprintf("%.2f", goal.Progress)
}

// amount is the plain form of value accepted back by number inputs.
// The shortest exact representation is used so an unchanged field posts the stored value back.
func amount(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func selector(data *pageData, action, label string) selectorData {
	return selectorData{
		Action:   action,
		Label:    label,
		Goals:    data.Goals,
		Selected: data.Selected,
	}
}

func (v *views) render(response http.ResponseWriter, page string, data *pageData) error {
	tmpl, ok := v.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	data.Currency = v.currencySymbol

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("in internal/router/views.go/render(): error while `tmpl.ExecuteTemplate()` calling: %w", err)
	}

	response.Header().Set("Content-Type", "text/html; charset=utf-8")
	response.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(response)

	return err
}
