package web

import (
	"embed"
	"html/template"
	"net/http"

	"studycal/internal/bucket"
	"studycal/internal/dashboard"
	appLog "studycal/internal/log"
)

//go:embed templates/*.html
var templateFS embed.FS

var weekTmpl = template.Must(template.New("week.html").Funcs(template.FuncMap{
	"weekday": func(d bucket.Date) string { return d.Weekday().String()[:3] },
}).ParseFS(templateFS, "templates/week.html"))

// handleWeekPage renders the week grid as a self-contained HTML page. The
// snapshot command captures it, waiting for the data-ready root.
func (s *Server) handleWeekPage(w http.ResponseWriter, r *http.Request) {
	date, ok := queryDate(w, r)
	if !ok {
		return
	}
	cal, err := s.dash.Calendar(r.Context(), userFrom(r.Context()), dashboard.ViewWeek, date)
	if err != nil {
		storeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := weekTmpl.Execute(w, cal); err != nil {
		appLog.Error("render week page", err)
	}
}
