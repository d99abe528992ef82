package web

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	appLog "pcal/internal/log"
	"pcal/internal/view"
)

// calendarTmpl renders one month. The root carries data-ready="true" once
// everything is in the DOM so headless snapshots know when to shoot.
var calendarTmpl = template.Must(template.New("calendar").Funcs(template.FuncMap{
	"short": func(wd time.Weekday) string { return strings.ToUpper(wd.String()[:3]) },
	"clock": func(t time.Time) string { return t.Format("15:04") },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 24px; }
h1 { font-size: 28px; margin: 0 0 16px; }
nav a { margin-right: 12px; }
table { border-collapse: collapse; width: 100%; table-layout: fixed; }
th { padding: 6px; border-bottom: 2px solid #000; }
td { vertical-align: top; height: 110px; border: 1px solid #999; padding: 4px; }
td.blank { background: #eee; }
td .day { font-weight: bold; }
td.busy .day::after { content: " *"; }
ul { list-style: none; padding: 0; margin: 4px 0 0; font-size: 12px; }
li.moved { font-style: italic; }
</style>
</head>
<body>
<main id="calendar" data-ready="true">
<h1>{{.Title}}</h1>
<nav><a href="{{.PrevURL}}">&larr; prev</a><a href="{{.NextURL}}">next &rarr;</a></nav>
<table>
<thead><tr>{{range .Grid.Weekdays}}<th>{{short .}}</th>{{end}}</tr></thead>
<tbody>
{{range .Grid.Weeks}}<tr>{{range .}}{{if .Blank}}<td class="blank"></td>{{else}}<td{{if .Busy}} class="busy"{{end}}><div class="day">{{.Date.Day}}</div>{{if .Busy}}<ul>{{range .Occurrences}}<li{{if .Moved}} class="moved"{{end}}>{{clock .Start}} {{.Title}}{{if .Recurring}} &#8635;{{end}}</li>{{end}}</ul>{{end}}</td>{{end}}{{end}}</tr>
{{end}}</tbody>
</table>
{{if .Invalid}}<p>{{.Invalid}} series could not be shown.</p>{{end}}
</main>
</body>
</html>
`))

type calendarPage struct {
	Title   string
	Grid    view.MonthGrid
	PrevURL string
	NextURL string
	Invalid int
}

func monthURL(t time.Time) string {
	return "/calendar?year=" + t.Format("2006") + "&month=" + t.Format("1")
}

// handleCalendar renders the month view as HTML.
//
// GET /calendar?year=2025&month=12 (defaults to the current month)
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	loc := s.store.Location()
	now := s.now().In(loc)
	q := r.URL.Query()

	year := parseIntDefault(q.Get("year"), now.Year())
	month := parseIntDefault(q.Get("month"), int(now.Month()))
	if year < 1 || year > 9999 || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "year or month out of range")
		return
	}

	g, err := view.Grid(year, time.Month(month), s.store.List(), s.weekStart, loc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, inv := range g.Invalid {
		appLog.Warn("calendar: series skipped", "id", inv.SeriesID, "err", inv.Err)
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	page := calendarPage{
		Title:   first.Format("January 2006"),
		Grid:    g,
		PrevURL: monthURL(first.AddDate(0, -1, 0)),
		NextURL: monthURL(first.AddDate(0, 1, 0)),
		Invalid: len(g.Invalid),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := calendarTmpl.Execute(w, page); err != nil {
		appLog.Error("calendar template failed", err)
	}
}
