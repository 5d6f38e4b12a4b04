package handler

import (
	"html/template"
	"log/slog"
	"net/http"

	"sitedash/internal/observability"
)

var shell = template.Must(template.New("shell").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sitedash</title>
<link rel="stylesheet" href="/assets/app.css">
</head>
<body>
<div id="app" data-path="{{.Path}}" data-session="/session" data-events="/session/events"></div>
<script type="module" src="/assets/app.js"></script>
</body>
</html>
`))

// Pages serves the single-page app shell for every UI route. The route
// guard decides who reaches it.
func Pages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := shell.Execute(w, struct{ Path string }{r.URL.Path}); err != nil {
		observability.FromContext(r.Context()).Error("failed to render page", slog.String("error", err.Error()))
	}
}
