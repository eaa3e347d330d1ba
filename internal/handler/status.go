package handler

import (
	"html/template"
	"log/slog"
	"net/http"
)

// statusPage is the operator-facing landing page: which tiers are up, in
// fallback order. Inlined so the binary is self-contained.
const statusPage = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
	<style>
		body { font-family: ui-monospace, monospace; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
		h1 { font-size: 1.3rem; }
		table { border-collapse: collapse; width: 100%; }
		td, th { text-align: left; padding: .4rem .8rem; border-bottom: 1px solid #ddd; }
		.up { color: #1a7f37; }
		.down { color: #cf222e; }
	</style>
</head>
<body>
	<h1>{{.Title}}</h1>
	<p>Execution requests walk the tiers below in order and run on the first one available.</p>
	<table>
		<tr><th>#</th><th>Tier</th><th>Status</th><th>Detail</th></tr>
		{{range $i, $t := .Tiers}}
		<tr>
			<td>{{$i}}</td>
			<td>{{$t.Label}}</td>
			<td class="{{if $t.Available}}up{{else}}down{{end}}">{{if $t.Available}}available{{else}}unavailable{{end}}</td>
			<td>{{$t.Detail}}</td>
		</tr>
		{{end}}
	</table>
	<p>POST code to <code>/api/execute</code> to run it.</p>
</body>
</html>
`

// StatusHandler renders the HTML status page.
type StatusHandler struct {
	tmpl   *template.Template
	tiers  TierService
	logger *slog.Logger
}

// NewStatusHandler parses the page template once at startup.
func NewStatusHandler(tiers TierService, logger *slog.Logger) (*StatusHandler, error) {
	tmpl, err := template.New("status").Parse(statusPage)
	if err != nil {
		return nil, err
	}
	return &StatusHandler{tmpl: tmpl, tiers: tiers, logger: logger}, nil
}

// HandleStatus serves the tier status page.
//
// HTTP: GET /
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title": "execbox — sandboxed code execution",
		"Tiers": tierStatusList(r.Context(), h.tiers),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render status page", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
