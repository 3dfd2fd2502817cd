package api

import (
	"html/template"
	"net/http"
)

// actionsTemplate renders the audit log as a plain HTML table for quick
// inspection from a browser.
var actionsTemplate = template.Must(template.New("actions").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Action Log</title>
  <style>
    body { font-family: sans-serif; margin: 20px; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #666; padding: 8px; text-align: left; }
    th { background: #eee; }
    pre { white-space: pre-wrap; word-break: break-all; margin: 0; }
  </style>
</head>
<body>
  <h1>Action Log</h1>
  <table>
    <thead>
      <tr>
        <th>Action ID</th>
        <th>Timestamp (UTC)</th>
        <th>Type</th>
        <th>Session ID</th>
        <th>Details</th>
      </tr>
    </thead>
    <tbody>
      {{range .}}
      <tr>
        <td>{{.ActionID}}</td>
        <td>{{.Timestamp.Format "2006-01-02T15:04:05Z07:00"}}</td>
        <td>{{.Type}}</td>
        <td>{{.SessionID}}</td>
        <td><pre>{{printf "%v" .Details}}</pre></td>
      </tr>
      {{end}}
    </tbody>
  </table>
</body>
</html>
`))

// ActionsPage handles GET /actions
func (h *Handler) ActionsPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	actionsTemplate.Execute(w, h.audit.Records())
}
