package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/temp-monitor/internal/session"
	"github.com/sweeney/temp-monitor/internal/status"
	"github.com/sweeney/temp-monitor/internal/telemetry"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"celsius": func(v float64) string {
		return fmt.Sprintf("%.1f ℃", v)
	},
	"stateClass": func(s session.State) string {
		switch s {
		case session.Connected:
			return "connected"
		case session.Connecting:
			return "pending"
		}
		return "disconnected"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Temperature Monitor</title>
<style>
body { font-family: monospace; max-width: 1060px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.pending { color: orange; }
.disconnected { color: red; }
.warming { color: #c00; }
.cooling { color: #06c; }
.empty { padding: 4em 0; text-align: center; color: #888; border: 1px dashed #ccc; }
.error { color: red; }
input[type=url] { width: 60%; }
</style>
</head>
<body>
<h1>Temperature Monitor</h1>

<h2>Connection</h2>
<table>
<tr><th>State</th><td class="{{stateClass .Session.State}}">{{.Session.State}}</td></tr>
<tr><th>Endpoint</th><td>{{.Session.Endpoint}}</td></tr>
<tr><th>Schema</th><td>{{.Session.Schema}}</td></tr>
{{if .Session.LastError}}<tr><th>Last error</th><td class="error">{{.Session.LastError}}</td></tr>{{end}}
</table>
{{if .Disconnected}}
<p>
<input id="endpoint" type="url" value="{{.Session.Endpoint}}">
<button onclick="setEndpoint()">Set</button>
<button onclick="send('POST', '/connect')">Connect</button>
</p>
{{else}}
<p><button onclick="send('POST', '/disconnect')">Disconnect</button></p>
{{end}}

<h2>Chart</h2>
{{if .Dataset.Empty}}
<div class="empty">No events</div>
{{else}}
<img src="/chart.svg" alt="temperature chart" width="100%">
{{end}}

{{if .Session.Reading.Samples}}
<h2>Reading</h2>
<table>
<tr><th>Last</th><td>{{celsius .Session.Reading.Last}}</td></tr>
<tr><th>Average</th><td class="{{.Session.Reading.Trend}}">{{celsius .Session.Reading.Average}} ({{.Session.Reading.Trend}})</td></tr>
<tr><th>Samples</th><td>{{.Session.Reading.Samples}}</td></tr>
</table>
{{end}}

<h2>Events</h2>
<table>
<tr><th>Received</th><td>{{.Session.Counts.Received}}</td></tr>
<tr><th>Accepted</th><td>{{.Session.Counts.Accepted}}</td></tr>
{{range .Rejected}}<tr><th>Rejected ({{.Reason}})</th><td>{{.Count}}</td></tr>
{{end}}<tr><th>Transport errors</th><td>{{.Session.Counts.TransportErrors}}</td></tr>
<tr><th>Devices</th><td>{{.Session.Series}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Capacity</th><td>{{.Session.Capacity}} points per device</td></tr>
<tr><th>Average window</th><td>{{.Session.Window}}</td></tr>
<tr><th>Colors</th><td>{{.Config.ColorStrategy}}</td></tr>
<tr><th>Reconnect</th><td>{{if .Session.Reconnect}}{{.Config.ReconnectMin}}..{{.Config.ReconnectMax}}{{else}}disabled{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{if .Config.PublishBroker}}<tr><th>MQTT</th><td class="{{if .PublisherConnected}}connected{{else}}disconnected{{end}}">{{.Config.PublishBroker}} {{if .PublisherConnected}}connected{{else}}disconnected{{end}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a> · <a href="/chart.json">chart JSON</a> · <a href="/metrics">metrics</a></p>
<script>
function send(method, path, body) {
  fetch(path, { method: method, body: body, headers: body ? { "Content-Type": "application/json" } : {} })
    .then(function(r) { return r.json(); })
    .then(function(j) { if (j.error) { alert(j.error); } location.reload(); });
}
function setEndpoint() {
  send("PUT", "/endpoint", JSON.stringify({ url: document.getElementById("endpoint").value }));
}
</script>
</body>
</html>
`

type rejectedRow struct {
	Reason telemetry.Reason
	Count  int
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime       time.Duration
		Disconnected bool
		Rejected     []rejectedRow
	}{
		Snapshot:     snap,
		Uptime:       snap.Uptime(),
		Disconnected: snap.Session.State == session.Disconnected,
	}
	for _, r := range telemetry.Reasons {
		if n := snap.Session.Counts.Rejected[r]; n > 0 {
			data.Rejected = append(data.Rejected, rejectedRow{Reason: r, Count: n})
		}
	}
	return indexTmpl.Execute(w, data)
}
