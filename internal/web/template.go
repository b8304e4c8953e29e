package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/plant-waterer/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"duration": func(d time.Duration) string {
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
	"seconds": func(n uint32) time.Duration {
		return time.Duration(n) * time.Second
	},
	"utc": func(t time.Time) string {
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Plant Waterer</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Plant Waterer</h1>

<h2>Watering</h2>
<table>
<tr><th>Mode</th><td id="mode">{{.Settings.Mode}}</td></tr>
<tr><th>Pump</th><td id="watering" class="{{if .Watering}}on{{else}}off{{end}}">{{if .Watering}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Amount</th><td>{{.Settings.AmountML}} mL</td></tr>
<tr><th>Interval</th><td>{{.Settings.IntervalMinutes}} min</td></tr>
<tr><th>Last watered</th><td>{{if .LastWateredAt.IsZero}}never{{else}}{{duration (seconds .SecondsSinceLastWatering)}} ago{{end}}</td></tr>
<tr><th>Next watering</th><td>{{if .NextWateringAt.IsZero}}not scheduled{{else}}in {{duration (seconds .SecondsUntilNextWatering)}}{{end}}</td></tr>
{{if .TriggerPending}}<tr><th>Manual trigger</th><td>pending</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topics</th><td>{{.Config.TopicPrefix}}/#</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Cycles</th><td>{{.Counts.Cycles}}</td></tr>
<tr><th>Driver failures</th><td>{{.Counts.DriverFailures}}</td></tr>
<tr><th>Rejected writes</th><td>{{.Counts.RejectedWrites}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{duration .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Pump pin</th><td>BCM {{.Config.PumpPin}}{{if .Config.ActiveLow}} (active low){{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, snap)
}
