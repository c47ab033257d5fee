package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/charge-limiter/internal/status"
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
	"amps": func(a float64) string {
		return fmt.Sprintf("%.1f A", a)
	},
	"ageMs": func(d time.Duration) string {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Charge Limiter</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.active { color: green; font-weight: bold; }
.idle { color: #888; }
.enabled { color: green; }
.tripped { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Solar Charge Limiter</h1>

<h2>Charger</h2>
<table>
<tr><th>Commanded duty</th><td>{{.Duty}} / 255</td></tr>
<tr><th>Approx. current</th><td>{{amps .ApproxAmps}}</td></tr>
<tr><th>Curtailment</th><td class="{{if .CurtailmentActive}}active{{else}}idle{{end}}">{{if .CurtailmentActive}}ACTIVE{{else}}IDLE ({{ageMs .CurtailmentAge}} ago){{end}}</td></tr>
<tr><th>Inverter</th><td class="{{if .InverterOn}}enabled{{else}}tripped{{end}}">{{if .InverterOn}}ENABLED{{else}}TRIPPED{{end}}</td></tr>
</table>

<h2>Counters</h2>
<table>
<tr><th>Step-ups</th><td>{{.Counts.StepUps}}</td></tr>
<tr><th>Step-downs</th><td>{{.Counts.StepDowns}}</td></tr>
<tr><th>Holds</th><td>{{.Counts.Holds}}</td></tr>
<tr><th>Inverter trips</th><td>{{.Counts.InverterTrips}}</td></tr>
</table>

<h2>Daemon</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}} ({{.Config.Broker}})</td></tr>
<tr><th>Duty bounds</th><td>{{.Config.MinDuty}} &ndash; {{.Config.MaxDuty}}</td></tr>
<tr><th>Poll interval</th><td>{{.Config.PollMs}} ms</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	if err := indexTmpl.Execute(w, snap); err != nil {
		log.Printf("render status page: %v", err)
	}
}
