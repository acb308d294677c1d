package health

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

// RenderDashboardHTML returns the status page served at GET /. It embeds the current health
// snapshot and polls /health/json a few times after load.
func RenderDashboardHTML(health CollectResult) string {
	b, _ := json.Marshal(health)
	jsonStr := string(b)
	// escape for a JS template literal: \ ` $
	jsonStr = strings.ReplaceAll(jsonStr, "\\", "\\\\")
	jsonStr = strings.ReplaceAll(jsonStr, "`", "\\`")
	jsonStr = strings.ReplaceAll(jsonStr, "$", "\\$")

	lastReqMethod, lastReqPath := "-", "-"
	if m, ok := health.Traffic.LastRequest.(map[string]interface{}); ok {
		if v, ok := m["method"].(string); ok {
			lastReqMethod = v
		}
		if v, ok := m["path"].(string); ok {
			lastReqPath = v
		}
	}

	pill := func(name string) string {
		class := "err"
		if s := health.Dependencies[name].Status; s == "connected" {
			class = "ok"
		}
		return `<span id="pill-` + name + `" class="pill ` + class + `">` + html.EscapeString(health.Dependencies[name].Status) + `</span>`
	}

	return `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Sales Quota API · Status</title>
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <style>
    body { background: #f6f7f9; color: #1f2937; font-family: system-ui, sans-serif; margin: 0; padding: 40px 20px; }
    .container { max-width: 960px; margin: 0 auto; }
    h1 { font-size: 36px; margin: 0 0 24px; }
    .grid { display: grid; grid-template-columns: repeat(3, 1fr); gap: 16px; }
    .card { background: #fff; border-radius: 12px; padding: 24px; box-shadow: 0 4px 20px rgba(0,0,0,0.05); }
    .label { text-transform: uppercase; font-size: 11px; font-weight: 700; letter-spacing: 2px; color: #94a3b8; margin-bottom: 16px; }
    .big { font-size: 32px; font-weight: 800; margin-bottom: 8px; }
    .row { display: flex; justify-content: space-between; padding: 6px 0; font-size: 14px; border-bottom: 1px solid #f1f5f9; }
    .row:last-child { border-bottom: none; }
    .pill { padding: 3px 10px; border-radius: 8px; font-size: 11px; font-weight: 700; }
    .ok { background: #e6f4f1; color: #047857; }
    .err { background: #fdecec; color: #b91c1c; }
    .footer { margin-top: 16px; font-family: monospace; font-size: 13px; display: flex; justify-content: space-between; }
    @media (max-width: 800px) { .grid { grid-template-columns: 1fr; } }
  </style>
</head>
<body>
  <div class="container">
    <h1 id="headline">` + headline(health.Status) + `</h1>
    <div class="grid">
      <div class="card">
        <div class="label">Traffic</div>
        <div class="big" id="total-req">` + fmt.Sprint(health.Traffic.TotalRequests) + `</div>
        <div class="row"><span>Successful</span><span id="success-count">` + fmt.Sprint(health.Traffic.SuccessCount) + `</span></div>
        <div class="row"><span>Failed</span><span id="failed-count">` + fmt.Sprint(health.Traffic.FailedCount) + `</span></div>
        <div class="row"><span>Success Rate</span><span id="success-rate">` + health.Traffic.SuccessRate + `%</span></div>
        <div class="row"><span>Avg Latency</span><span id="avg-time">` + fmt.Sprint(health.Traffic.AvgResponseTime) + `ms</span></div>
      </div>
      <div class="card">
        <div class="label">Runtime</div>
        <div class="big" id="uptime">` + fmt.Sprint(health.Runtime.UptimeSeconds) + `s</div>
        <div class="row"><span>Heap Used</span><span id="mem-heap">` + fmt.Sprint(health.Runtime.Memory.HeapUsed) + ` MB</span></div>
        <div class="row"><span>Goroutines</span><span id="goroutines">` + fmt.Sprint(health.Runtime.Goroutines) + `</span></div>
        <div class="row"><span>Platform</span><span>` + health.Runtime.Platform + `</span></div>
      </div>
      <div class="card">
        <div class="label">Dependencies</div>
        <div class="row"><span>Database</span>` + pill("database") + `</div>
        <div class="row"><span>Redis</span>` + pill("redis") + `</div>
        <div class="row"><span>Event Broker</span>` + pill("broker") + `</div>
      </div>
    </div>
    <div class="footer">
      <span>LAST INBOUND <b id="req-method">` + html.EscapeString(lastReqMethod) + `</b> <span id="req-path">` + html.EscapeString(lastReqPath) + `</span></span>
      <a href="/health/errors">error log</a>
    </div>
  </div>
  <script>
    let left = 3;
    const setText = (id, v) => { document.getElementById(id).innerText = v; };
    const setPill = (id, s) => { const p = document.getElementById('pill-' + id); p.className = 'pill ' + (s === 'connected' ? 'ok' : 'err'); p.innerText = s; };
    const updateUI = (d) => {
      setText('total-req', d.traffic.totalRequests);
      setText('success-count', d.traffic.successCount);
      setText('failed-count', d.traffic.failedCount);
      setText('success-rate', d.traffic.successRate + '%');
      setText('avg-time', d.traffic.avgResponseTime + 'ms');
      setText('uptime', d.runtime.uptimeSeconds + 's');
      setText('mem-heap', d.runtime.memory.heapUsed + ' MB');
      setText('goroutines', d.runtime.goroutines);
      if (d.traffic.lastRequest) { setText('req-method', d.traffic.lastRequest.method); setText('req-path', d.traffic.lastRequest.path); }
      setPill('database', d.dependencies.database.status);
      setPill('redis', d.dependencies.redis.status);
      setPill('broker', d.dependencies.broker.status);
      setText('headline', d.status === 'ok' ? 'All Systems Operational' : 'System Issues Detected');
    };
    async function tick() { if (left <= 0) return; left--; try { const r = await fetch('/health/json'); updateUI(await r.json()); } catch (e) {} }
    updateUI(JSON.parse(` + "`" + jsonStr + "`" + `));
    setInterval(tick, 10000);
  </script>
</body>
</html>`
}

func headline(status string) string {
	if status == "ok" {
		return "All Systems Operational"
	}
	return "System Issues Detected"
}
