package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) dashboard(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dashboardHTML))
}

// dashboardHTML is a single page that drives /scan/*. The API key is kept
// in the page and sent as x-api-key.
const dashboardHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>OKX Scanner</title>
  <style>
    body { font-family: system-ui, -apple-system, Segoe UI, Roboto, sans-serif; margin: 24px; max-width: 960px; }
    .card { padding: 16px; border: 1px solid #e5e7eb; border-radius: 12px; margin-bottom: 16px; }
    input { width: 100%; padding: 8px; border: 1px solid #e5e7eb; border-radius: 8px; margin: 4px 0 8px; box-sizing: border-box; }
    button { padding: 8px 12px; border-radius: 8px; border: 1px solid #d1d5db; background: #f9fafb; cursor: pointer; }
    pre { background: #f8fafc; padding: 12px; border-radius: 8px; overflow-x: auto; }
  </style>
</head>
<body>
  <h1>OKX Scanner</h1>

  <div class="card">
    <label>API key</label>
    <input id="key" type="password" placeholder="x-api-key" />
  </div>

  <div class="card">
    <h3>Status</h3>
    <pre id="status">loading...</pre>
    <button onclick="refresh()">Refresh</button>
  </div>

  <div class="card">
    <h3>Scan configuration</h3>
    <label>Symbols (comma separated)</label>
    <input id="symbols" placeholder="ETH-USDT,SOL-USDT" />
    <label>Bars (1D:50,4H:50,1H:50,15m:150,5m:150)</label>
    <input id="bars" placeholder="1D:50,4H:50,1H:50,15m:150,5m:150" />
    <label>Batch</label>
    <input id="batch" type="number" value="5" />
    <label>Interval seconds</label>
    <input id="interval" type="number" value="30" />
    <button onclick="start()">Start</button>
    <button onclick="stop()">Stop</button>
  </div>

  <script>
    function headers() {
      return {'Content-Type': 'application/json', 'x-api-key': document.getElementById('key').value};
    }
    function show(j) {
      document.getElementById('status').textContent = JSON.stringify(j, null, 2);
    }
    async function refresh() {
      const r = await fetch('/scan/status', {headers: headers()});
      show(await r.json());
    }
    async function start() {
      const bars = {};
      document.getElementById('bars').value.split(',').map(x => x.trim()).filter(Boolean).forEach(p => {
        const [bar, limit] = p.split(':');
        bars[bar] = parseInt(limit);
      });
      const body = {
        symbols: document.getElementById('symbols').value.split(',').map(s => s.trim()).filter(Boolean),
        bars: bars,
        batch: parseInt(document.getElementById('batch').value),
        interval_sec: parseInt(document.getElementById('interval').value),
      };
      const r = await fetch('/scan/start', {method: 'POST', headers: headers(), body: JSON.stringify(body)});
      show(await r.json());
    }
    async function stop() {
      const r = await fetch('/scan/stop', {method: 'POST', headers: headers()});
      show(await r.json());
    }
    refresh();
  </script>
</body>
</html>
`
