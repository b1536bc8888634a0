package main

import (
	"net/http"
)

func dashboardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

// dashboardHTML polls /stats every two seconds.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Burstfence Dashboard</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #1f2937;
            min-height: 100vh;
            padding: 20px;
        }
        .container { max-width: 1200px; margin: 0 auto; }
        .header { text-align: center; color: white; margin-bottom: 30px; }
        .header h1 { font-size: 2.2em; margin-bottom: 8px; }
        .header p { opacity: 0.8; }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 16px;
            margin-bottom: 24px;
        }
        .stat-card, .table-card {
            background: white;
            border-radius: 10px;
            padding: 20px;
        }
        .stat-label {
            color: #666;
            font-size: 0.85em;
            text-transform: uppercase;
            letter-spacing: 1px;
            margin-bottom: 8px;
        }
        .stat-value { font-size: 2em; font-weight: bold; color: #333; }
        .stat-value.success { color: #10b981; }
        .stat-value.danger { color: #ef4444; }
        .stat-value.info { color: #3b82f6; }
        .stat-value.warning { color: #f59e0b; }
        .table-card h2 { margin-bottom: 16px; color: #333; }
        table { width: 100%; border-collapse: collapse; }
        th {
            text-align: left;
            padding: 10px;
            background: #f3f4f6;
            color: #666;
            font-size: 0.85em;
            text-transform: uppercase;
        }
        td { padding: 10px; border-bottom: 1px solid #e5e7eb; }
        tr:last-child td { border-bottom: none; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Burstfence</h1>
            <p>Token buckets, refilled on a fixed interval</p>
        </div>

        <div class="stats-grid">
            <div class="stat-card">
                <div class="stat-label">Tokens Consumed</div>
                <div class="stat-value success" id="consumed">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Rejected</div>
                <div class="stat-value danger" id="rejected">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Tokens Refilled</div>
                <div class="stat-value info" id="refilled">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Overflowed</div>
                <div class="stat-value warning" id="overflowed">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Buckets</div>
                <div class="stat-value" id="buckets">0</div>
            </div>
        </div>

        <div class="table-card">
            <h2>Busiest Buckets</h2>
            <table>
                <thead>
                    <tr>
                        <th>Bucket</th>
                        <th>Policy</th>
                        <th>Consumed</th>
                        <th>Rejected</th>
                        <th>Cancelled</th>
                        <th>Available</th>
                        <th>Last Seen</th>
                    </tr>
                </thead>
                <tbody id="buckets-table">
                    <tr><td colspan="7" style="text-align: center; color: #999;">Loading...</td></tr>
                </tbody>
            </table>
        </div>
    </div>

    <script>
        function cell(text) {
            const td = document.createElement('td');
            td.textContent = text;
            return td;
        }

        async function refresh() {
            try {
                const response = await fetch('/stats');
                const data = await response.json();

                document.getElementById('consumed').textContent = data.tokens_consumed.toLocaleString();
                document.getElementById('rejected').textContent = data.rejected.toLocaleString();
                document.getElementById('refilled').textContent = data.tokens_refilled.toLocaleString();
                document.getElementById('overflowed').textContent = data.tokens_overflowed.toLocaleString();
                document.getElementById('buckets').textContent = data.unique_buckets.toLocaleString();

                const tbody = document.getElementById('buckets-table');
                tbody.replaceChildren();
                for (const b of data.top_buckets || []) {
                    const tr = document.createElement('tr');
                    tr.append(
                        cell(b.bucket),
                        cell(b.policy),
                        cell(b.consumed.toLocaleString()),
                        cell(b.rejected.toLocaleString()),
                        cell(b.cancelled.toLocaleString()),
                        cell(b.available),
                        cell(new Date(b.last_seen_at).toLocaleTimeString()),
                    );
                    tbody.append(tr);
                }
            } catch (error) {
                console.error('Failed to fetch stats:', error);
            }
        }

        refresh();
        setInterval(refresh, 2000);
    </script>
</body>
</html>`
