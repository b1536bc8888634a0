// Burstfence is a token bucket rate limiting service.
//
// Buckets hold at most their capacity in tokens and are topped up with a
// fixed number of tokens once per period. The service exposes:
//   - POST /consume to take tokens for a key under a named policy
//   - GET /stats with in-process and stored per-bucket counters
//   - GET /metrics with Prometheus counters
//   - GET /dashboard, a small HTML view over /stats
//
// Usage:
//
//	# Start the service with the default configuration file
//	burstfence serve
//
//	# Start with a custom configuration file and debug logging
//	burstfence serve --config /etc/burstfence/config.yaml --log-level debug
//
//	# Replay a bucket against a simulated clock
//	burstfence simulate --capacity 10 --tokens 5 --period 10s --at 0s,9s,10s,35s
//
//	# Show version information
//	burstfence version
package main

func main() {
	Execute()
}
