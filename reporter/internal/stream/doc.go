// Package stream pushes the live link-comfort summary over WebSocket.
//
// New(source, interval) creates a Hub. Hub.Run(ctx) rebuilds the summary
// every interval while at least one client is connected and blocks until
// ctx is cancelled, then closes every connection. Hub.ServeHTTP upgrades a
// request, sends the current summary immediately and streams later ones.
//
// Message format sent to clients:
//
//	{
//	  "event": "summary",
//	  "data":  { /* same schema as GET /api/v1/summary */ }
//	}
//
// `reporter serve` mounts the hub at /ws/stream behind the same API key
// check as /api/v1.
package stream
