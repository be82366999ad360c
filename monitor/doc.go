// Package monitor reports pipeline progress while a run is in flight.
//
// Progress implements pipeline.Observer. It keeps counters and per-layer
// states and, when given a Hub, publishes every notification as a JSON
// server-sent event. Server exposes the progress over HTTP:
//
//	GET /health   component health
//	GET /status   progress snapshot
//	GET /version  build information
//	GET /events   SSE stream; ?topic= filters with a glob such as "unit.*"
//
// A typical wiring:
//
//	hub := monitor.NewHub()
//	progress := monitor.NewProgress(p.Name(), hub)
//	srv := monitor.NewServer(cfg.Monitor, progress, hub)
//	_ = registry.Register(srv)
//	p := pipeline.New("dwi", pipeline.WithObserver(progress))
package monitor
