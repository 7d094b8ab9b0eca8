// Package gateway is the agent front end: POST /process runs one turn and replies with the
// result, /ws streams turn progress to WebSocket clients, /health probes the tool and model
// services, and /metrics exposes Prometheus collectors.
//
// Every frame written to a WebSocket client carries a per-connection seq and a timestamp.
// Writes to one client are serialized; once a client disconnects its running turns finish
// without delivering further events.
package gateway
