package server

import "time"

// WebSocket timing follows the gorilla chat example.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

const (
	// ShutdownTimeout bounds how long Stop waits for connection goroutines.
	ShutdownTimeout = 30 * time.Second

	// preflightTimeout bounds the AI service probe behind HEAD /api/recipes/from-image.
	preflightTimeout = time.Second
)

// ServerState is the server lifecycle state.
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

func (s ServerState) String() string {
	switch s {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	State      string `json:"state"`
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	Clients    int    `json:"clients"`
	Registered int    `json:"registered"`
	Drops      int64  `json:"broadcast_drops"`
}
