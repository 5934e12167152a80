package statusserver

import (
	"net/http"

	"github.com/imposteroid/apkscan/internal/analysis"
	"github.com/imposteroid/apkscan/internal/client"
	"github.com/imposteroid/apkscan/pkg/version"
)

type StatusReply struct {
	Server     string                   `json:"server"`
	Version    string                   `json:"version"`
	State      analysis.State           `json:"state"`
	Connection *client.ConnectionStatus `json:"connection,omitempty"`
}

type VersionReply struct {
	version.Info
}

type HealthReply struct {
	Status string `json:"status"`
}

func (s StatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (v VersionReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (h HealthReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}
