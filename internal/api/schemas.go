package api

import (
	"time"

	"github.com/heimdex/heimdex-analyzer/internal/media"
	"github.com/heimdex/heimdex-analyzer/internal/models"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	UptimeS      int64  `json:"uptime_s"`
	Capabilities int    `json:"capabilities"`
}

type StatusResponse struct {
	Capabilities   []string           `json:"capabilities"`
	Tools          []media.ToolStatus `json:"tools"`
	Sidecar        *SidecarResponse   `json:"sidecar,omitempty"`
	MaxUploadBytes int64              `json:"max_upload_bytes"`
	MaxUpload      string             `json:"max_upload"`
}

type SidecarResponse struct {
	Ready        bool              `json:"ready"`
	Capabilities []string          `json:"capabilities"`
	Models       map[string]string `json:"models,omitempty"`
	LastProbeAt  string            `json:"last_probe_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ProcessTextRequest is the JSON body of POST /process/text.
type ProcessTextRequest struct {
	Text     *string           `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func SidecarToResponse(r *models.Readiness) *SidecarResponse {
	resp := &SidecarResponse{Capabilities: []string{}}
	if r == nil {
		return resp
	}
	resp.Ready = true
	resp.Capabilities = append(resp.Capabilities, r.Capabilities...)
	resp.Models = r.Models
	if !r.ProbedAt.IsZero() {
		resp.LastProbeAt = r.ProbedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
