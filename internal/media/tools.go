package media

import (
	"fmt"
	"os/exec"
	"strings"
)

// Tool describes an external binary the analyzer can use.
type Tool struct {
	Name        string
	Command     string
	Description string
}

// ToolStatus reports whether a tool was found on this host.
type ToolStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Path        string `json:"path,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DefaultTools lists the binaries the media capabilities depend on.
func DefaultTools(ffmpeg, ffprobe, tesseract string) []Tool {
	return []Tool{
		{Name: "ffmpeg", Command: ffmpeg, Description: "frame sampling, audio extraction and transcoding"},
		{Name: "ffprobe", Command: ffprobe, Description: "video container metadata"},
		{Name: "tesseract", Command: tesseract, Description: "image text recognition"},
	}
}

// CheckTools resolves every tool on PATH.
func CheckTools(tools []Tool) []ToolStatus {
	results := make([]ToolStatus, 0, len(tools))
	for _, tool := range tools {
		cmd := strings.TrimSpace(tool.Command)
		status := ToolStatus{
			Name:        tool.Name,
			Command:     cmd,
			Description: tool.Description,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// Lookup returns the status named name.
func Lookup(statuses []ToolStatus, name string) (ToolStatus, bool) {
	for _, s := range statuses {
		if s.Name == name {
			return s, true
		}
	}
	return ToolStatus{}, false
}
