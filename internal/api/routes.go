package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-analyzer/internal/analysis"
	"github.com/heimdex/heimdex-analyzer/internal/media"
)

const fileField = "file"

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))

	r.Get("/health", healthHandler(cfg))
	r.Get("/status", statusHandler(cfg))
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Post("/process/text", processTextHandler(cfg))
	r.Post("/process/{modality}", processFileHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:       "ok",
			Version:      cfg.Version,
			UptimeS:      uptime,
			Capabilities: len(cfg.Processor.CapabilitiesAvailable()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := cfg.Processor.MaxUploadBytes()
		resp := StatusResponse{
			Capabilities:   cfg.Processor.CapabilitiesAvailable(),
			Tools:          cfg.Tools,
			MaxUploadBytes: limit,
			MaxUpload:      humanize.IBytes(uint64(limit)),
		}
		if resp.Tools == nil {
			resp.Tools = []media.ToolStatus{}
		}

		if cfg.Readiness != nil {
			ready, err := cfg.Readiness.Get(r.Context())
			resp.Sidecar = SidecarToResponse(ready)
			if err != nil {
				resp.Sidecar.Error = err.Error()
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// processTextHandler accepts either {"text": "...", "metadata": {...}} as
// JSON or the raw text as any other content type.
func processTextHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := cfg.Processor.MaxUploadBytes()
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeReadError(w, err, limit)
			return
		}

		blob := analysis.Blob{ContentType: r.Header.Get("Content-Type")}
		if isJSON(blob.ContentType) {
			var req ProcessTextRequest
			if err := json.Unmarshal(body, &req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
			if req.Text == nil {
				WriteError(w, http.StatusBadRequest, "text is required", "BAD_REQUEST")
				return
			}
			blob.Data = []byte(*req.Text)
			blob.Metadata = req.Metadata
		} else {
			blob.Data = body
		}
		if int64(len(blob.Data)) > limit {
			writeReadError(w, errTooLarge, limit)
			return
		}

		WriteJSON(w, http.StatusOK, cfg.Processor.Process(r.Context(), analysis.Text, blob))
	}
}

// processFileHandler reads the multipart field "file" for image, audio and
// video. Other form fields become blob metadata.
func processFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modality, err := analysis.ParseModality(chi.URLParam(r, "modality"))
		if err != nil || modality == analysis.Text {
			WriteError(w, http.StatusNotFound, "unknown modality", "NOT_FOUND")
			return
		}

		limit := cfg.Processor.MaxUploadBytes()
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

		blob, err := readUpload(r, limit)
		if err != nil {
			writeReadError(w, err, limit)
			return
		}

		WriteJSON(w, http.StatusOK, cfg.Processor.Process(r.Context(), modality, blob))
	}
}

var (
	errMissingFile = errors.New("multipart field \"file\" is required")
	errTooLarge    = errors.New("upload too large")
)

func readUpload(r *http.Request, limit int64) (analysis.Blob, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return analysis.Blob{}, err
	}

	var (
		blob  analysis.Blob
		found bool
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return analysis.Blob{}, err
		}

		name := part.FormName()
		switch {
		case name == fileField && !found:
			data, err := io.ReadAll(io.LimitReader(part, limit+1))
			if err != nil {
				part.Close()
				return analysis.Blob{}, err
			}
			if int64(len(data)) > limit {
				part.Close()
				return analysis.Blob{}, errTooLarge
			}
			blob.Data = data
			blob.Filename = part.FileName()
			blob.ContentType = part.Header.Get("Content-Type")
			found = true
		case name != "" && part.FileName() == "":
			value, err := io.ReadAll(io.LimitReader(part, 4096))
			if err != nil {
				part.Close()
				return analysis.Blob{}, err
			}
			if blob.Metadata == nil {
				blob.Metadata = make(map[string]string)
			}
			blob.Metadata[name] = string(value)
		}
		part.Close()
	}
	if !found {
		return analysis.Blob{}, errMissingFile
	}
	return blob, nil
}

func writeReadError(w http.ResponseWriter, err error, limit int64) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, errTooLarge) {
		WriteError(w, http.StatusRequestEntityTooLarge,
			"payload exceeds the "+humanize.IBytes(uint64(limit))+" limit", "PAYLOAD_TOO_LARGE")
		return
	}
	msg := "invalid request body"
	if errors.Is(err, errMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		msg = err.Error()
	}
	WriteError(w, http.StatusBadRequest, msg, "BAD_REQUEST")
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(contentType), "application/json")
	}
	return mt == "application/json"
}
