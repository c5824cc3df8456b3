package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/saccohuo/subpipe/internal/hotword"
	"github.com/saccohuo/subpipe/internal/observe"
	"github.com/saccohuo/subpipe/internal/pipeline"
	"github.com/saccohuo/subpipe/internal/subtitle"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= 500 {
		slog.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		slog.Warn("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), RequestID: observe.RequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

// processRequest is the /api/process body.
type processRequest struct {
	URL        string   `json:"url"`
	Hotwords   []string `json:"hotwords,omitempty"`
	Translate  bool     `json:"translate,omitempty"`
	TargetLang string   `json:"target_lang,omitempty"`
}

// processResponse is shared by /api/process and /api/transcribe.
type processResponse struct {
	JobID       string               `json:"job_id"`
	SRT         string               `json:"srt"`
	SRTPath     string               `json:"srt_path,omitempty"`
	Diagnostics pipeline.Diagnostics `json:"diagnostics"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "url is required"})
		return
	}

	res, err := s.proc.Process(r.Context(), pipeline.Request{
		URL:        req.URL,
		Hotwords:   req.Hotwords,
		Translate:  req.Translate,
		TargetLang: req.TargetLang,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, processResponse{
		JobID:       res.JobID,
		SRT:         subtitle.Format(res.Document),
		SRTPath:     res.SRTPath,
		Diagnostics: res.Diagnostics,
	})
}

// handleTranscribe accepts a multipart upload with an "audio" file part and
// optional "hotwords" (comma-separated) and "translate" fields.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize)
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing audio file part: " + err.Error()})
		return
	}
	defer file.Close()

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer os.Remove(path)

	var hotwords []string
	if hw := strings.TrimSpace(r.FormValue("hotwords")); hw != "" {
		for _, h := range strings.Split(hw, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hotwords = append(hotwords, h)
			}
		}
	}

	res, err := s.proc.Process(r.Context(), pipeline.Request{
		FilePath:   path,
		Hotwords:   hotwords,
		Translate:  r.FormValue("translate") == "true",
		TargetLang: r.FormValue("target_lang"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, processResponse{
		JobID:       res.JobID,
		SRT:         subtitle.Format(res.Document),
		SRTPath:     res.SRTPath,
		Diagnostics: res.Diagnostics,
	})
}

// saveUpload writes the upload into the upload folder under a unique name
// that keeps the original extension.
func (s *Server) saveUpload(file io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString() + filepath.Ext(filename)
	path := filepath.Join(s.uploadDir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path, nil
}

type translateRequest struct {
	Text       string `json:"text"`
	TargetLang string `json:"target_lang,omitempty"`
}

type translateResponse struct {
	Text      string `json:"text"`
	Fallbacks int    `json:"fallbacks,omitempty"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "translation is not configured"})
		return
	}
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.TargetLang == "" {
		req.TargetLang = "zh"
	}

	out, fallbacks, err := s.router.Translate(r.Context(), req.Text, req.TargetLang)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{Text: out, Fallbacks: fallbacks})
}

type parseSRTRequest struct {
	Content string `json:"content"`
}

type parseSRTResponse struct {
	Cues []cueJSON `json:"cues"`
}

type cueJSON struct {
	Index   int    `json:"index"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

func (s *Server) handleParseSRT(w http.ResponseWriter, r *http.Request) {
	var req parseSRTRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}

	doc, err := subtitle.Parse(req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := parseSRTResponse{Cues: make([]cueJSON, 0, len(doc.Cues))}
	for _, c := range doc.Cues {
		resp.Cues = append(resp.Cues, cueJSON{
			Index:   c.Index,
			StartMs: c.Start.Milliseconds(),
			EndMs:   c.End.Milliseconds(),
			Text:    c.Text,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "hotword settings are not configured"})
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Get())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "hotword settings are not configured"})
		return
	}
	var next hotword.Settings
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	err := s.settings.Update(func(s *hotword.Settings) { *s = next })
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Get())
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "file records are not configured"})
		return
	}
	rec, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
