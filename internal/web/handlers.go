package web

import (
	stderrors "errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/PentesterFlow/APIHunter/internal/auth"
	"github.com/PentesterFlow/APIHunter/pkg/crawler"
)

// ErrBusy is returned by Start while a hunt is running.
var ErrBusy = stderrors.New("a hunt is already running")

const maxBodySize = 1 << 20

// crawlRequest is a crawler config with the short "url" alias for start_url.
type crawlRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	eps := s.Endpoints()
	if eps == nil {
		eps = []EndpointSummary{}
	}
	writeJSON(w, http.StatusOK, eps)
}

func (s *Server) handleDoc(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(filepath.Join(s.outputDir, name))
		if err != nil {
			writeError(w, http.StatusNotFound, "documentation not generated yet")
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	cfg := crawler.DefaultConfig()
	var alias crawlRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if err := json.Unmarshal(body, &alias); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	if cfg.StartURL == "" {
		cfg.StartURL = strings.TrimSpace(alias.URL)
	}
	if cfg.StartURL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	if err := s.Start(cfg); err != nil {
		if stderrors.Is(err, ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.WithURL(cfg.StartURL).Info("Hunt started from monitor")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.Stop() {
		writeError(w, http.StatusConflict, "no hunt is running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	// Both a missing challenge and an already answered one conflict with the
	// current state.
	if err := s.codes.Submit(req.Code); err != nil {
		if !stderrors.Is(err, auth.ErrNoChallenge) {
			s.log.WithError(err).Debug("Rejected 2FA code")
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "submitted"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
