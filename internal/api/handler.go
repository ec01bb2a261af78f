package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kitbuilder587/completion-gateway/internal/config"
	"github.com/kitbuilder587/completion-gateway/internal/domain"
)

// maxBodyBytes - единственное ограничение на размер промпта
const maxBodyBytes = 1 << 20

type generateRequest struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Result string `json:"result"`
}

type errorResponse struct {
	Error string             `json:"error"`
	Kind  domain.FailureKind `json:"kind,omitempty"`
}

type configErrorResponse struct {
	Error         string   `json:"error"`
	MissingFields []string `json:"missingFields"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	req := &domain.CompletionRequest{Text: body.Text}
	text, err := s.generate.Generate(r.Context(), req)
	if err != nil {
		s.writeGenerateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{Result: text})
}

func (s *Server) writeGenerateError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrEmptyText) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var f *domain.Failure
	if errors.As(err, &f) {
		writeJSON(w, f.Kind.HTTPStatus(), errorResponse{Error: f.Detail, Kind: f.Kind})
		return
	}

	s.logger.Error("unexpected generate error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: domain.FailureUnknown})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	err := s.reload.Reload()
	if err == nil {
		writeJSON(w, http.StatusOK, statusResponse{Status: "reloaded"})
		return
	}

	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		writeJSON(w, http.StatusBadRequest, configErrorResponse{
			Error:         "ConfigError",
			MissingFields: cfgErr.MissingFields,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "error reloading configuration: " + err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
