package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rhythmlogic/gps/internal/cascade"
	"github.com/rhythmlogic/gps/internal/database"
	"github.com/rhythmlogic/gps/internal/studio"
)

const (
	maxBodyBytes  = 12 << 20
	healthTimeout = 2 * time.Second
)

// AudioPayload carries base64 encoded audio.
type AudioPayload struct {
	MIMEType string `json:"mime_type" validate:"required,startswith=audio/"`
	Data     []byte `json:"data" validate:"required,max=10485760"`
}

// GenerateRequest is the body of POST /v1/generate.
type GenerateRequest struct {
	SubjectMatter string            `json:"subject_matter" validate:"max=2000"`
	Context       map[string]string `json:"context" validate:"max=20,dive,keys,min=1,max=32,endkeys,max=200"`
	PriorOutput   string            `json:"prior_output" validate:"max=100000"`
	Instruction   string            `json:"instruction" validate:"max=4000"`
	Audio         *AudioPayload     `json:"audio"`
}

func (g GenerateRequest) toCascade() cascade.Request {
	req := cascade.Request{
		SubjectMatter: g.SubjectMatter,
		Context:       g.Context,
		PriorOutput:   g.PriorOutput,
		Instruction:   g.Instruction,
	}
	if g.Audio != nil {
		req.Audio = &cascade.Audio{MIMEType: g.Audio.MIMEType, Data: g.Audio.Data}
	}
	return req
}

// GenerateResponse is the successful reply of POST /v1/generate.
type GenerateResponse struct {
	RequestID string `json:"request_id"`
	Mode      string `json:"mode"`
	Text      string `json:"text"`
	ServedBy  string `json:"served_by"`
	Provider  string `json:"provider"`
	Attempts  int    `json:"attempts"`
}

// ModelResponse describes one configured candidate.
type ModelResponse struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Priority int    `json:"priority"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			s.writeError(w, http.StatusBadRequest, "invalid field "+verrs[0].Namespace()+": "+verrs[0].Tag())
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	run, err := s.gen.Generate(ctx, studio.Input{Source: database.SourceHTTP}, body.toCascade(), nil)
	if err != nil {
		s.writeError(w, statusFor(err), s.gen.UserMessage(err))
		return
	}

	s.writeJSON(w, http.StatusOK, GenerateResponse{
		RequestID: run.RequestID,
		Mode:      string(run.Mode),
		Text:      run.Result.Text,
		ServedBy:  run.Result.ServedBy,
		Provider:  run.Result.Provider.String(),
		Attempts:  run.Result.Attempts,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	cands := s.gen.Candidates()
	out := make([]ModelResponse, 0, len(cands))
	for _, c := range cands {
		out = append(out, ModelResponse{ID: c.ID, Provider: c.Provider.String(), Priority: c.Priority})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		s.log.WarnContext(ctx, "Health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cascade.ErrCascadeExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, cascade.ErrInvalidRequest), errors.Is(err, studio.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
