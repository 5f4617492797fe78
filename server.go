package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"i4.energy/across/ussd/at"
	"i4.energy/across/ussd/modem"
	"i4.energy/across/ussd/ussd"
)

// Server handles incoming HTTP requests for USSD queries against the
// configured modem
type Server struct {
	Logger     *slog.Logger
	Dispatcher *Dispatcher
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ussd", s.handleUSSD)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// handleUSSD runs one USSD request and replies with the report
func (s *Server) handleUSSD(w http.ResponseWriter, r *http.Request) {
	type USSDRequest struct {
		USSD    string `json:"ussd"`
		Args    string `json:"args"`
		Command string `json:"command"`
	}

	var body USSDRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, keyword, err := parseRequest(body.USSD, body.Args, body.Command)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := s.Dispatcher.Do(r.Context(), req, keyword)
	if err != nil {
		s.Logger.Error("USSD request failed", "error", err, "request", req.String())
		s.sendError(w, err.Error(), statusFor(err))
		return
	}

	s.Logger.Info("USSD request answered", "request", req.String(), "result_length", len(report.Result))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, at.ErrEmptyKeyword),
		errors.Is(err, at.ErrNoResponseTag),
		errors.Is(err, ussd.ErrArgumentConflict),
		errors.Is(err, ussd.ErrMissingRequest):
		return http.StatusBadRequest
	case errors.Is(err, modem.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
