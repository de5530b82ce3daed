package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"i4.energy/across/simgw/modem"
)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *slog.Logger
	Modem  *modem.Modem

	router chi.Router
}

// NewServer wires the HTTP routes. Metrics are served from gatherer when it
// is not nil.
func NewServer(logger *slog.Logger, m *modem.Modem, gatherer prometheus.Gatherer) *Server {
	s := &Server{Logger: logger, Modem: m}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)

	r.Route("/gps", func(r chi.Router) {
		r.Get("/", s.handleGPS)
		r.Post("/start", s.handleGPSStart)
		r.Post("/stop", s.handleGPSStop)
	})

	r.Route("/network", func(r chi.Router) {
		r.Get("/attach", s.handleAttachStatus)
		r.Post("/attach", s.handleAttach)
		r.Post("/detach", s.handleDetach)
		r.Get("/registration/{type}", s.handleRegistration)
		r.Get("/operators", s.handleOperators)
		r.Get("/operator-names", s.handleOperatorNames)
		r.Get("/signal", s.handleSignal)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
	return s
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("Failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Message: message})
}

// sendModemError maps a modem error to an HTTP status.
func (s *Server) sendModemError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, modem.ErrUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, modem.ErrTimeout), errors.Is(err, modem.ErrMismatch):
		status = http.StatusGatewayTimeout
	case errors.Is(err, modem.ErrDecode):
		status = http.StatusBadGateway
	}
	s.Logger.Error("Modem request failed", "error", err, "path", r.URL.Path, "status", status)
	s.sendError(w, err.Error(), status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, err := s.Modem.IsActive(r.Context())
	if err != nil {
		s.Logger.Warn("Health check failed", "error", err)
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.sendJSON(w, map[string]any{"status": "ok", "radio_active": active})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	type InfoResponse struct {
		Manufacturer string `json:"manufacturer"`
		Model        string `json:"model"`
		Revision     string `json:"revision"`
		IMEI         string `json:"imei"`
		IMSI         string `json:"imsi,omitempty"`
		ICCID        string `json:"iccid,omitempty"`
	}

	ctx := r.Context()
	info := s.Modem.Info()

	var resp InfoResponse
	var err error
	if resp.Manufacturer, err = info.Manufacturer(ctx); err != nil {
		s.sendModemError(w, r, err)
		return
	}
	if resp.Model, err = info.Model(ctx); err != nil {
		s.sendModemError(w, r, err)
		return
	}
	if resp.Revision, err = info.Revision(ctx); err != nil {
		s.sendModemError(w, r, err)
		return
	}
	if resp.IMEI, err = info.SerialNumber(ctx, modem.SerialNumberIMEI); err != nil {
		s.sendModemError(w, r, err)
		return
	}

	// SIM identities are missing without a SIM and do not fail the request.
	if resp.IMSI, err = info.IMSI(ctx); err != nil {
		s.Logger.Debug("IMSI not available", "error", err)
	}
	if resp.ICCID, err = info.ICCID(ctx); err != nil {
		s.Logger.Debug("ICCID not available", "error", err)
	}

	s.sendJSON(w, resp)
}

func (s *Server) handleGPS(w http.ResponseWriter, r *http.Request) {
	type GPSResponse struct {
		Fix   bool         `json:"fix"`
		Coord *modem.Coord `json:"coord,omitempty"`
	}

	coord, ok, err := s.Modem.GPS().Coord(r.Context())
	if err != nil {
		s.sendModemError(w, r, err)
		return
	}
	resp := GPSResponse{Fix: ok}
	if ok {
		resp.Coord = &coord
	}
	s.sendJSON(w, resp)
}

func (s *Server) handleGPSStart(w http.ResponseWriter, r *http.Request) {
	mode, err := modem.ParseGPSMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Modem.GPS().Start(r.Context(), mode); err != nil {
		s.sendModemError(w, r, err)
		return
	}
	s.Logger.Info("GPS started", "mode", mode)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGPSStop(w http.ResponseWriter, r *http.Request) {
	if err := s.Modem.GPS().Stop(r.Context()); err != nil {
		s.sendModemError(w, r, err)
		return
	}
	s.Logger.Info("GPS stopped")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAttachStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Modem.Network().AttachStatus(r.Context())
	if err != nil {
		s.sendModemError(w, r, err)
		return
	}
	s.sendJSON(w, map[string]string{"status": status.String()})
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	if err := s.Modem.Network().Attach(r.Context()); err != nil {
		s.sendModemError(w, r, err)
		return
	}
	s.Logger.Info("Attached to packet domain")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	if err := s.Modem.Network().Detach(r.Context()); err != nil {
		s.sendModemError(w, r, err)
		return
	}
	s.Logger.Info("Detached from packet domain")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRegistration(w http.ResponseWriter, r *http.Request) {
	type RegistrationResponse struct {
		Type       string `json:"type"`
		Status     string `json:"status"`
		Registered bool   `json:"registered"`
		RAT        string `json:"rat"`
		LAC        string `json:"lac,omitempty"`
		CellID     string `json:"cell_id,omitempty"`
	}

	regType, err := modem.ParseRegistrationType(chi.URLParam(r, "type"))
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	params, err := s.Modem.Network().RegistrationParams(r.Context(), regType)
	if err != nil {
		s.sendModemError(w, r, err)
		return
	}
	s.sendJSON(w, RegistrationResponse{
		Type:       params.Type.String(),
		Status:     params.Status.String(),
		Registered: params.Status.Registered(),
		RAT:        params.RAT.String(),
		LAC:        params.LAC,
		CellID:     params.CellID,
	})
}

func (s *Server) handleOperators(w http.ResponseWriter, r *http.Request) {
	type OperatorResponse struct {
		Long    string `json:"long"`
		Short   string `json:"short"`
		Numeric string `json:"numeric"`
		RAT     string `json:"rat"`
		Status  string `json:"status"`
	}

	operators, err := s.Modem.Network().ScanPLMN(r.Context())
	if err != nil {
		s.sendModemError(w, r, err)
		return
	}
	resp := make([]OperatorResponse, 0, len(operators))
	for _, op := range operators {
		resp = append(resp, OperatorResponse{
			Long:    op.Long,
			Short:   op.Short,
			Numeric: op.Numeric,
			RAT:     op.RAT.String(),
			Status:  op.Status.String(),
		})
	}
	s.sendJSON(w, resp)
}

func (s *Server) handleOperatorNames(w http.ResponseWriter, r *http.Request) {
	names, err := s.Modem.Network().OperatorNames(r.Context())
	if err != nil {
		s.sendModemError(w, r, err)
		return
	}
	s.sendJSON(w, names)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	type SignalResponse struct {
		modem.SignalQuality
		DBm *int `json:"dbm,omitempty"`
	}

	quality, err := s.Modem.Network().SignalQuality(r.Context())
	if err != nil {
		s.sendModemError(w, r, err)
		return
	}
	resp := SignalResponse{SignalQuality: quality}
	if dbm, ok := quality.DBm(); ok {
		resp.DBm = &dbm
	}
	s.sendJSON(w, resp)
}
