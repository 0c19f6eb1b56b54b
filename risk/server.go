package risk

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// Response is the body of a successful spender lookup.
type Response struct {
	Address     string        `json:"address"`
	ChainID     uint64        `json:"chainId"`
	RiskFactors []RatedFactor `json:"riskFactors"`
	RiskScore   int           `json:"riskScore"`
	RiskLevel   Level         `json:"riskLevel"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Server serves spender risk data.
type Server struct {
	source   Source
	sessions SessionChecker
	limiter  RateLimiter
	logger   *logrus.Logger
}

// NewServer creates a risk server.
//
// Parameters:
// - source: where risk factors come from.
// - sessions: the API session check.
// - limiter: the request rate limiter.
// - logger: the logger for logging purposes.
//
// Returns:
// - *Server: the new server.
func NewServer(source Source, sessions SessionChecker, limiter RateLimiter, logger *logrus.Logger) *Server {
	return &Server{
		source:   source,
		sessions: sessions,
		limiter:  limiter,
		logger:   logger,
	}
}

// Routes returns the HTTP handler of the server.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/{chainId}/spender/{address}", s.handleSpender)
	return r
}

func (s *Server) handleSpender(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	chainID, err := strconv.ParseUint(chi.URLParam(r, "chainId"), 10, 64)
	if err != nil || chainID == 0 || !isAddress(address) {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid address"})
		return
	}

	if !s.sessions.HasActiveSession(r) {
		writeJSON(w, http.StatusForbidden, messageResponse{Message: "No API session is active"})
		return
	}

	if !s.limiter.Allow(r) {
		writeJSON(w, http.StatusTooManyRequests, messageResponse{Message: "Rate limit exceeded"})
		return
	}

	factors, err := s.source.SpenderRisk(r.Context(), chainID, address)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"chainId": chainID,
			"address": address,
		}).WithError(err).Error("Failed to load spender risk")
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: err.Error()})
		return
	}

	factors = FilterUnknown(factors, s.logger)

	w.Header().Set("Cache-Control", "max-age=3600")
	w.Header().Set("CDN-Cache-Control", "s-maxage=86400")
	writeJSON(w, http.StatusOK, Response{
		Address:     common.HexToAddress(address).Hex(),
		ChainID:     chainID,
		RiskFactors: Rate(factors),
		RiskScore:   Score(factors),
		RiskLevel:   LevelOf(factors),
	})
}

// isAddress accepts 0x-prefixed 20 byte hex addresses.
func isAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
