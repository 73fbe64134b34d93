package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/openmatchmaking/auth/internal/apperr"
	"github.com/openmatchmaking/auth/internal/users"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyResponse struct {
	IsValid bool `json:"is_valid"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

type errorEnvelope struct {
	Error apperr.Body `json:"error"`
}

func (s *Server) handleTokenNew(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	pair, err := s.tokens.Issue(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pair)
}

func (s *Server) handleTokenVerify(w http.ResponseWriter, r *http.Request) {
	accessToken, err := s.tokens.ExtractToken(r.Header.Get(s.headerName))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.tokens.Verify(accessToken); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, verifyResponse{IsValid: true})
}

func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	accessToken, err := s.tokens.ExtractToken(r.Header.Get(s.headerName))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	refreshed, err := s.tokens.Refresh(r.Context(), accessToken, req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, refreshResponse{AccessToken: refreshed})
}

func (s *Server) handleUsersRegister(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.users.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUsersMe(w http.ResponseWriter, r *http.Request) {
	accessToken, err := s.tokens.ExtractToken(r.Header.Get(s.headerName))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	profile, err := s.users.ProfileByID(r.Context(), claims.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.New(apperr.KindValidation, "Wrong format of the request body.")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}

// writeError maps typed domain errors to a 400 envelope. Anything untyped
// is an infrastructure failure and turns into a plain 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr := apperr.AsError(err); appErr != nil {
		s.writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: appErr.WireBody()})
		return
	}

	s.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
