package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AlienQ7/iotpro/internal/auth"
)

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// handleSignup registers a new account.
//
// POST /api/v1/auth/signup
// Response 201: user plus the one-time recovery code; the code is never
// shown again.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.auth.Signup(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrValidation):
			writeBadRequest(w, err.Error())
		case errors.Is(err, auth.ErrEmailExists):
			writeConflict(w, "email already registered")
		default:
			s.logger.Error("signup failed", "error", err)
			writeInternalError(w, "signup failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handleLogin verifies credentials and issues a session token.
//
// POST /api/v1/auth/login
// Unknown emails and wrong passwords produce the same 401.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.auth.Login(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrValidation):
			writeBadRequest(w, err.Error())
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeUnauthorized(w, "invalid credentials")
		default:
			s.logger.Error("login failed", "error", err)
			writeInternalError(w, "login failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// forgotRequest is the request body for POST /auth/forgot.
type forgotRequest struct {
	Email string `json:"email"`
}

// handleForgot acknowledges a recovery request. The response is
// identical whether or not the email is registered.
func (s *Server) handleForgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.auth.ForgotLookup(r.Context(), req.Email); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if the account exists, use your recovery code to reset the password",
	})
}

// handleReset consumes a recovery code, sets a new password, and
// returns the replacement code.
//
// POST /api/v1/auth/reset
// A wrong code and an unknown email produce the same 401.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.auth.ForgotReset(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrValidation):
			writeBadRequest(w, err.Error())
		case errors.Is(err, auth.ErrInvalidRecoveryCode):
			writeUnauthorized(w, "invalid recovery code")
		default:
			s.logger.Error("reset failed", "error", err)
			writeInternalError(w, "reset failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// deleteRequest is the request body for POST /auth/delete.
type deleteRequest struct {
	Email string `json:"email"`
}

// handleDelete removes an account and everything owned by it.
//
// POST /api/v1/auth/delete
// Response 200: {"success": true}; unknown emails get a 404 with
// success false.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.auth.Delete(r.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, auth.ErrValidation):
			writeBadRequest(w, err.Error())
		case errors.Is(err, auth.ErrUserNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{
				"success": false,
				"error":   "User not found",
			})
		default:
			s.logger.Error("delete failed", "error", err)
			writeInternalError(w, "delete failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
