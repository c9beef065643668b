// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/holomush/accounts/internal/account"
)

type handlers struct {
	accounts AccountService
	auth     AuthService
	logger   *slog.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Password string `json:"password"`
}

func (h *handlers) signup(w http.ResponseWriter, r *http.Request) {
	var in account.SignupInput
	if !h.bind(w, r, &in) {
		return
	}
	res := h.accounts.Signup(r.Context(), account.SelfRegistration, in)
	writeResult(w, r, created(res), res)
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !h.bind(w, r, &in) {
		return
	}
	res := h.auth.Login(r.Context(), in.Email, in.Password)
	writeResult(w, r, unauthorizedOnFailure(res), res)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		writeResult(w, r, http.StatusUnauthorized, account.Failure(account.CodeNotFound, MsgUnauthorized))
		return
	}
	res := h.auth.Refresh(r.Context(), raw)
	writeResult(w, r, unauthorizedOnFailure(res), res)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	res := h.auth.Logout(r.Context(), claims)
	writeResult(w, r, statusFor(res), res)
}

func (h *handlers) forgot(w http.ResponseWriter, r *http.Request) {
	var in forgotRequest
	if !h.bind(w, r, &in) {
		return
	}
	res := h.auth.ForgotPassword(r.Context(), in.Email)
	writeResult(w, r, statusFor(res), res)
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	var in resetRequest
	if !h.bind(w, r, &in) {
		return
	}
	res := h.auth.ResetPassword(r.Context(), chi.URLParam(r, "token"), in.Password)
	writeResult(w, r, badRequestOnFailure(res), res)
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	res := h.accounts.List(r.Context())
	writeResult(w, r, inBody(res), res)
}

func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in account.SignupInput
	if !h.bind(w, r, &in) {
		return
	}
	res := h.accounts.Signup(r.Context(), actor, in)
	writeResult(w, r, created(res), res)
}

func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res := h.accounts.Get(r.Context(), id)
	writeResult(w, r, inBody(res), res)
}

func (h *handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in account.UpdateInput
	if !h.bind(w, r, &in) {
		return
	}
	res := h.accounts.Update(r.Context(), actor, id, in)
	writeResult(w, r, inBody(res), res)
}

func (h *handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res := h.accounts.Delete(r.Context(), actor, id)
	writeResult(w, r, inBody(res), res)
}

func (h *handlers) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decode(r, dst); err != nil {
		h.logger.DebugContext(r.Context(), "request body rejected", "path", r.URL.Path, "error", err)
		writeResult(w, r, http.StatusBadRequest, account.Failure(account.CodeMissingInput, MsgInvalidBody))
		return false
	}
	return true
}

// actor returns the authenticated caller's account id.
func (h *handlers) actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeResult(w, r, http.StatusUnauthorized, account.Failure(account.CodeNotFound, MsgUnauthorized))
		return 0, false
	}
	id, err := claims.AccountID()
	if err != nil {
		h.logger.DebugContext(r.Context(), "token subject rejected", "subject", claims.Subject)
		writeResult(w, r, http.StatusUnauthorized, account.Failure(account.CodeNotFound, MsgUnauthorized))
		return 0, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeResult(w, r, http.StatusBadRequest, account.Failure(account.CodeMissingInput, MsgInvalidID))
		return 0, false
	}
	return id, true
}
