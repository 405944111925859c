package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"trid/internal/flow"
	"trid/internal/gateway"
	"trid/internal/session"
)

// FlowHandler serves the login, signup, activation and password forms.
type FlowHandler struct {
	backend flow.Backend
	flows   *flow.Registry
	logger  *slog.Logger
}

// NewFlowHandler creates a FlowHandler.
func NewFlowHandler(backend flow.Backend, flows *flow.Registry, logger *slog.Logger) *FlowHandler {
	return &FlowHandler{backend: backend, flows: flows, logger: logger}
}

// ShowLogin handles GET /login. OAuth failures arrive as ?error=&message=.
func (h *FlowHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	v := h.current(r, flow.KindLogin)
	if code := r.URL.Query().Get("error"); code != "" {
		v = v.with("error", code).with("message", r.URL.Query().Get("message"))
	}
	writeJSON(w, http.StatusOK, v)
}

// SubmitLogin handles POST /login.
func (h *FlowHandler) SubmitLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeInput(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	p := session.FromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.submit(w, r, flow.KindLogin, flow.Login(h.backend, p, gateway.Credentials{
		Email:    payload.Email,
		Password: payload.Password,
	}))
}

// ShowSignup handles GET /signup.
func (h *FlowHandler) ShowSignup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current(r, flow.KindSignup))
}

// SubmitSignup handles POST /signup.
func (h *FlowHandler) SubmitSignup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeInput(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	h.submit(w, r, flow.KindSignup, flow.Signup(h.backend, gateway.Registration{
		FullName: payload.FullName,
		Email:    payload.Email,
		Password: payload.Password,
	}))
}

// ShowForgotPassword handles GET /forgot-password.
func (h *FlowHandler) ShowForgotPassword(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current(r, flow.KindForgotPassword))
}

// SubmitForgotPassword handles POST /forgot-password.
func (h *FlowHandler) SubmitForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeInput(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	h.submit(w, r, flow.KindForgotPassword, flow.ForgotPassword(h.backend, payload.Email))
}

// ShowActivation handles GET /activate-account. A token in the query string is
// submitted automatically, once per distinct token.
func (h *FlowHandler) ShowActivation(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeJSON(w, http.StatusOK, h.current(r, flow.KindActivation))
		return
	}

	p := session.FromContext(r.Context())
	machine := h.flows.Machine(sessionHash(p), flow.KindActivation)
	st, ran, err := machine.RunOnce(r.Context(), token, flow.Activate(h.backend, token))
	if err != nil {
		h.rejected(w, p, flow.KindActivation, machine.State(), err)
		return
	}

	v := newView(string(flow.KindActivation), p).withState(st).with("token", token)
	if !ran {
		writeJSON(w, http.StatusOK, v)
		return
	}
	writeJSON(w, stateStatus(st), v)
}

// SubmitActivation handles POST /activate-account.
func (h *FlowHandler) SubmitActivation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := decodeInput(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	h.submit(w, r, flow.KindActivation, flow.Activate(h.backend, payload.Token))
}

// ShowResetPassword handles GET /reset-password, prefilling the token from the query string.
func (h *FlowHandler) ShowResetPassword(w http.ResponseWriter, r *http.Request) {
	v := h.current(r, flow.KindResetPassword)
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		v = v.with("token", token)
	}
	writeJSON(w, http.StatusOK, v)
}

// SubmitResetPassword handles POST /reset-password. The token may come from the body or the query string.
func (h *FlowHandler) SubmitResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeInput(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}
	if strings.TrimSpace(payload.Token) == "" {
		payload.Token = r.URL.Query().Get("token")
	}

	h.submit(w, r, flow.KindResetPassword, flow.ResetPassword(h.backend, payload.Token, payload.Password))
}

func (h *FlowHandler) current(r *http.Request, kind flow.Kind) view {
	p := session.FromContext(r.Context())
	st := h.flows.Machine(sessionHash(p), kind).State()
	return newView(string(kind), p).withState(st)
}

func (h *FlowHandler) submit(w http.ResponseWriter, r *http.Request, kind flow.Kind, sub flow.Submission) {
	p := session.FromContext(r.Context())
	machine := h.flows.Machine(sessionHash(p), kind)

	st, err := machine.Run(r.Context(), sub)
	if err != nil {
		h.rejected(w, p, kind, machine.State(), err)
		return
	}
	if st.Status() == flow.StatusError && st.Cause() == flow.CauseTransport && errors.Is(r.Context().Err(), context.Canceled) {
		h.logger.Debug("form submission abandoned by client", "flow", kind)
	}
	writeJSON(w, stateStatus(st), newView(string(kind), p).withState(st))
}

func (h *FlowHandler) rejected(w http.ResponseWriter, p *session.Provider, kind flow.Kind, st flow.State, err error) {
	switch {
	case errors.Is(err, flow.ErrInFlight), errors.Is(err, flow.ErrCompleted), errors.Is(err, flow.ErrClosed):
		writeJSON(w, http.StatusConflict, newView(string(kind), p).withState(st).with("error", err.Error()))
	default:
		h.logger.Error("form submission", "flow", kind, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// stateStatus maps a settled form state to its HTTP status.
func stateStatus(st flow.State) int {
	switch {
	case st.Status() != flow.StatusError:
		return http.StatusOK
	case st.Cause() == flow.CauseTransport:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func sessionHash(p *session.Provider) string {
	if p == nil {
		return ""
	}
	return p.KeyHash()
}
