package login

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/auth"
	httpmiddleware "github.com/wolfeidau/tsrunner/internal/http"
	"github.com/wolfeidau/tsrunner/internal/validate"
)

const maxBodyBytes = 64 << 10

// DeviceHeader carries the device fingerprint on requests without a body.
const DeviceHeader = "X-Device-Fingerprint"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username          string `json:"username" validate:"required,min=3,max=50"`
	Password          string `json:"password" validate:"required"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

// DeviceRequest is the optional body of refresh and logout.
type DeviceRequest struct {
	DeviceFingerprint string `json:"device_fingerprint"`
}

// Handlers serves the /auth endpoints.
type Handlers struct {
	svc       *Service
	limiter   *Limiter
	validator *validate.Validator
}

// NewHandlers creates the handlers. limiter may be nil to disable rate limiting.
func NewHandlers(svc *Service, limiter *Limiter, validator *validate.Validator) *Handlers {
	if validator == nil {
		validator = validate.New()
	}
	return &Handlers{svc: svc, limiter: limiter, validator: validator}
}

// Register adds the auth routes to mux. Refresh is gated on a refresh token
// and logout on an access token.
func (h *Handlers) Register(mux *http.ServeMux, gate *auth.Gate) {
	mux.Handle("POST /auth/login", http.HandlerFunc(h.Login))
	mux.Handle("POST /auth/refresh", gate.RequireRefresh()(http.HandlerFunc(h.Refresh)))
	mux.Handle("POST /auth/logout", gate.RequireAccess()(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /auth/sessions", gate.RequireAccess()(http.HandlerFunc(h.Sessions)))
}

// SessionsBody is the response of GET /auth/sessions.
type SessionsBody struct {
	Data []SessionView `json:"data"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !h.limiter.Allow(ip) {
		apierr.Write(w, r, ErrTooManyAttempts)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}

	var req LoginRequest
	if err := h.validator.DecodeAndValidate(body, &req); err != nil {
		apierr.Write(w, r, err)
		return
	}

	pair, err := h.svc.Login(r.Context(), req.Username, req.Password, deviceOf(r, req.DeviceFingerprint, ip))
	if err != nil {
		apierr.Write(w, r, err)
		return
	}

	apierr.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	req, err := readDeviceRequest(w, r)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}

	pair, err := h.svc.Refresh(r.Context(), auth.PrincipalFromContext(r.Context()), deviceOf(r, req.DeviceFingerprint, clientIP(r)))
	if err != nil {
		apierr.Write(w, r, err)
		return
	}

	apierr.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		apierr.Write(w, r, apierr.Unexpected(errors.New("logout reached without a principal")))
		return
	}

	req, err := readDeviceRequest(w, r)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}

	if err := h.svc.Logout(r.Context(), principal.UserID, deviceOf(r, req.DeviceFingerprint, clientIP(r))); err != nil {
		apierr.Write(w, r, err)
		return
	}

	apierr.WriteJSON(w, http.StatusOK, apierr.MessageBody{Msg: "ok"})
}

// Sessions lists the caller's sessions. The current device is identified by
// the X-Device-Fingerprint header, falling back to the User-Agent.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		apierr.Write(w, r, apierr.Unexpected(errors.New("sessions reached without a principal")))
		return
	}

	device := deviceOf(r, r.Header.Get(DeviceHeader), clientIP(r))
	views, err := h.svc.Sessions(r.Context(), principal.UserID, device)
	if err != nil {
		apierr.Write(w, r, err)
		return
	}

	apierr.WriteJSON(w, http.StatusOK, SessionsBody{Data: views})
}

// deviceOf prefers the fingerprint from the body and falls back to the
// User-Agent header.
func deviceOf(r *http.Request, fingerprint, ip string) Device {
	if fingerprint == "" {
		fingerprint = r.UserAgent()
	}
	return Device{Fingerprint: fingerprint, IPAddress: ip}
}

func clientIP(r *http.Request) string {
	if ip := httpmiddleware.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return httpmiddleware.ExtractClientIP(r, false)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierr.ServiceStatus(http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, apierr.Service("failed to read request body")
	}
	return body, nil
}

// readDeviceRequest decodes an optional body; an empty one is allowed.
func readDeviceRequest(w http.ResponseWriter, r *http.Request) (*DeviceRequest, error) {
	body, err := readBody(w, r)
	if err != nil {
		return nil, err
	}

	var req DeviceRequest
	if len(bytes.TrimSpace(body)) == 0 {
		return &req, nil
	}
	if err := validate.Decode(body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
