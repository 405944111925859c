package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"

	"trid/internal/flow"
	"trid/internal/identity"
	"trid/internal/session"
)

const maxJSONBodyBytes int64 = 64 << 10

var errPayloadTooLarge = errors.New("payload too large")

// view is the JSON descriptor a page renders from.
type view struct {
	View     string           `json:"view"`
	Identity *identity.Public `json:"identity"`
	State    *flow.State      `json:"state,omitempty"`
	Data     map[string]any   `json:"data,omitempty"`
}

func newView(name string, p *session.Provider) view {
	v := view{View: name}
	if p == nil {
		return v
	}
	if id, ok := p.Current(); ok {
		public := id.Public()
		v.Identity = &public
	}
	return v
}

func (v view) withState(st flow.State) view {
	v.State = &st
	return v
}

func (v view) with(key string, value any) view {
	if v.Data == nil {
		v.Data = make(map[string]any)
	}
	v.Data[key] = value
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	limited := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() {
		_ = limited.Close()
	}()

	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w (max %d bytes)", errPayloadTooLarge, maxErr.Limit)
		}
		return err
	}
	return nil
}

// decodeInput reads a form post sent as JSON, url-encoded fields or multipart fields.
// Fields are matched to dst by their json tags.
func decodeInput(w http.ResponseWriter, r *http.Request, dst any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/x-www-form-urlencoded" && mediaType != "multipart/form-data" {
		return decodeJSONBody(w, r, dst)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	parse := r.ParseForm
	if mediaType == "multipart/form-data" {
		parse = func() error { return r.ParseMultipartForm(maxJSONBodyBytes) }
	}
	if err := parse(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w (max %d bytes)", errPayloadTooLarge, maxErr.Limit)
		}
		return err
	}

	fields := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		fields[key] = r.PostForm.Get(key)
	}
	return decodeInto(fields, dst)
}

func decodeInto(raw map[string]string, payload any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, payload)
}

func writeJSONError(w http.ResponseWriter, err error) {
	if errors.Is(err, errPayloadTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	// Return generic message to avoid leaking internal JSON parsing details
	writeError(w, http.StatusBadRequest, "invalid request body")
}

func clientIPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
