package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/softsdn/network-service/internal/platform/apierr"
)

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeAPIError maps a *apierr.Error to its HTTP status and writes it.
func writeAPIError(w http.ResponseWriter, err error) {
	if ae, ok := err.(*apierr.Error); ok {
		writeError(w, apierr.HTTPStatus(ae.Kind), err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func errValidation(msg string) error   { return apierr.New(apierr.Validation, msg) }
func errAuth(msg string) error         { return apierr.New(apierr.Authentication, msg) }
func errAuthz(permission string) error { return apierr.New(apierr.Authorization, "missing entitlement: "+permission) }

func writeNotFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": msg})
}

// pathSegments splits the remainder of r.URL.Path after prefix into
// non-empty segments, the same manual-splitting idiom this codebase's
// account-resource sub-routing uses.
func pathSegments(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
