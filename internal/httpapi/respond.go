package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"moneta.app/internal/audit"
	"moneta.app/internal/auth"
	"moneta.app/internal/finance"
	"moneta.app/internal/notify"
	"moneta.app/internal/obs"
	"moneta.app/internal/paging"
	"moneta.app/internal/users"
)

var errBadID = errors.New("id must be a positive integer")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorCode(w, r, code, "", msg)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, code int, errCode, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if errCode != "" {
		payload["code"] = errCode
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// unauthorized answers 401 with a bearer challenge.
func unauthorized(w http.ResponseWriter, r *http.Request, errCode, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	writeErrorCode(w, r, http.StatusUnauthorized, errCode, msg)
}

// handleError maps service errors onto HTTP statuses.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, users.ErrInvalidInput), errors.Is(err, finance.ErrInvalidInput),
		errors.Is(err, paging.ErrInvalid), errors.Is(err, auth.ErrInvalidInput), errors.Is(err, errBadID):
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, users.ErrInvalidCredentials):
		writeErrorCode(w, r, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, auth.ErrTokenExpired):
		unauthorized(w, r, "token_expired", err.Error())
	case errors.Is(err, auth.ErrStaleSession):
		unauthorized(w, r, "stale_session", err.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthenticated):
		unauthorized(w, r, "invalid_token", "invalid token")
	case errors.Is(err, users.ErrBlocked):
		writeErrorCode(w, r, http.StatusForbidden, "blocked", err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeErrorCode(w, r, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, users.ErrNotFound), errors.Is(err, finance.ErrNotFound), errors.Is(err, notify.ErrNotFound):
		writeErrorCode(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, users.ErrVersionConflict):
		writeErrorCode(w, r, http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, users.ErrEmailTaken):
		writeErrorCode(w, r, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, auth.ErrCacheUnavailable):
		obs.Error("token_cache_unavailable", map[string]any{
			"request_id": audit.RequestIDFromContext(r.Context()),
			"err":        err,
		})
		writeErrorCode(w, r, http.StatusServiceUnavailable, "unavailable", "session store unavailable")
	default:
		obs.Error("request_failed", map[string]any{
			"request_id": audit.RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"err":        err,
		})
		writeErrorCode(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// bind decodes and validates a request body, answering 400 itself on
// failure.
func bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	if verrs := ValidateStruct(dst); len(verrs) > 0 {
		payload := map[string]any{
			"error":  "validation failed",
			"code":   "invalid_input",
			"fields": verrs,
		}
		if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusBadRequest, payload)
		return false
	}
	return true
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

// parseTime accepts RFC 3339 timestamps and bare dates (midnight UTC).
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
