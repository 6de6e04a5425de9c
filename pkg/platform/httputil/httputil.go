package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "certreg/pkg/domain-errors"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error            string  `json:"error"`
	ErrorDescription string  `json:"error_description,omitempty"`
	RegistryCode     *uint32 `json:"registry_code,omitempty"`
}

// StatusFor maps a domain code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvalidCourse:
		return http.StatusBadRequest
	case dErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case dErrors.CodeUnauthorized, dErrors.CodeForbidden, dErrors.CodeNotAdmin:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeDuplicateID:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error body. Internal errors never expose
// their description.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorWithCode(w, err, nil)
}

// WriteErrorWithCode is WriteError with a numeric registry code attached.
func WriteErrorWithCode(w http.ResponseWriter, err error, registryCode *uint32) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)
	if status == http.StatusInternalServerError {
		code = dErrors.CodeInternal
	}

	body := ErrorResponse{Error: string(code), RegistryCode: registryCode}
	if status != http.StatusInternalServerError {
		body.ErrorDescription = dErrors.Message(err)
	}
	WriteJSON(w, status, body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes a bounded JSON body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return dErrors.New(dErrors.CodeBadRequest, "request body is required")
		}
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	return nil
}
