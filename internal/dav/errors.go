package dav

import (
	"encoding/xml"
	"errors"
	"log/slog"
	"net/http"

	"github.com/evcraddock/sharebox/internal/comment"
)

// Error is a protocol level failure rendered as a <d:error> body.
type Error struct {
	Status    int
	Exception string
	Message   string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Exception
	}
	return e.Exception + ": " + e.Message
}

// NotFound reports an unknown resource.
func NotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Exception: "NotFound", Message: msg}
}

// Forbidden reports an operation the current user may not perform.
func Forbidden(msg string) *Error {
	return &Error{Status: http.StatusForbidden, Exception: "Forbidden", Message: msg}
}

// BadRequest reports invalid input.
func BadRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Exception: "BadRequest", Message: msg}
}

// MethodNotAllowed reports an operation a resource does not support.
func MethodNotAllowed(msg string) *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Exception: "MethodNotAllowed", Message: msg}
}

// UnsupportedMediaType reports a request body in the wrong format.
func UnsupportedMediaType(msg string) *Error {
	return &Error{Status: http.StatusUnsupportedMediaType, Exception: "UnsupportedMediaType", Message: msg}
}

// ReportNotSupported reports a REPORT the resource cannot answer.
func ReportNotSupported() *Error {
	return &Error{
		Status:    http.StatusUnsupportedMediaType,
		Exception: "ReportNotSupported",
		Message:   "The {DAV:}report is not supported on this url",
	}
}

// NotAuthenticated reports a request without a user.
func NotAuthenticated(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Exception: "NotAuthenticated", Message: msg}
}

// toError maps domain errors to protocol errors.
func toError(err error) *Error {
	var de *Error
	switch {
	case errors.As(err, &de):
		return de
	case errors.Is(err, comment.ErrNotFound):
		return NotFound("Comment not found")
	case errors.Is(err, comment.ErrMessageTooLong):
		return BadRequest("Message exceeds allowed character limit of 1000")
	case errors.Is(err, comment.ErrInvalidInput):
		return BadRequest("Invalid input values")
	}
	return &Error{Status: http.StatusInternalServerError, Exception: "ServerError", Message: "Internal server error"}
}

type errorBody struct {
	XMLName   xml.Name `xml:"d:error"`
	XmlnsD    string   `xml:"xmlns:d,attr"`
	XmlnsS    string   `xml:"xmlns:s,attr"`
	Exception string   `xml:"s:exception"`
	Message   string   `xml:"s:message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	de := toError(err)
	if de.Status >= 500 {
		slog.ErrorContext(r.Context(), "dav request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if de.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="sharebox"`)
	}
	w.WriteHeader(de.Status)

	body := errorBody{
		XmlnsD:    nsDAV,
		XmlnsS:    nsServer,
		Exception: de.Exception,
		Message:   de.Message,
	}
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(body); err != nil {
		slog.Warn("writing dav error", "error", err)
	}
}
