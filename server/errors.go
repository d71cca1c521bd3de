package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/nvr-ai/tumorclassifier/images"
	"github.com/nvr-ai/tumorclassifier/inference"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RequestError is a client error with the status and message to reply with.
type RequestError struct {
	Code    int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// Upload validation errors, checked in this order.
var (
	ErrNoImageProvided = &RequestError{Code: http.StatusBadRequest, Message: "No image file provided"}
	ErrNoFileSelected  = &RequestError{Code: http.StatusBadRequest, Message: "No file selected"}
	ErrInvalidFormat   = &RequestError{
		Code:    http.StatusBadRequest,
		Message: "Invalid file format. Please upload JPEG, PNG, or DICOM files.",
	}
)

// NewFileTooLargeError reports a body over limit bytes.
func NewFileTooLargeError(limit int64) *RequestError {
	return &RequestError{
		Code:    http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("File too large. Maximum upload size is %s.", formatSize(limit)),
	}
}

func formatSize(n int64) string {
	const mb = 1 << 20
	if n >= mb && n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}

// statusFor maps an error to the reply status and message.
func statusFor(err error) (int, string) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Code, reqErr.Message
	}

	switch {
	case errors.Is(err, images.ErrPreprocess):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, inference.ErrNoModelSucceeded):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

// abortWithError records err on the context and replies with its JSON envelope.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	code, msg := statusFor(err)
	c.AbortWithStatusJSON(code, ErrorResponse{Error: msg})
}

// Error replies for errors a handler recorded without writing a response.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		code, msg := statusFor(err.Err)
		c.JSON(code, ErrorResponse{Error: msg})
	}
}

// isBodyTooLarge reports whether err comes from an exhausted MaxBytesReader.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
