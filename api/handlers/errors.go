package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/mediagrab-go/internal/domain"
)

// StatusClientClosedRequest is logged when the caller went away before the job finished
const StatusClientClosedRequest = 499

// ErrorResponse is the body of every failed API call. It never carries tool output.
type ErrorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind"`
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrArtifactNotReady):
		return http.StatusConflict
	}

	switch domain.KindOf(err) {
	case domain.ErrorKindInput:
		return http.StatusBadRequest
	case domain.ErrorKindMetadata:
		return http.StatusUnprocessableEntity
	case domain.ErrorKindDownload, domain.ErrorKindArchive:
		return http.StatusBadGateway
	case domain.ErrorKindCancelled:
		return StatusClientClosedRequest
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	body := ErrorResponse{Error: domain.PublicMessage(err), Kind: domain.KindOf(err)}
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		body.Error = domain.ErrJobNotFound.Error()
	case errors.Is(err, domain.ErrArtifactNotReady):
		body.Error = domain.ErrArtifactNotReady.Error()
	}
	c.AbortWithStatusJSON(StatusFor(err), body)
}

func respondInput(c *gin.Context, format string, args ...interface{}) {
	respondError(c, domain.InputError(format, args...))
}
