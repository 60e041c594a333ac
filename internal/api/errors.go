package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hirepipe/internal/pipeline"
)

func statusOf(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindNotFound:
		return http.StatusNotFound
	case pipeline.KindConflict:
		return http.StatusConflict
	case pipeline.KindInvalidInput:
		return http.StatusBadRequest
	case pipeline.KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeError renders a pipeline error as {"error": reason, "detail": message, ...details}.
// Internal causes never reach the client.
func writeError(c *gin.Context, err error) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) || perr.Kind == pipeline.KindInternal {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "detail": "internal server error"})
		return
	}

	body := gin.H{"error": perr.Reason, "detail": perr.Message}
	for k, v := range perr.Details {
		body[k] = v
	}
	c.JSON(statusOf(perr.Kind), body)
}

func badRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": detail})
}

// pathID parses the :id segment; it writes the 400 itself on failure.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryID parses an optional integer query parameter.
func queryID(c *gin.Context, name string) (*int64, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, name+" must be an integer")
		return nil, false
	}
	return &id, true
}

func queryBool(c *gin.Context, name string) (*bool, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(c, name+" must be a boolean")
		return nil, false
	}
	return &v, true
}
