package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/lcrf/internal/dump"
)

// ModelResponse is the body of GET /v1/model.
type ModelResponse struct {
	Name string `json:"name,omitempty"`
	dump.Summary
}

// Entity is a label or attribute.
type Entity struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ListResponse wraps every entity of one kind.
type ListResponse struct {
	Object string   `json:"object"`
	Data   []Entity `json:"data"`
}

// RefsResponse lists the feature ids referenced by one entity.
type RefsResponse struct {
	ID       int    `json:"id"`
	Name     string `json:"name,omitempty"`
	Features []int  `json:"features"`
}

// FeatureResponse is the weight of one feature.
type FeatureResponse struct {
	ID     int     `json:"id"`
	Weight float64 `json:"weight"`
}

// ErrorBody describes a failed request. Type is a stable machine-readable code.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, ErrorResponse{Error: ErrorBody{Type: errType, Message: msg}})
}
