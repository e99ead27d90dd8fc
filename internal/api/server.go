// Package api serves read-only lookups over a loaded lCRF model.
package api

import (
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/lcrf/internal/dump"
	"github.com/samcharles93/lcrf/pkg/lcrf"
)

// Server answers queries against one model. The reader is shared by all
// requests and owned by the caller.
type Server struct {
	model *lcrf.Reader
	name  string
}

func NewServer(model *lcrf.Reader, name string) *Server {
	return &Server{model: model, name: name}
}

// Register mounts the model routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/model", s.handleModel)

	labels := entityKind{
		kind:     "label",
		all:      s.model.Labels,
		toString: s.model.LabelToString,
		toID:     s.model.StringToLabel,
		refs:     s.model.LabelRefs,
	}
	attrs := entityKind{
		kind:     "attribute",
		all:      s.model.Attributes,
		toString: s.model.AttributeToString,
		toID:     s.model.StringToAttribute,
		refs:     s.model.AttributeRefs,
	}
	e.GET("/v1/labels", labels.handleList)
	e.GET("/v1/labels/:id", labels.handleGet)
	e.GET("/v1/labels/:id/refs", labels.handleRefs)
	e.GET("/v1/attributes", attrs.handleList)
	e.GET("/v1/attributes/:id", attrs.handleGet)
	e.GET("/v1/attributes/:id/refs", attrs.handleRefs)

	e.GET("/v1/features/:id", s.handleFeature)
}

func (s *Server) handleModel(c *echo.Context) error {
	sum, err := dump.Summarize(s.model)
	if err != nil {
		return writeModelError(c, err)
	}
	return c.JSON(http.StatusOK, ModelResponse{Name: s.name, Summary: sum})
}

func (s *Server) handleFeature(c *echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	w, err := s.model.Weight(id)
	if err != nil {
		return writeModelError(c, err)
	}
	return c.JSON(http.StatusOK, FeatureResponse{ID: id, Weight: w})
}

// entityKind binds the label or attribute half of the reader API.
type entityKind struct {
	kind     string
	all      func() iter.Seq2[int, string]
	toString func(int) (string, bool)
	toID     func(string) (int, bool)
	refs     func(int) (lcrf.FeatureRefs, bool, error)
}

func (k entityKind) handleList(c *echo.Context) error {
	if name := c.QueryParam("name"); name != "" {
		id, ok := k.toID(name)
		if !ok {
			return writeNotFound(c, k.kind+" "+strconv.Quote(name)+" not found")
		}
		return c.JSON(http.StatusOK, Entity{ID: id, Name: name})
	}

	out := []Entity{}
	for id, name := range k.all() {
		out = append(out, Entity{ID: id, Name: name})
	}
	return c.JSON(http.StatusOK, ListResponse{Object: "list", Data: out})
}

func (k entityKind) handleGet(c *echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	name, ok := k.toString(id)
	if !ok {
		return writeNotFound(c, k.kind+" "+strconv.Itoa(id)+" not found")
	}
	return c.JSON(http.StatusOK, Entity{ID: id, Name: name})
}

func (k entityKind) handleRefs(c *echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	refs, ok, err := k.refs(id)
	if err != nil {
		return writeModelError(c, err)
	}
	if !ok {
		return writeNotFound(c, "model has no "+k.kind+" references")
	}
	name, _ := k.toString(id)
	return c.JSON(http.StatusOK, RefsResponse{ID: id, Name: name, Features: refs.IDs()})
}

// parseID reads the :id path parameter.
func parseID(c *echo.Context) (int, error) {
	raw := c.Param("id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func writeModelError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, lcrf.ErrIDOutOfRange):
		return writeNotFound(c, err.Error())
	default:
		return writeError(c, http.StatusInternalServerError, "model_error", err.Error())
	}
}
