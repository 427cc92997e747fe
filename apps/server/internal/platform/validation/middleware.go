// Package validation checks operator API requests against schemas/openapi.yaml.
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// InvalidRequestKind is the error kind of a 400 produced by the middleware.
const InvalidRequestKind = "InvalidRequest"

// New builds a Gin middleware validating requests against the OpenAPI document
// in spec. Routes the document does not describe pass through untouched; the
// webhook endpoints rely on that, since their bodies belong to GitHub and SNS.
func New(spec []byte) (gin.HandlerFunc, error) {
	router, err := newRouter(spec)
	if err != nil {
		return nil, err
	}
	opts := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(c *gin.Context) {
		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    opts,
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": describe(err), "kind": InvalidRequestKind})
			return
		}
		c.Next()
	}, nil
}

func newRouter(spec []byte) (routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("openapi router: %w", err)
	}
	return router, nil
}

// describe renders a validation failure as one line naming the offending
// parameter or body field.
func describe(err error) string {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return err.Error()
	}
	reason := reqErr.Reason
	var schemaErr *openapi3.SchemaError
	switch {
	case errors.As(reqErr.Err, &schemaErr):
		reason = schemaErr.Reason
		if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
			reason = strings.Join(ptr, ".") + ": " + reason
		}
	case reqErr.Err != nil && reason == "":
		reason = reqErr.Err.Error()
	}

	switch {
	case reqErr.Parameter != nil:
		return fmt.Sprintf("%s parameter %q: %s", reqErr.Parameter.In, reqErr.Parameter.Name, reason)
	case reqErr.RequestBody != nil:
		return "request body: " + reason
	default:
		return reason
	}
}
