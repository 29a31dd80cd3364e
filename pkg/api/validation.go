package api

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
)

//go:embed openapi.yaml
var openapiSpec []byte

// OpenAPI returns the embedded API document.
func OpenAPI() []byte { return openapiSpec }

// requestValidator checks requests against the embedded OpenAPI document.
type requestValidator struct {
	doc     *openapi3.T
	options *openapi3filter.Options
}

func newRequestValidator() (*requestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi: %w", err)
	}
	return &requestValidator{
		doc: doc,
		options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			MultiError:         false,
		},
	}, nil
}

// Validate checks r against the operation at the templated path. The body must
// be re-readable; callers buffer it first.
func (v *requestValidator) Validate(ctx context.Context, r *http.Request, path string, pathParams map[string]string) error {
	item := v.doc.Paths.Find(path)
	if item == nil {
		return fmt.Errorf("no openapi path %s", path)
	}
	op := item.GetOperation(r.Method)
	if op == nil {
		return fmt.Errorf("no openapi operation %s %s", r.Method, path)
	}

	return openapi3filter.ValidateRequest(ctx, &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route: &routers.Route{
			Spec:      v.doc,
			Path:      path,
			PathItem:  item,
			Method:    r.Method,
			Operation: op,
		},
		Options: v.options,
	})
}
