// Package schemas embeds the HTTP API contract.
package schemas

import _ "embed"

// OpenAPISpec is the OpenAPI 3 document served routes are validated against.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
