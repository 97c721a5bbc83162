// Package openapi embeds the simulation API description for runtime
// distribution.
package openapi

import _ "embed"

//go:embed panelbench.yaml
var apiSpec []byte

// Spec returns a defensive copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), apiSpec...)
}
