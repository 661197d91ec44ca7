package scene

import (
	"github.com/invopop/jsonschema"
)

// JSONSchema describes the scene file format, for editors and external validation.
func JSONSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}
