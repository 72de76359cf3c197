package registry

import (
	"bytes"
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/ir"
)

const schemaURL = "capgen-registry.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsv.Schema
	schemaErr      error
)

// missingProps pulls property names out of a "required" failure message,
// e.g. missing properties: 'self_generic', 'methods'
var missingProps = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'`)

// Schema reflects the JSON Schema of the registry document from the Go
// types. Unknown properties are allowed so older readers accept files
// written by newer minor versions.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch t {
			case reflect.TypeOf(ir.QualifiedPath(nil)), reflect.TypeOf(ir.TypeExpression{}):
				return &jsonschema.Schema{Type: "string"}
			}
			return nil
		},
	}
	return r.Reflect(&Envelope{})
}

func compileSchema() (*jsv.Schema, error) {
	schemaOnce.Do(func() {
		data, err := json.Marshal(Schema())
		if err != nil {
			schemaErr = errors.Wrap(err, "failed to encode registry schema")
			return
		}
		compiler := jsv.NewCompiler()
		compiler.Draft = jsv.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader(data)); err != nil {
			schemaErr = errors.Wrap(err, "failed to add registry schema")
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = errors.Wrap(schemaErr, "failed to compile registry schema")
		}
	})
	return compiledSchema, schemaErr
}

// validateDocument checks the raw document against the schema. Missing
// required properties become ErrMissingField naming the JSON pointer; any
// other violation is ErrDecode.
func validateDocument(doc interface{}) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsv.ValidationError
	if !errors.As(err, &ve) {
		return errors.MarkAs(errors.Wrap(err, "invalid registry"), ErrDecode)
	}

	leaves := leafErrors(ve)
	for _, leaf := range leaves {
		if !strings.HasSuffix(leaf.KeywordLocation, "/required") {
			continue
		}
		var pointers []string
		for _, m := range missingProps.FindAllStringSubmatch(leaf.Message, -1) {
			pointers = append(pointers, leaf.InstanceLocation+"/"+m[1])
		}
		if len(pointers) > 0 {
			return errors.MarkAs(errors.Newf("missing field %s", strings.Join(pointers, ", ")), ErrMissingField)
		}
	}

	leaf := leaves[0]
	where := leaf.InstanceLocation
	if where == "" {
		where = "/"
	}
	return errors.MarkAs(errors.Newf("invalid registry at %s: %s", where, leaf.Message), ErrDecode)
}

func leafErrors(ve *jsv.ValidationError) []*jsv.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsv.ValidationError{ve}
	}
	var out []*jsv.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leafErrors(c)...)
	}
	return out
}
