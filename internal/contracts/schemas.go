package contracts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemasFS embed.FS

// ListingV1 is the schema the assembled listing document must satisfy before it is persisted.
const ListingV1 = "listing.v1.json"

var compiledSchemas = make(map[string]*jsonschema.Schema)

func init() {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	err := fs.WalkDir(schemasFS, "schemas", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		b, err := schemasFS.ReadFile(path)
		if err != nil {
			return err
		}
		name := strings.TrimPrefix(path, "schemas/")
		if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
			return fmt.Errorf("add schema resource %s: %w", name, err)
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			return fmt.Errorf("compile schema %s: %w", name, err)
		}
		compiledSchemas[name] = schema
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("contracts: failed to load schemas")
	}
}

// Validate checks doc against the named schema. doc is round-tripped through JSON so
// Go values (time.Time, uuid.UUID, typed ints) are seen the way a document store sees them.
func Validate(name string, doc interface{}) error {
	schema, ok := compiledSchemas[name]
	if !ok {
		return fmt.Errorf("schema %q not found", name)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("document is not JSON-encodable: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("document is not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("JSON schema validation failed: %w", err)
	}
	return nil
}

// ValidateListingDocument validates an assembled listing document.
func ValidateListingDocument(doc map[string]interface{}) error {
	return Validate(ListingV1, doc)
}
