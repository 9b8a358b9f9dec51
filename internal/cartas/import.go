package cartas

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed import_schema.json
var importSchemaJSON []byte

var (
	importSchemaOnce sync.Once
	importSchema     *jsonschema.Schema
	importSchemaErr  error
)

func compiledImportSchema() (*jsonschema.Schema, error) {
	importSchemaOnce.Do(func() {
		importSchema, importSchemaErr = jsonschema.NewCompiler().Compile(importSchemaJSON)
	})
	return importSchema, importSchemaErr
}

// ImportRequest is the bulk import body.
type ImportRequest struct {
	Cartas []CreateInput `json:"cartas"`
}

// ParseImport validates raw against the import schema and decodes it.
func ParseImport(raw []byte) ([]CreateInput, error) {
	schema, err := compiledImportSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile import schema: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrValidation, err)
	}

	result := schema.Validate(doc)
	if !result.IsValid() {
		var msgs []string
		for field, e := range result.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, e.Error()))
		}
		sort.Strings(msgs)
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
	}

	var req ImportRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return req.Cartas, nil
}

// ImportFailure is one rejected item of an import.
type ImportFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Created []int           `json:"created"`
	Failed  []ImportFailure `json:"failed"`
}

// Import creates every item independently; one failure does not stop the rest.
func (s *Service) Import(ctx context.Context, actor string, items []CreateInput) ImportResult {
	res := ImportResult{Created: []int{}, Failed: []ImportFailure{}}
	for i, in := range items {
		c, err := s.create(ctx, actor, in, map[string]interface{}{"source": "import"})
		if err != nil {
			res.Failed = append(res.Failed, ImportFailure{Index: i, Error: err.Error()})
			continue
		}
		res.Created = append(res.Created, c.LetterNumber)
	}
	return res
}
