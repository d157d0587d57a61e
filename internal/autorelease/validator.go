package autorelease

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/models"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrValidation can be used with errors.Is to detect rule validation failures.
var ErrValidation = errors.New("validation failed")

// Validator checks rule conditions against the schema of their trigger.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles one schema per trigger from the embedded schemas dir.
func NewValidator() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	schemas := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		trigger := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		data, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		id := "https://gighire.dev/schemas/auto-release/" + trigger
		schemas[trigger], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", trigger, err)
		}
	}
	for _, t := range []string{models.TriggerTimeBased, models.TriggerStatusBased, models.TriggerHybrid} {
		if schemas[t] == nil {
			return nil, fmt.Errorf("missing schema for trigger %q", t)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// ValidateConditions performs a hard reject of raw conditions JSON.
func (v *Validator) ValidateConditions(trigger string, raw json.RawMessage) error {
	schema, ok := v.schemas[trigger]
	if !ok {
		return apperr.Validation(fmt.Sprintf("unknown trigger %q", trigger))
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperr.Validation("conditions are not valid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return apperr.Wrap(apperr.ReasonValidation, "invalid conditions for "+trigger,
			fmt.Errorf("%w: %v", ErrValidation, err)).With("schemaError", schemaMessage(err))
	}
	return nil
}

// ValidateRule checks a fully built rule, e.g. one loaded from config.
func (v *Validator) ValidateRule(r *models.AutoReleaseRule) error {
	if strings.TrimSpace(r.Name) == "" {
		return apperr.Validation("rule name is required")
	}
	raw, err := json.Marshal(r.Conditions)
	if err != nil {
		return apperr.Internal("encode conditions", err)
	}
	return v.ValidateConditions(r.Trigger, raw)
}

func schemaMessage(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		return strings.TrimSpace(leaf.InstanceLocation + " " + leaf.Message)
	}
	return err.Error()
}
