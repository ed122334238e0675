package supply

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/channels-v1.json
var channelSchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("channels-v1.json",
		strings.NewReader(channelSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("channels-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateChannels prüft eine Kanaltabelle im JSON-Format
func (v *Validator) ValidateChannels(data []byte) error {
	var table interface{}
	if err := json.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(table); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

func (v *Validator) ValidateEntries(entries []ChannelEntry) error {
	data, err := json.Marshal(channelFile{Version: 1, Channels: entries})
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}

	return v.ValidateChannels(data)
}
