package models

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/xeipuuv/gojsonschema"
)

// payloadSchema is the JSON schema every outbound payload must satisfy.
// The client rejects violations before any network call.
const payloadSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["type", "message", "sessionId", "source", "chatId", "timestamp"],
	"properties": {
		"type": {
			"type": "string",
			"enum": ["message", "health_check"]
		},
		"message": {
			"type": "string",
			"minLength": 1,
			"maxLength": 10000
		},
		"sessionId": {
			"type": "string",
			"minLength": 1
		},
		"source": {
			"type": "string",
			"minLength": 1
		},
		"chatId": {
			"type": "integer",
			"minimum": 1
		},
		"timestamp": {
			"type": "string",
			"format": "date-time"
		},
		"requestId": {
			"type": "string"
		},
		"toolSelection": {
			"type": "array",
			"items": {"type": "string"}
		},
		"metadata": {
			"type": "object"
		}
	}
}`

var compiledPayloadSchema = gojsonschema.NewSchemaLoader()

var payloadSchemaValidator *gojsonschema.Schema

func init() {
	schema, err := compiledPayloadSchema.Compile(gojsonschema.NewStringLoader(payloadSchema))
	if err != nil {
		panic(fmt.Sprintf("payload schema does not compile: %v", err))
	}
	payloadSchemaValidator = schema
}

// Validate checks the payload against the delivery schema. The returned
// error aggregates every violation so callers can surface all of them at
// once. Validation is idempotent: a payload built by the constructors
// validates cleanly, and re-validating a validated payload succeeds.
func (p WebhookPayload) Validate() error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload for validation: %w", err)
	}

	result, err := payloadSchemaValidator.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var violations error
	for _, desc := range result.Errors() {
		violations = multierror.Append(violations, fmt.Errorf("%s: %s", desc.Field(), desc.Description()))
	}
	return violations
}
