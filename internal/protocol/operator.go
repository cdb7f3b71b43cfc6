// ABOUTME: Operator-submitted commands and their schema validation.
// ABOUTME: Invalid input is rejected per message instead of tearing down the connection.

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidInstruction is returned for operator input that fails
// validation. It is always recoverable.
var ErrInvalidInstruction = errors.New("invalid instruction")

// OperatorCommand queues one instruction on one turtle. RequestID is an
// optional client-chosen idempotency key.
type OperatorCommand struct {
	TurtleID  int         `json:"turtle_id"`
	Action    Instruction `json:"action"`
	RequestID string      `json:"request_id,omitempty"`
}

// QueueRequest is the HTTP body for queuing an instruction on a turtle
// named in the URL.
type QueueRequest struct {
	Action    Instruction `json:"action"`
	RequestID string      `json:"request_id,omitempty"`
}

const instructionSchema = `{
	"oneOf": [
		{"const": "Nothing"},
		{"type": "object", "additionalProperties": false, "required": ["MoveAndMine"],
		 "properties": {"MoveAndMine": {"enum": ["Forward", "Backward", "Up", "Down"]}}},
		{"type": "object", "additionalProperties": false, "required": ["MoveDirection"],
		 "properties": {"MoveDirection": {"$ref": "#/$defs/direction"}}},
		{"type": "object", "additionalProperties": false, "required": ["MoveAndMineLen"],
		 "properties": {"MoveAndMineLen": {"type": "integer", "minimum": 0}}},
		{"type": "object", "additionalProperties": false, "required": ["MovePoint"],
		 "properties": {"MovePoint": {"$ref": "#/$defs/position"}}},
		{"type": "object", "additionalProperties": false, "required": ["Turn"],
		 "properties": {"Turn": {"enum": ["Left", "Right"]}}},
		{"type": "object", "additionalProperties": false, "required": ["TurnToward"],
		 "properties": {"TurnToward": {"$ref": "#/$defs/direction"}}}
	]
}`

const schemaDefs = `{
	"direction": {"enum": ["North", "South", "East", "West"]},
	"position": {
		"type": "object",
		"required": ["x", "y", "z"],
		"properties": {
			"x": {"type": "integer"},
			"y": {"type": "integer"},
			"z": {"type": "integer"}
		}
	},
	"instruction": ` + instructionSchema + `
}`

const operatorCommandSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["turtle_id", "action"],
	"properties": {
		"turtle_id": {"type": "integer", "minimum": 1},
		"action": {"$ref": "#/$defs/instruction"},
		"request_id": {"type": "string", "maxLength": 128}
	},
	"$defs": ` + schemaDefs + `
}`

const queueRequestSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["action"],
	"properties": {
		"action": {"$ref": "#/$defs/instruction"},
		"request_id": {"type": "string", "maxLength": 128}
	},
	"$defs": ` + schemaDefs + `
}`

var (
	operatorCommandValidator = jsonschema.MustCompileString("operator_command.schema.json", operatorCommandSchema)
	queueRequestValidator    = jsonschema.MustCompileString("queue_request.schema.json", queueRequestSchema)
)

// ParseOperatorCommand validates and decodes an operator command frame.
func ParseOperatorCommand(data []byte) (*OperatorCommand, error) {
	if err := validate(operatorCommandValidator, data); err != nil {
		return nil, err
	}
	var cmd OperatorCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	return &cmd, nil
}

// ParseQueueRequest validates and decodes an HTTP queue request body.
func ParseQueueRequest(data []byte) (*QueueRequest, error) {
	if err := validate(queueRequestValidator, data); err != nil {
		return nil, err
	}
	var req QueueRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	return &req, nil
}

func validate(schema *jsonschema.Schema, data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrInvalidInstruction, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	return nil
}
