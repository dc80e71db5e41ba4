package command

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const subscribeSchema = "Subscribe"

// Wire field names per payload. encoding/json matches keys case-insensitively,
// so any other spelling of one of these is rejected before decoding.
var wireFields = map[string][]string{
	string(KindMoveTo):   {"CommandType", "PawnID", "X", "Z"},
	string(KindAttack):   {"CommandType", "PawnID", "TargetID"},
	string(KindInteract): {"CommandType", "PawnID", "TargetID", "Interaction"},
	string(KindUseItem):  {"CommandType", "PawnID", "ItemID"},
	subscribeSchema:      {"command", "pawn_id"},
}

var (
	// ErrMalformed indicates the payload is not a JSON object.
	ErrMalformed = errors.New("malformed payload")
	// ErrUnknownCommand indicates a missing or unrecognised CommandType.
	ErrUnknownCommand = errors.New("unknown command type")
	// ErrInvalidPayload indicates the payload failed schema validation.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Decoder turns raw request bytes into commands. It validates every payload
// against the embedded JSON schemas before decoding, so a decoded command
// always carries a non-negative PawnID. A Decoder is safe for concurrent use.
type Decoder struct {
	schemas map[string]*jsonschema.Schema
}

// NewDecoder compiles the embedded wire schemas.
func NewDecoder() (*Decoder, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	names := make([]string, 0, len(Kinds)+1)
	for _, k := range Kinds {
		names = append(names, string(k))
	}
	names = append(names, subscribeSchema)

	d := &Decoder{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		path := "schemas/" + name + ".schema.json"
		raw, err := schemaFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(path, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		schema, err := compiler.Compile(path)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		d.schemas[name] = schema
	}
	return d, nil
}

// Decode parses a command request of the form {"CommandType": "...", ...}.
func (d *Decoder) Decode(raw []byte) (Command, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	commandType, _ := obj["CommandType"].(string)
	kind, ok := ParseKind(commandType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, commandType)
	}

	if err := d.validate(string(kind), obj); err != nil {
		return nil, err
	}

	var cmd Command
	switch kind {
	case KindMoveTo:
		var c MoveTo
		err = json.Unmarshal(raw, &c)
		cmd = c
	case KindAttack:
		var c Attack
		err = json.Unmarshal(raw, &c)
		cmd = c
	case KindInteract:
		var c Interact
		err = json.Unmarshal(raw, &c)
		cmd = c
	case KindUseItem:
		var c UseItem
		err = json.Unmarshal(raw, &c)
		cmd = c
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return cmd, nil
}

// SubscribeCommand is the command value of a subscription request.
const SubscribeCommand = "SUBSCRIBE_PAWN"

// Subscribe is the SUBSCRIBE_PAWN request body.
type Subscribe struct {
	Command string `json:"command"`
	PawnID  int    `json:"pawn_id"`
}

// DecodeSubscribe parses {"command":"SUBSCRIBE_PAWN","pawn_id":N} and returns N.
func (d *Decoder) DecodeSubscribe(raw []byte) (int, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return 0, err
	}
	if err := d.validate(subscribeSchema, obj); err != nil {
		return 0, err
	}
	var sub Subscribe
	if err := json.Unmarshal(raw, &sub); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return sub.PawnID, nil
}

func (d *Decoder) validate(name string, obj map[string]interface{}) error {
	if err := d.schemas[name].Validate(obj); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	for key := range obj {
		for _, field := range wireFields[name] {
			if key != field && strings.EqualFold(key, field) {
				return fmt.Errorf("%w: key %q shadows field %q", ErrInvalidPayload, key, field)
			}
		}
	}
	return nil
}

func parseObject(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrMalformed)
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}
	return obj, nil
}

// Encode renders cmd in the wire form accepted by Decode.
func Encode(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case MoveTo:
		return json.Marshal(struct {
			CommandType Kind
			MoveTo
		}{c.Kind(), c})
	case Attack:
		return json.Marshal(struct {
			CommandType Kind
			Attack
		}{c.Kind(), c})
	case Interact:
		return json.Marshal(struct {
			CommandType Kind
			Interact
		}{c.Kind(), c})
	case UseItem:
		return json.Marshal(struct {
			CommandType Kind
			UseItem
		}{c.Kind(), c})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

// EncodeSubscribe renders a SUBSCRIBE_PAWN request for pawnID.
func EncodeSubscribe(pawnID int) ([]byte, error) {
	return json.Marshal(Subscribe{Command: SubscribeCommand, PawnID: pawnID})
}
