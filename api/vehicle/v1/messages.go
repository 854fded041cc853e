package v1

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// Field names of the request and chunk messages.
const (
	FieldCommandID     = "command_id"
	FieldVehicleID     = "vehicle_id"
	FieldCommandName   = "command_name"
	FieldCommandParams = "command_params"

	FieldResponsePayload = "response_payload"
	FieldSequenceNumber  = "sequence_number"
	FieldIsFinal         = "is_final"
)

// ErrMalformed is wrapped by every decoding error.
var ErrMalformed = errors.New("malformed message")

// CommandRequest is the decoded ExecuteCommand request.
type CommandRequest struct {
	CommandID   string
	VehicleID   string
	CommandName string
	Params      map[string]any
}

// Chunk is one decoded response message.
type Chunk struct {
	Payload  map[string]any
	Sequence int
	IsFinal  bool
}

// ToStruct encodes the request. Params must hold JSON-compatible values.
func (r *CommandRequest) ToStruct() (*structpb.Struct, error) {
	params := r.Params
	if params == nil {
		params = map[string]any{}
	}
	return structpb.NewStruct(map[string]any{
		FieldCommandID:     r.CommandID,
		FieldVehicleID:     r.VehicleID,
		FieldCommandName:   r.CommandName,
		FieldCommandParams: params,
	})
}

// RequestFromStruct decodes an ExecuteCommand request.
func RequestFromStruct(s *structpb.Struct) (*CommandRequest, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: empty request", ErrMalformed)
	}
	name := s.GetFields()[FieldCommandName].GetStringValue()
	if name == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, FieldCommandName)
	}
	r := &CommandRequest{
		CommandID:   s.GetFields()[FieldCommandID].GetStringValue(),
		VehicleID:   s.GetFields()[FieldVehicleID].GetStringValue(),
		CommandName: name,
		Params:      map[string]any{},
	}
	if p := s.GetFields()[FieldCommandParams].GetStructValue(); p != nil {
		r.Params = p.AsMap()
	}
	return r, nil
}

// ToStruct encodes the chunk.
func (c *Chunk) ToStruct() (*structpb.Struct, error) {
	payload := c.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return structpb.NewStruct(map[string]any{
		FieldResponsePayload: payload,
		FieldSequenceNumber:  c.Sequence,
		FieldIsFinal:         c.IsFinal,
	})
}

// ChunkFromStruct decodes a response message. The payload must be an object
// and the sequence number a non-negative integer.
func ChunkFromStruct(s *structpb.Struct) (*Chunk, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: empty chunk", ErrMalformed)
	}
	fields := s.GetFields()

	payload, ok := fields[FieldResponsePayload].GetKind().(*structpb.Value_StructValue)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an object", ErrMalformed, FieldResponsePayload)
	}

	seqValue, ok := fields[FieldSequenceNumber].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, FieldSequenceNumber)
	}
	seq := seqValue.NumberValue
	if seq < 0 || seq != math.Trunc(seq) || seq > math.MaxInt32 {
		return nil, fmt.Errorf("%w: invalid %s %v", ErrMalformed, FieldSequenceNumber, seq)
	}

	var final bool
	if v, ok := fields[FieldIsFinal]; ok {
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a bool", ErrMalformed, FieldIsFinal)
		}
		final = b.BoolValue
	}

	return &Chunk{
		Payload:  payload.StructValue.AsMap(),
		Sequence: int(seq),
		IsFinal:  final,
	}, nil
}
