package store

import (
	"encoding/json"
	"fmt"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

func toCommandModel(r *CommandRecord) (*model.Command, error) {
	params, err := unmarshalObject(r.CommandParams)
	if err != nil {
		return nil, fmt.Errorf("decode params of command %s: %w", r.ID, err)
	}
	cmd := &model.Command{
		ID:          r.ID,
		VehicleID:   r.VehicleID,
		UserID:      r.UserID,
		Name:        r.CommandName,
		Params:      params,
		Status:      model.CommandStatus(r.Status),
		SubmittedAt: r.SubmittedAt,
		CompletedAt: r.CompletedAt,
	}
	if r.ErrorMessage != nil {
		cmd.ErrorMessage = *r.ErrorMessage
	}
	return cmd, nil
}

func toCommandRecord(c *model.Command) (*CommandRecord, error) {
	params, err := marshalObject(c.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params of command %s: %w", c.ID, err)
	}
	r := &CommandRecord{
		ID:            c.ID,
		VehicleID:     c.VehicleID,
		UserID:        c.UserID,
		CommandName:   c.Name,
		CommandParams: params,
		Status:        string(c.Status),
		SubmittedAt:   c.SubmittedAt,
		CompletedAt:   c.CompletedAt,
	}
	if c.ErrorMessage != "" {
		msg := c.ErrorMessage
		r.ErrorMessage = &msg
	}
	return r, nil
}

func toResponseModel(r *ResponseRecord) (*model.ResponseChunk, error) {
	payload, err := unmarshalObject(r.ResponsePayload)
	if err != nil {
		return nil, fmt.Errorf("decode payload of response %s: %w", r.ID, err)
	}
	return &model.ResponseChunk{
		ID:         r.ID,
		CommandID:  r.CommandID,
		Payload:    payload,
		Sequence:   r.SequenceNumber,
		IsFinal:    r.IsFinal,
		ReceivedAt: r.ReceivedAt,
	}, nil
}

func toResponseRecord(c *model.ResponseChunk) (*ResponseRecord, error) {
	payload, err := marshalObject(c.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload of response %s: %w", c.ID, err)
	}
	return &ResponseRecord{
		ID:              c.ID,
		CommandID:       c.CommandID,
		SequenceNumber:  c.Sequence,
		ResponsePayload: payload,
		IsFinal:         c.IsFinal,
		ReceivedAt:      c.ReceivedAt,
	}, nil
}

func toVehicleModel(r *VehicleRecord) *model.Vehicle {
	return &model.Vehicle{
		ID:               r.ID,
		VIN:              r.VIN,
		Name:             r.Name,
		ConnectionStatus: model.VehicleConnectionStatus(r.ConnectionStatus),
		CreatedAt:        r.CreatedAt,
	}
}

func toVehicleRecord(v *model.Vehicle) *VehicleRecord {
	status := string(v.ConnectionStatus)
	if status == "" {
		status = string(model.VehicleDisconnected)
	}
	return &VehicleRecord{
		ID:               v.ID,
		VIN:              v.VIN,
		Name:             v.Name,
		ConnectionStatus: status,
		CreatedAt:        v.CreatedAt,
	}
}

func toUserModel(r *UserRecord) *model.User {
	return &model.User{
		ID:       r.ID,
		Username: r.Username,
		Role:     r.Role,
		IsActive: r.IsActive,
	}
}

func toUserRecord(u *model.User) *UserRecord {
	return &UserRecord{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		IsActive: u.IsActive,
	}
}

// marshalObject stores a JSON object as text; nil becomes "{}".
func marshalObject(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalObject(s string) (map[string]any, error) {
	out := map[string]any{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
