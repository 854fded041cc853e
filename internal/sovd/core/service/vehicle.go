package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

// RegisterVehicle adds a command target.
func (s *Service) RegisterVehicle(ctx context.Context, v *model.Vehicle) (*model.Vehicle, error) {
	v.VIN = strings.TrimSpace(v.VIN)
	if v.VIN == "" {
		return nil, fmt.Errorf("vin is required: %w", util.ErrInvalidArgument)
	}
	if v.ID == "" {
		v.ID = s.newID()
	}
	if v.ConnectionStatus == "" {
		v.ConnectionStatus = model.VehicleDisconnected
	}
	v.CreatedAt = s.now().UTC()

	if err := s.vehicle.Create(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info("Vehicle registered", "vehicle_id", v.ID, "vin", v.VIN)
	return v, nil
}

// ListVehicles returns all registered vehicles.
func (s *Service) ListVehicles(ctx context.Context) ([]*model.Vehicle, error) {
	return s.vehicle.List(ctx)
}

// EnsureUser creates the user unless a user with the same id exists.
func (s *Service) EnsureUser(ctx context.Context, u *model.User) error {
	_, err := s.user.Get(ctx, u.ID)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return err
	}
	if err := s.user.Create(ctx, u); err != nil {
		return err
	}
	s.logger.Info("User created", "user_id", u.ID, "role", u.Role)
	return nil
}
