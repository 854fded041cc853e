package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

type vehicleRepository struct {
	db *gorm.DB
}

func (r *vehicleRepository) Get(ctx context.Context, id string) (*model.Vehicle, error) {
	var rec VehicleRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get vehicle %s: %w", id, notFound(err))
	}
	return toVehicleModel(&rec), nil
}

func (r *vehicleRepository) Create(ctx context.Context, v *model.Vehicle) error {
	if err := r.db.WithContext(ctx).Create(toVehicleRecord(v)).Error; err != nil {
		return fmt.Errorf("create vehicle %s: %w", v.ID, err)
	}
	return nil
}

func (r *vehicleRepository) List(ctx context.Context) ([]*model.Vehicle, error) {
	var recs []VehicleRecord
	if err := r.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	out := make([]*model.Vehicle, 0, len(recs))
	for i := range recs {
		out = append(out, toVehicleModel(&recs[i]))
	}
	return out, nil
}

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) Get(ctx context.Context, id string) (*model.User, error) {
	var rec UserRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, notFound(err))
	}
	return toUserModel(&rec), nil
}

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	if err := r.db.WithContext(ctx).Create(toUserRecord(u)).Error; err != nil {
		return fmt.Errorf("create user %s: %w", u.ID, err)
	}
	return nil
}
