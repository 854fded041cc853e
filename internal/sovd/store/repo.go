package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core"
)

var _ core.Repository = (*repository)(nil)

// repository implements core.Repository on top of gorm.
type repository struct {
	db *gorm.DB
}

// NewRepository returns the SQL-backed persistence ports.
func NewRepository(db *gorm.DB) core.Repository {
	return &repository{db: db}
}

func (r *repository) Vehicle() core.VehicleRepository {
	return &vehicleRepository{db: r.db}
}

func (r *repository) User() core.UserRepository {
	return &userRepository{db: r.db}
}

func (r *repository) Command() core.CommandRepository {
	return &commandRepository{db: r.db}
}

// notFound maps gorm's missing-row error to util.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrNotFound
	}
	return err
}
