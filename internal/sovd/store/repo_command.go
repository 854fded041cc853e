package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type commandRepository struct {
	db *gorm.DB
}

func (r *commandRepository) Create(ctx context.Context, cmd *model.Command) error {
	rec, err := toCommandRecord(cmd)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create command %s: %w", cmd.ID, err)
	}
	return nil
}

func (r *commandRepository) Get(ctx context.Context, id string) (*model.Command, error) {
	var rec CommandRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get command %s: %w", id, notFound(err))
	}
	return toCommandModel(&rec)
}

// UpdateStatus is a compare-and-set on the status column, so concurrent writers
// cannot move a command backwards or out of a terminal state.
func (r *commandRepository) UpdateStatus(ctx context.Context, id string, from []model.CommandStatus, update model.StatusUpdate) error {
	src := make([]string, 0, len(from))
	for _, s := range from {
		src = append(src, string(s))
	}

	values := map[string]any{
		"status":       string(update.Status),
		"completed_at": update.CompletedAt,
	}
	if update.ErrorMessage != "" {
		values["error_message"] = update.ErrorMessage
	} else {
		values["error_message"] = nil
	}

	res := r.db.WithContext(ctx).Model(&CommandRecord{}).
		Where("id = ? AND status IN ?", id, src).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update command %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("command %s %s -> %s: %w", id, current.Status, update.Status, util.ErrInvalidTransition)
}

func (r *commandRepository) List(ctx context.Context, filter model.CommandFilter) ([]*model.Command, error) {
	q := r.db.WithContext(ctx).Model(&CommandRecord{})
	if filter.VehicleID != "" {
		q = q.Where("vehicle_id = ?", filter.VehicleID)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.From != nil {
		q = q.Where("submitted_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("submitted_at <= ?", *filter.To)
	}

	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	var recs []CommandRecord
	err := q.Order("submitted_at DESC").Order("id").Limit(limit).Offset(filter.Offset).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}

	out := make([]*model.Command, 0, len(recs))
	for i := range recs {
		cmd, err := toCommandModel(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}

func (r *commandRepository) CreateResponse(ctx context.Context, chunk *model.ResponseChunk) error {
	rec, err := toResponseRecord(chunk)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cmd CommandRecord
		if err := tx.Select("id", "status").First(&cmd, "id = ?", chunk.CommandID).Error; err != nil {
			return fmt.Errorf("append response to %s: %w", chunk.CommandID, notFound(err))
		}
		if cmd.Status != string(model.CommandStatusInProgress) {
			return fmt.Errorf("append response to %s command %s: %w", cmd.Status, chunk.CommandID, util.ErrInvalidTransition)
		}

		var count, finals int64
		if err := tx.Model(&ResponseRecord{}).Where("command_id = ?", chunk.CommandID).Count(&count).Error; err != nil {
			return fmt.Errorf("count responses of %s: %w", chunk.CommandID, err)
		}
		if err := tx.Model(&ResponseRecord{}).Where("command_id = ? AND is_final = ?", chunk.CommandID, true).Count(&finals).Error; err != nil {
			return fmt.Errorf("count final responses of %s: %w", chunk.CommandID, err)
		}
		if finals > 0 {
			return fmt.Errorf("command %s already has a final response: %w", chunk.CommandID, util.ErrSequence)
		}
		if int64(chunk.Sequence) != count {
			return fmt.Errorf("command %s expected sequence %d, got %d: %w", chunk.CommandID, count, chunk.Sequence, util.ErrSequence)
		}

		if err := tx.Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("command %s duplicate sequence %d: %w", chunk.CommandID, chunk.Sequence, util.ErrSequence)
			}
			return fmt.Errorf("insert response %d of %s: %w", chunk.Sequence, chunk.CommandID, err)
		}
		return nil
	})
}

func (r *commandRepository) ListResponses(ctx context.Context, commandID string) ([]*model.ResponseChunk, error) {
	var recs []ResponseRecord
	err := r.db.WithContext(ctx).Where("command_id = ?", commandID).Order("sequence_number ASC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list responses of %s: %w", commandID, err)
	}

	out := make([]*model.ResponseChunk, 0, len(recs))
	for i := range recs {
		chunk, err := toResponseModel(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, nil
}
