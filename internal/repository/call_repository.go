package repository

import (
	"context"
	"errors"
	"time"

	"civichat/internal/domain/call"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresCallRepository struct {
	db *gorm.DB
}

func NewCallRepository(db *gorm.DB) CallRepository {
	return &PostgresCallRepository{db: db}
}

func (r *PostgresCallRepository) Create(ctx context.Context, c *call.Call) error {
	res := r.db.WithContext(ctx).Create(c)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return civichat_errors.ErrConflict
		}
		return res.Error
	}
	return nil
}

func (r *PostgresCallRepository) GetByID(ctx context.Context, id uuid.UUID) (call.Call, error) {
	var c call.Call
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return call.Call{}, civichat_errors.ErrNotFound
		}
		return call.Call{}, err
	}
	return c, nil
}

// TransitionState is the single write path for call state. The guarded
// UPDATE makes competing transitions race on the row: exactly one
// leaves fromState, every loser observes zero rows and gets
// ErrInvalidCallState.
func (r *PostgresCallRepository) TransitionState(ctx context.Context, id uuid.UUID, fromState, toState string) (call.Call, error) {
	updates := map[string]interface{}{"state": toState}
	now := time.Now()
	switch toState {
	case call.StateActive:
		updates["started_at"] = now
	case call.StateEnded, call.StateRejected, call.StateNoAnswer:
		updates["ended_at"] = now
	}

	res := r.db.WithContext(ctx).
		Model(&call.Call{}).
		Where("id = ? AND state = ?", id, fromState).
		Updates(updates)
	if res.Error != nil {
		return call.Call{}, res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing call from a lost race.
		var count int64
		if err := r.db.WithContext(ctx).Model(&call.Call{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return call.Call{}, err
		}
		if count == 0 {
			return call.Call{}, civichat_errors.ErrNotFound
		}
		return call.Call{}, civichat_errors.ErrInvalidCallState
	}

	return r.GetByID(ctx, id)
}

func (r *PostgresCallRepository) SetDuration(ctx context.Context, id uuid.UUID, seconds int32) error {
	return r.db.WithContext(ctx).
		Model(&call.Call{}).
		Where("id = ?", id).
		Update("duration_seconds", seconds).Error
}

func (r *PostgresCallRepository) AddParticipant(ctx context.Context, p *call.CallParticipant) error {
	res := r.db.WithContext(ctx).Create(p)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return civichat_errors.ErrConflict
		}
		return res.Error
	}
	return nil
}

func (r *PostgresCallRepository) MarkParticipantJoined(ctx context.Context, callID, userID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&call.CallParticipant{}).
		Where("call_id = ? AND user_id = ?", callID, userID).
		Update("joined_at", at).Error
}

func (r *PostgresCallRepository) GetConversationCalls(ctx context.Context, conversationID uuid.UUID, page, limit int) ([]call.Call, int64, error) {
	var calls []call.Call
	var total int64

	q := r.db.WithContext(ctx).
		Model(&call.Call{}).
		Where("conversation_id = ?", conversationID)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := q.
		Preload("Participants").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&calls).Error; err != nil {
		return nil, 0, err
	}

	return calls, total, nil
}
