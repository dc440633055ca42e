package repository

import (
	"context"
	"errors"
	"time"

	"civichat/internal/domain/message"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	// Message and attachment rows commit together or not at all; a
	// broadcast must never describe unpersisted state.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attachments := m.Attachments
		m.Attachments = nil
		if err := tx.Create(m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return civichat_errors.ErrConflict
			}
			return err
		}
		for i := range attachments {
			attachments[i].MessageID = m.ID
			if err := tx.Save(&attachments[i]).Error; err != nil {
				return err
			}
		}
		m.Attachments = attachments
		return nil
	})
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, civichat_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) MarkEdited(ctx context.Context, id uuid.UUID, content string) error {
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ? AND eliminado = ?", id, false).
		Updates(map[string]interface{}{
			"content":    content,
			"editado":    true,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return civichat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresMessageRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ? AND eliminado = ?", id, false).
		Updates(map[string]interface{}{
			"eliminado":  true,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return civichat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresMessageRepository) GetConversationMessages(ctx context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]message.Message, error) {
	var messages []message.Message
	q := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("conversation_id = ?", conversationID)

	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}

	err := q.Order("created_at DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *PostgresMessageRepository) GetLatestMessage(ctx context.Context, conversationID uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND eliminado = ?", conversationID, false).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, civichat_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *PostgresMessageRepository) GetAttachments(ctx context.Context, ids []uuid.UUID) ([]message.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var attachments []message.Attachment
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&attachments).Error
	if err != nil {
		return nil, err
	}
	return attachments, nil
}
