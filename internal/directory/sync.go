package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"civichat/internal/domain/conversation"
	"civichat/internal/repository"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncResult counts the writes one reconciliation performed. An
// unchanged snapshot yields the zero value.
type SyncResult struct {
	GroupsCreated       int
	ParticipantsAdded   int
	ParticipantsRemoved int
}

func (r SyncResult) Empty() bool {
	return r.GroupsCreated == 0 && r.ParticipantsAdded == 0 && r.ParticipantsRemoved == 0
}

// SyncService reconciles directory departments into system group
// conversations. Membership converges to the snapshot; messages are
// never touched when membership shrinks.
type SyncService struct {
	dir      Directory
	convRepo repository.ConversationRepository
	logger   *zap.Logger
}

func NewSyncService(dir Directory, convRepo repository.ConversationRepository) *SyncService {
	return &SyncService{
		dir:      dir,
		convRepo: convRepo,
		logger:   zap.L().With(zap.String("component", "directory-sync")),
	}
}

// Sync fetches a snapshot and reconciles every department. Errors on
// one department do not stop the others.
func (s *SyncService) Sync(ctx context.Context) (SyncResult, error) {
	snap, err := s.dir.Snapshot(ctx)
	if err != nil {
		return SyncResult{}, civichat_errors.ErrUnavailable
	}

	var total SyncResult
	for _, dept := range snap.Departments {
		res, err := s.syncDepartment(ctx, dept)
		if err != nil {
			s.logger.Error("department sync failed",
				zap.String("department_id", dept.ID), zap.Error(err))
			continue
		}
		total.GroupsCreated += res.GroupsCreated
		total.ParticipantsAdded += res.ParticipantsAdded
		total.ParticipantsRemoved += res.ParticipantsRemoved
	}

	if !total.Empty() {
		s.logger.Info("directory sync applied changes",
			zap.Int("groups_created", total.GroupsCreated),
			zap.Int("participants_added", total.ParticipantsAdded),
			zap.Int("participants_removed", total.ParticipantsRemoved))
	}
	return total, nil
}

func (s *SyncService) syncDepartment(ctx context.Context, dept Department) (SyncResult, error) {
	var res SyncResult

	conv, err := s.convRepo.GetSystemConversationByDepartment(ctx, dept.ID)
	if errors.Is(err, civichat_errors.ErrNotFound) {
		now := time.Now()
		conv = conversation.Conversation{
			ID:           uuid.New(),
			Type:         conversation.TypeGroup,
			Name:         sql.NullString{String: dept.Name, Valid: true},
			IsActive:     true,
			IsSystem:     true,
			DepartmentID: sql.NullString{String: dept.ID, Valid: true},
		}
		for _, id := range dept.MemberIDs {
			conv.Participants = append(conv.Participants, conversation.Participant{
				UserID:   id,
				Role:     conversation.RoleMember,
				JoinedAt: now,
			})
		}
		if err := s.convRepo.Create(ctx, &conv); err != nil {
			return res, err
		}
		res.GroupsCreated = 1
		res.ParticipantsAdded = len(dept.MemberIDs)
		return res, nil
	}
	if err != nil {
		return res, err
	}

	// Group exists: diff current membership against the snapshot.
	current, err := s.convRepo.GetParticipants(ctx, conv.ID)
	if err != nil {
		return res, err
	}

	have := make(map[uuid.UUID]bool, len(current))
	for _, p := range current {
		have[p.UserID] = true
	}
	want := make(map[uuid.UUID]bool, len(dept.MemberIDs))
	for _, id := range dept.MemberIDs {
		want[id] = true
	}

	for id := range want {
		if have[id] {
			continue
		}
		p := conversation.Participant{
			ConversationID: conv.ID,
			UserID:         id,
			Role:           conversation.RoleMember,
			JoinedAt:       time.Now(),
		}
		if err := s.convRepo.AddParticipant(ctx, &p); err != nil {
			return res, err
		}
		res.ParticipantsAdded++
	}

	for id := range have {
		if want[id] {
			continue
		}
		if err := s.convRepo.RemoveParticipant(ctx, conv.ID, id); err != nil {
			return res, err
		}
		res.ParticipantsRemoved++
	}

	// Department renames propagate to the group name.
	if conv.Name.String != dept.Name {
		conv.Name = sql.NullString{String: dept.Name, Valid: true}
		if err := s.convRepo.Update(ctx, conv); err != nil {
			return res, err
		}
	}

	return res, nil
}

// RunPeriodic syncs on the interval until the context is cancelled.
func (s *SyncService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil {
				s.logger.Warn("scheduled directory sync failed", zap.Error(err))
			}
		}
	}
}
