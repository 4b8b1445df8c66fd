package match

import (
	"context"

	"gorm.io/gorm"

	"github.com/veilchat/whispermatch/internal/models"
)

// Archiver records terminal sessions durably before the store evicts
// them. The live transcript stays ephemeral; only the facts moderation
// needs survive.
type Archiver interface {
	Archive(ctx context.Context, sess *models.MatchSession) error
}

// GormArchiver writes archive rows through gorm
type GormArchiver struct {
	db *gorm.DB
}

// NewGormArchiver wraps an open gorm connection
func NewGormArchiver(db *gorm.DB) *GormArchiver {
	return &GormArchiver{db: db}
}

func (a *GormArchiver) Archive(ctx context.Context, sess *models.MatchSession) error {
	record := models.ArchivedSession{
		SessionID:    sess.ID,
		ParticipantA: sess.ParticipantA,
		ParticipantB: sess.ParticipantB,
		State:        sess.State,
		MessageCount: len(sess.Messages),
		CreatedAt:    sess.CreatedAt,
	}
	if sess.EndedAt != nil {
		record.EndedAt = *sess.EndedAt
	}

	// Conflicts mean the sweep ran twice for the same session; keep the
	// first row
	return a.db.WithContext(ctx).
		Where("session_id = ?", sess.ID).
		FirstOrCreate(&record).Error
}
