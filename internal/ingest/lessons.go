package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openclaw/memoryd/internal/apperr"
	"github.com/openclaw/memoryd/internal/db"
	"github.com/openclaw/memoryd/internal/vectordb"
)

// LessonRequest carries a new lesson submission.
type LessonRequest struct {
	LessonType      string
	Name            string
	Body            string
	RelatedEntities []db.EntityRef
	SourceMemoryIDs []string
}

// CreateLesson stores a lesson and indexes its embedding. New lessons
// start as drafts when approval is required.
func (s *Service) CreateLesson(ctx context.Context, agentID string, req LessonRequest) (*db.Lesson, error) {
	if req.Name == "" {
		return nil, apperr.Field(apperr.KindInput, "name", "name is required")
	}
	if req.LessonType == "" {
		return nil, apperr.Field(apperr.KindInput, "lesson_type", "lesson_type is required")
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	status := db.LessonStatusDraft
	if !settings.LessonApprovalRequired {
		status = db.LessonStatusApproved
	}

	summary, err := s.enricher.Summarize(ctx, req.Body)
	if err != nil {
		s.logger.Warn("Lesson summarization failed", zap.Error(err))
		summary = ""
	}

	now := time.Now().UTC()
	lesson := &db.Lesson{
		ID:              uuid.New().String(),
		LessonType:      req.LessonType,
		Name:            req.Name,
		Body:            req.Body,
		Summary:         summary,
		Status:          status,
		RelatedEntities: req.RelatedEntities,
		SourceMemoryIDs: req.SourceMemoryIDs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.InsertLesson(ctx, lesson); err != nil {
		return nil, err
	}

	s.EmbedLesson(ctx, lesson)
	s.store.Audit(ctx, agentID, db.AuditActionLessonCreate, "lesson", lesson.ID, nil)
	return lesson, nil
}

// LessonUpdate holds the mutable lesson fields; nil means unchanged.
type LessonUpdate struct {
	Name            *string
	Body            *string
	Status          *string
	RelatedEntities []db.EntityRef
}

// UpdateLesson applies a partial update. Changing the body regenerates
// the summary and the embedding.
func (s *Service) UpdateLesson(ctx context.Context, agentID, lessonID string, upd LessonUpdate) (*db.Lesson, error) {
	lesson, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	reembed := false
	if upd.Name != nil {
		lesson.Name = *upd.Name
		reembed = true
	}
	if upd.Body != nil {
		lesson.Body = *upd.Body
		reembed = true
		summary, err := s.enricher.Summarize(ctx, lesson.Body)
		if err != nil {
			s.logger.Warn("Lesson summarization failed", zap.Error(err))
		} else {
			lesson.Summary = summary
		}
	}
	if upd.Status != nil {
		switch *upd.Status {
		case db.LessonStatusDraft, db.LessonStatusApproved, db.LessonStatusArchived:
			lesson.Status = *upd.Status
		default:
			return nil, apperr.Field(apperr.KindInput, "status",
				fmt.Sprintf("invalid status %q", *upd.Status))
		}
	}
	if upd.RelatedEntities != nil {
		lesson.RelatedEntities = upd.RelatedEntities
	}

	if err := s.store.UpdateLesson(ctx, lesson); err != nil {
		return nil, err
	}
	if reembed {
		s.EmbedLesson(ctx, lesson)
	}

	s.store.Audit(ctx, agentID, db.AuditActionLessonUpdate, "lesson", lessonID, nil)
	return lesson, nil
}

// DeleteLesson removes the lesson and its vector point.
func (s *Service) DeleteLesson(ctx context.Context, agentID, lessonID string) error {
	if err := s.store.DeleteLesson(ctx, lessonID); err != nil {
		return err
	}
	if err := s.vectors.DeletePoints(ctx, vectordb.CollectionLessons, []string{lessonID}); err != nil {
		s.logger.Warn("Vector cleanup failed for deleted lesson",
			zap.String("lesson_id", lessonID),
			zap.Error(err))
	}
	s.store.Audit(ctx, agentID, db.AuditActionLessonDelete, "lesson", lessonID, nil)
	return nil
}

// EmbedLesson indexes a lesson's name and body as a single point whose
// id equals the lesson id. Failure is soft; the lesson stays reachable
// through listings.
func (s *Service) EmbedLesson(ctx context.Context, lesson *db.Lesson) {
	vec, err := s.embedder.GenerateEmbedding(ctx, lesson.Name+"\n\n"+lesson.Body, "")
	if err != nil || len(vec) == 0 {
		s.logger.Warn("Lesson embedding failed",
			zap.String("lesson_id", lesson.ID),
			zap.Error(err))
		return
	}

	point := vectordb.Point{
		ID:     lesson.ID,
		Vector: vec,
		Payload: map[string]interface{}{
			"lesson_id":   lesson.ID,
			"lesson_type": lesson.LessonType,
			"name":        lesson.Name,
			"summary":     lesson.Summary,
			"created_at":  lesson.CreatedAt.Format(time.RFC3339),
			"is_shared":   false,
		},
	}
	if err := s.vectors.Upsert(ctx, vectordb.CollectionLessons, []vectordb.Point{point}); err != nil {
		s.logger.Warn("Lesson vector upsert failed",
			zap.String("lesson_id", lesson.ID),
			zap.Error(err))
	}
}
