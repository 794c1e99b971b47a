package ingest

import (
	"context"
	"errors"

	"handpose-backend/internal/domain"
	"handpose-backend/internal/pathplan"
	"handpose-backend/internal/store"
)

// VideoRequest is the background-channel submission.
type VideoRequest struct {
	Token     string
	VideoFile string
}

// SubmitVideo is the background channel: it updates an existing session and
// never creates one. Video may arrive before, during, or after keypoints
// processing; the status recompute below is correct under all three
// orderings.
func (s *Service) SubmitVideo(ctx context.Context, req VideoRequest) (*domain.VideoResult, error) {
	defer s.temp.Remove(req.VideoFile)

	if req.Token == "" {
		return nil, domain.NewValidationError("mobile session token is required")
	}
	if req.VideoFile == "" {
		return nil, domain.NewValidationError("video file is required")
	}

	session, err := s.store.FindSessionByToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, domain.NewNotFoundError(domain.CodeSessionNotFound, "session not found; submit keypoints first")
		}
		return nil, s.internal("lookup session", req.Token, err)
	}

	// No silent overwrite of a finished session's video.
	if !pathplan.IsPlaceholder(session.VideoPath) && session.Status == domain.StatusCompleted {
		return nil, domain.NewConflictError(domain.CodeVideoAlreadyUploaded,
			"session is completed and already has a video",
			domain.ConflictInfo{SessionID: session.ID.String(), Status: session.Status})
	}

	paths := pathplan.Plan(req.Token)
	videoRef, err := s.blob.Upload(ctx, req.VideoFile, pathplan.URI(s.cfg.GCSBucket, paths.Video))
	if err != nil {
		// The session exists, so this failure is recorded on it and the
		// degraded resource goes back with its placeholder intact.
		s.log.Error("video upload failed", "token", req.Token, "err", err)
		s.recordDegraded(ctx, session.ID, session.Status, "video upload failed: "+err.Error())
		return &domain.VideoResult{
			SessionID: session.ID.String(),
			Path:      session.VideoPath,
			Status:    session.Status,
		}, nil
	}

	patch := domain.SessionPatch{VideoPath: &videoRef}
	next := recomputeStatus(session.Status, session.AnalysisProgress)
	if next != session.Status {
		patch.Status = &next
		if next == domain.StatusCompleted {
			full := 100
			patch.AnalysisProgress = &full
		}
	}

	session, err = s.store.UpdateSession(ctx, session.ID, patch)
	if err != nil {
		return nil, s.internal("record video", req.Token, err)
	}

	s.log.Info("video recorded", "token", req.Token, "session", session.ID.String(), "status", session.Status, "channel", "background")
	return &domain.VideoResult{
		SessionID: session.ID.String(),
		Path:      session.VideoPath,
		Status:    session.Status,
	}, nil
}

// recomputeStatus decides the post-video status. Analysis already done means
// the session is complete; mid-analysis means video_uploaded; anything else
// (including failed, which stays inspectable and retriable) is recorded
// without a transition.
func recomputeStatus(current domain.SessionStatus, progress int) domain.SessionStatus {
	if progress >= 100 {
		return domain.StatusCompleted
	}
	if current == domain.StatusAnalyzing || current == domain.StatusKeypointsUploaded {
		return domain.StatusVideoUploaded
	}
	return current
}
