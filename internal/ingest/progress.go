package ingest

import (
	"context"
	"errors"

	"handpose-backend/internal/domain"
	"handpose-backend/internal/pathplan"
	"handpose-backend/internal/queue"
	"handpose-backend/internal/store"
)

// SessionStatus returns the full readout for one session, with upload flags
// derived from the placeholder convention and a short-lived playback URL
// once the video is durable.
func (s *Service) SessionStatus(ctx context.Context, token string) (*domain.SessionView, error) {
	if token == "" {
		return nil, domain.NewValidationError("mobile session token is required")
	}
	session, err := s.store.FindSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, domain.NewNotFoundError(domain.CodeSessionNotFound, "session not found")
		}
		return nil, s.internal("lookup session", token, err)
	}

	view := &domain.SessionView{
		SessionID:         session.ID.String(),
		MobileSessionID:   session.MobileSessionID,
		Status:            session.Status,
		AnalysisProgress:  session.AnalysisProgress,
		AnalysisError:     session.AnalysisError,
		VideoUploaded:     !pathplan.IsPlaceholder(session.VideoPath),
		KeypointsUploaded: !pathplan.IsPlaceholder(session.KeypointsPath),
		AnalysisReady:     !pathplan.IsPlaceholder(session.AnalysisPath),
		ReportReady:       !pathplan.IsPlaceholder(session.ReportPath),
	}

	if view.VideoUploaded {
		url, err := s.blob.SignedURL(session.VideoPath, s.cfg.SignedURLTTL)
		if err != nil {
			s.log.Warn("signed url failed", "token", token, "err", err)
		} else {
			view.PlaybackURL = url
		}
	}
	return view, nil
}

// ReportProgress is the job-completion callback. Progress is monotonic while
// the session is analyzing or video_uploaded; 100 completes the session; a
// fatal worker error moves it to failed.
func (s *Service) ReportProgress(ctx context.Context, token string, progress int, workerErr string) (*domain.SessionView, error) {
	session, err := s.store.FindSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, domain.NewNotFoundError(domain.CodeSessionNotFound, "session not found")
		}
		return nil, s.internal("lookup session", token, err)
	}

	patch := domain.SessionPatch{}
	switch {
	case workerErr != "":
		if domain.CanTransition(session.Status, domain.StatusFailed) {
			failed := domain.StatusFailed
			patch.Status = &failed
		}
		patch.AnalysisError = &workerErr

	default:
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		// Never move progress backward once analysis is underway.
		if progress < session.AnalysisProgress &&
			(session.Status == domain.StatusAnalyzing || session.Status == domain.StatusVideoUploaded) {
			progress = session.AnalysisProgress
		}
		patch.AnalysisProgress = &progress
		if progress >= 100 && domain.CanTransition(session.Status, domain.StatusCompleted) {
			done := domain.StatusCompleted
			patch.Status = &done
		}
	}

	if _, err := s.store.UpdateSession(ctx, session.ID, patch); err != nil {
		return nil, s.internal("record progress", token, err)
	}
	return s.SessionStatus(ctx, token)
}

// RetryAnalysis re-dispatches the analysis job for a failed session. Any
// other status is a conflict: there is nothing to retry.
func (s *Service) RetryAnalysis(ctx context.Context, token string) (*domain.SubmitResult, error) {
	session, err := s.store.FindSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, domain.NewNotFoundError(domain.CodeSessionNotFound, "session not found")
		}
		return nil, s.internal("lookup session", token, err)
	}
	if session.Status != domain.StatusFailed {
		return nil, domain.NewConflictError(domain.CodeSessionNotRetriable,
			"only failed sessions can be retried",
			domain.ConflictInfo{SessionID: session.ID.String(), Status: session.Status})
	}
	if pathplan.IsPlaceholder(session.KeypointsPath) {
		return nil, domain.NewValidationError("session has no keypoints to analyze")
	}

	if _, err := s.queue.Enqueue(ctx, queue.JobTypeAnalysis, queue.Payload{
		SessionID:    session.ID.String(),
		SessionToken: token,
		KeypointsRef: session.KeypointsPath,
	}); err != nil {
		return nil, s.internal("dispatch retry", token, err)
	}

	analyzing := domain.StatusAnalyzing
	empty := ""
	if _, err := s.store.UpdateSession(ctx, session.ID, domain.SessionPatch{
		Status:        &analyzing,
		AnalysisError: &empty,
	}); err != nil {
		return nil, s.internal("record retry", token, err)
	}

	s.log.Info("analysis retried", "token", token, "session", session.ID.String())
	return &domain.SubmitResult{SessionID: session.ID.String(), Status: analyzing}, nil
}
