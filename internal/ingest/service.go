// Package ingest orchestrates the two racing ingestion channels against the
// session store, blob store and job queue. Handlers are stateless; the only
// arbiter between concurrent submissions for one token is the store's
// uniqueness constraint.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"handpose-backend/internal/blob"
	"handpose-backend/internal/config"
	"handpose-backend/internal/domain"
	"handpose-backend/internal/pathplan"
	"handpose-backend/internal/queue"
	"handpose-backend/internal/store"
	"handpose-backend/internal/temp"
)

// analysisStartProgress is the progress recorded when the analysis job is
// handed off.
const analysisStartProgress = 5

// Service is the upload coordinator. All collaborators are injected; nothing
// here reaches for ambient state.
type Service struct {
	cfg   *config.Config
	store store.Store
	temp  *temp.Store
	blob  blob.Store
	queue queue.Queue
	log   *slog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg *config.Config, st store.Store, tempStore *temp.Store, bs blob.Store, q queue.Queue, log *slog.Logger) *Service {
	return &Service{cfg: cfg, store: st, temp: tempStore, blob: bs, queue: q, log: log}
}

// KeypointsRequest is the priority-channel submission. File fields are
// locally staged paths owned by this request.
type KeypointsRequest struct {
	Token         string
	PatientRef    string
	KeypointsFile string
	MetadataFile  string
	Notes         string
}

// SubmitKeypoints is the priority channel: it creates the session and starts
// analysis without waiting for video.
func (s *Service) SubmitKeypoints(ctx context.Context, req KeypointsRequest) (*domain.SubmitResult, error) {
	defer s.temp.Remove(req.KeypointsFile)
	defer s.temp.Remove(req.MetadataFile)

	if req.Token == "" {
		return nil, domain.NewValidationError("mobile session token is required")
	}
	if req.KeypointsFile == "" {
		return nil, domain.NewValidationError("keypoints file is required")
	}
	if req.PatientRef == "" {
		return nil, domain.NewValidationError("patient reference is required")
	}

	// Idempotent re-submission is an observable conflict, not an error
	// swallow: callers need the existing identity to switch to a resume flow.
	if existing, err := s.store.FindSessionByToken(ctx, req.Token); err == nil {
		return nil, duplicateSession(existing)
	} else if !errors.Is(err, store.ErrSessionNotFound) {
		return nil, s.internal("lookup session", req.Token, err)
	}

	patient, err := s.store.FindPatientByRef(ctx, req.PatientRef)
	if err != nil {
		if errors.Is(err, store.ErrPatientNotFound) {
			return nil, domain.NewNotFoundError(domain.CodePatientNotFound, "patient not found: "+req.PatientRef)
		}
		return nil, s.internal("lookup patient", req.Token, err)
	}

	known, deviceInfo := s.readMetadata(req.MetadataFile, req.Token)
	protocol, err := s.resolveProtocol(ctx, known)
	if err != nil {
		return nil, err
	}

	paths := pathplan.Plan(req.Token)
	session := &domain.Session{
		ID:              uuid.New(),
		MobileSessionID: req.Token,
		PatientID:       patient.ID,
		ClinicianID:     patient.ClinicianID,
		ProtocolID:      protocol.ID,
		VideoPath:       pathplan.PlaceholderURI(s.cfg.GCSBucket, paths.Video),
		KeypointsPath:   pathplan.PlaceholderURI(s.cfg.GCSBucket, paths.Keypoints),
		AnalysisPath:    pathplan.PlaceholderURI(s.cfg.GCSBucket, paths.Analysis),
		ReportPath:      pathplan.PlaceholderURI(s.cfg.GCSBucket, paths.Report),
		Status:          domain.StatusKeypointsUploaded,
		DeviceInfo:      deviceInfo,
		FPS:             known.FPS,
		Notes:           req.Notes,
	}

	created, err := s.store.CreateSession(ctx, session)
	if err != nil {
		return nil, s.internal("create session", req.Token, err)
	}
	if created.AlreadyExists {
		// Lost the creation race to a concurrent submission.
		return nil, duplicateSession(created.Session)
	}
	session = created.Session

	keypointsRef, err := s.blob.Upload(ctx, req.KeypointsFile, pathplan.URI(s.cfg.GCSBucket, paths.Keypoints))
	if err != nil {
		// The session exists; an ingestion failure from here on is data, not
		// an exception. Record it and hand the degraded resource back.
		s.log.Error("keypoints upload failed", "token", req.Token, "err", err)
		s.recordDegraded(ctx, session.ID, domain.StatusKeypointsUploaded, "keypoints upload failed: "+err.Error())
		return &domain.SubmitResult{SessionID: session.ID.String(), Status: domain.StatusKeypointsUploaded}, nil
	}

	status := domain.StatusAnalyzing
	progress := analysisStartProgress
	session, err = s.store.UpdateSession(ctx, session.ID, domain.SessionPatch{
		KeypointsPath:    &keypointsRef,
		Status:           &status,
		AnalysisProgress: &progress,
	})
	if err != nil {
		return nil, s.internal("advance session", req.Token, err)
	}

	// Metadata is best effort: a parse or upload failure only limits which
	// device-info fields get populated.
	if req.MetadataFile != "" {
		if _, err := s.blob.Upload(ctx, req.MetadataFile, pathplan.URI(s.cfg.GCSBucket, pathplan.MetadataPath(req.Token))); err != nil {
			s.log.Warn("metadata upload failed", "token", req.Token, "err", err)
		}
	}

	if _, err := s.queue.Enqueue(ctx, queue.JobTypeAnalysis, queue.Payload{
		SessionID:    session.ID.String(),
		SessionToken: req.Token,
		KeypointsRef: keypointsRef,
	}); err != nil {
		s.log.Error("analysis dispatch failed", "token", req.Token, "err", err)
		s.recordDegraded(ctx, session.ID, domain.StatusKeypointsUploaded, "analysis dispatch failed: "+err.Error())
		return &domain.SubmitResult{SessionID: session.ID.String(), Status: domain.StatusKeypointsUploaded}, nil
	}

	s.log.Info("session created", "token", req.Token, "session", session.ID.String(), "channel", "priority")
	return &domain.SubmitResult{SessionID: session.ID.String(), Status: domain.StatusAnalyzing}, nil
}

// readMetadata loads the optional staged metadata blob. Failures degrade to
// an empty projection rather than aborting the submission.
func (s *Service) readMetadata(path, token string) (domain.DeviceInfoKnown, datatypes.JSON) {
	if path == "" {
		return domain.DeviceInfoKnown{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		s.log.Warn("metadata read failed", "token", token, "err", err)
		return domain.DeviceInfoKnown{}, nil
	}
	known, err := domain.ParseDeviceInfo(raw)
	if err != nil {
		s.log.Warn("metadata parse failed", "token", token, "err", err)
		return domain.DeviceInfoKnown{}, datatypes.JSON(raw)
	}
	return known, datatypes.JSON(raw)
}

// resolveProtocol picks the explicit protocol named in the metadata, or the
// active default. Either way the result must be an active, non-deleted
// protocol.
func (s *Service) resolveProtocol(ctx context.Context, known domain.DeviceInfoKnown) (*domain.Protocol, error) {
	if known.ProtocolID != "" {
		id, err := uuid.Parse(known.ProtocolID)
		if err != nil {
			return nil, domain.NewValidationError("invalid protocol id: " + known.ProtocolID)
		}
		protocol, err := s.store.FindProtocolByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrProtocolNotFound) {
				return nil, domain.NewNotFoundError(domain.CodeProtocolNotFound, "protocol not found or inactive: "+known.ProtocolID)
			}
			return nil, s.internal("lookup protocol", known.ProtocolID, err)
		}
		return protocol, nil
	}
	protocol, err := s.store.FindActiveProtocol(ctx)
	if err != nil {
		if errors.Is(err, store.ErrProtocolNotFound) {
			return nil, domain.NewNotFoundError(domain.CodeProtocolNotFound, "no active protocol configured")
		}
		return nil, s.internal("lookup active protocol", "", err)
	}
	return protocol, nil
}

// recordDegraded notes a dependency failure on the session. Best effort: the
// caller already has a response to return.
func (s *Service) recordDegraded(ctx context.Context, id uuid.UUID, status domain.SessionStatus, note string) {
	if _, err := s.store.UpdateSession(ctx, id, domain.SessionPatch{
		Status:        &status,
		AnalysisError: &note,
	}); err != nil {
		s.log.Error("failed to record degraded state", "session", id.String(), "err", err)
	}
}

func (s *Service) internal(op, subject string, err error) error {
	s.log.Error(op+" failed", "subject", subject, "err", err)
	return domain.NewInternalError(fmt.Sprintf("%s: %v", op, err))
}

func duplicateSession(existing *domain.Session) error {
	return domain.NewConflictError(domain.CodeDuplicateSession,
		"a session with this token already exists",
		domain.ConflictInfo{SessionID: existing.ID.String(), Status: existing.Status})
}
