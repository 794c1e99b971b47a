package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"handpose-backend/internal/domain"
	"handpose-backend/internal/pathplan"
	"handpose-backend/internal/queue"
	"handpose-backend/internal/store"
)

// LegacyRequest is the unified single-request upload kept for old clients.
type LegacyRequest struct {
	Token         string
	PatientRef    string
	VideoFile     string
	KeypointsFile string
	MetadataFile  string
}

// SubmitLegacy handles the pre-dual-channel combined upload. Creation is
// unconditional (no pre-existence check) and the status vocabulary is the
// old one: uploaded, or processing when a video rode along. This path is
// frozen; new integrations use SubmitKeypoints/SubmitVideo.
func (s *Service) SubmitLegacy(ctx context.Context, req LegacyRequest) (*domain.SubmitResult, error) {
	defer s.temp.Remove(req.VideoFile)
	defer s.temp.Remove(req.KeypointsFile)
	defer s.temp.Remove(req.MetadataFile)

	if req.PatientRef == "" {
		return nil, domain.NewValidationError("patient reference is required")
	}
	if req.VideoFile == "" && req.KeypointsFile == "" {
		return nil, domain.NewValidationError("at least one of video or keypoints is required")
	}
	if req.Token == "" {
		req.Token = uuid.NewString()
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

	status := domain.StatusUploaded
	if req.VideoFile != "" {
		status = domain.StatusProcessing
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
		Status:          status,
		DeviceInfo:      deviceInfo,
		FPS:             known.FPS,
	}

	created, err := s.store.CreateSession(ctx, session)
	if err != nil {
		return nil, s.internal("create session", req.Token, err)
	}
	if created.AlreadyExists {
		// The old clients never retried with the same token; the store
		// constraint still has the last word.
		return nil, duplicateSession(created.Session)
	}
	session = created.Session

	patch := domain.SessionPatch{}
	if req.KeypointsFile != "" {
		ref, err := s.blob.Upload(ctx, req.KeypointsFile, pathplan.URI(s.cfg.GCSBucket, paths.Keypoints))
		if err != nil {
			s.log.Error("legacy keypoints upload failed", "token", req.Token, "err", err)
			s.recordDegraded(ctx, session.ID, session.Status, "keypoints upload failed: "+err.Error())
			return &domain.SubmitResult{SessionID: session.ID.String(), Status: session.Status}, nil
		}
		patch.KeypointsPath = &ref
	}

	var videoRef string
	if req.VideoFile != "" {
		videoRef, err = s.blob.Upload(ctx, req.VideoFile, pathplan.URI(s.cfg.GCSBucket, paths.Video))
		if err != nil {
			s.log.Error("legacy video upload failed", "token", req.Token, "err", err)
			s.recordDegraded(ctx, session.ID, session.Status, "video upload failed: "+err.Error())
			return &domain.SubmitResult{SessionID: session.ID.String(), Status: session.Status}, nil
		}
		patch.VideoPath = &videoRef
	}

	if _, err := s.store.UpdateSession(ctx, session.ID, patch); err != nil {
		return nil, s.internal("record legacy upload", req.Token, err)
	}

	if req.VideoFile != "" {
		if _, err := s.queue.Enqueue(ctx, queue.JobTypeVideo, queue.Payload{
			SessionID:    session.ID.String(),
			SessionToken: req.Token,
			VideoRef:     videoRef,
		}); err != nil {
			s.log.Error("video-processing dispatch failed", "token", req.Token, "err", err)
			s.recordDegraded(ctx, session.ID, domain.StatusUploaded, "video-processing dispatch failed: "+err.Error())
			return &domain.SubmitResult{SessionID: session.ID.String(), Status: domain.StatusUploaded}, nil
		}
	}

	s.log.Info("session created", "token", req.Token, "session", session.ID.String(), "channel", "legacy")
	return &domain.SubmitResult{SessionID: session.ID.String(), Status: status}, nil
}
