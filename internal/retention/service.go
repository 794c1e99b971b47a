// Package retention owns the soft-delete, grace-period and permanent-purge
// lifecycle of captured sessions and their peers.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"handpose-backend/internal/blob"
	"handpose-backend/internal/domain"
	"handpose-backend/internal/pathplan"
	"handpose-backend/internal/queue"
	"handpose-backend/internal/store"
)

// Service is the retention manager. Collaborators are injected; now is
// swappable for tests.
type Service struct {
	store  store.Store
	blob   blob.Store
	queue  queue.Queue
	window time.Duration
	log    *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service with the given retention window.
func NewService(st store.Store, bs blob.Store, q queue.Queue, window time.Duration, log *slog.Logger) *Service {
	return &Service{store: st, blob: bs, queue: q, window: window, log: log, now: time.Now}
}

// SoftDelete cancels the session's in-flight jobs, cascades its dependent
// records, and marks the session deleted. Once the record exists, deletion
// always succeeds: job cancellation and everything after it is best effort.
// Blobs are deliberately left in place until the grace window expires.
func (s *Service) SoftDelete(ctx context.Context, sessionID uuid.UUID, actor string) (*domain.DeleteResult, error) {
	session, err := s.store.FindSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, domain.NewNotFoundError(domain.CodeSessionNotFound, "session not found")
		}
		return nil, domain.NewInternalError(fmt.Sprintf("lookup session: %v", err))
	}

	var cancelled []string
	for _, jobType := range queue.AllJobTypes {
		jobID := queue.JobID(jobType, session.ID.String())
		ok, err := s.queue.Cancel(ctx, jobID, jobType)
		if err != nil {
			s.log.Warn("job cancellation failed", "job", jobID, "err", err)
			continue
		}
		if ok {
			cancelled = append(cancelled, jobID)
		}
	}

	// Blob paths stay recorded on the soft-deleted row; the sweep reads them
	// back at purge time. Nothing is deleted from the blob store here.
	counts, err := s.store.DeleteSessionDependents(ctx, session.ID)
	if err != nil {
		return nil, domain.NewInternalError(fmt.Sprintf("cascade dependents: %v", err))
	}

	deleted, err := s.store.SoftDeleteSession(ctx, session.ID)
	if err != nil {
		return nil, domain.NewInternalError(fmt.Sprintf("soft delete session: %v", err))
	}

	purgeDate := deleted.DeletedAt.Time.Add(s.window)
	s.log.Info("session soft-deleted",
		"session", session.ID.String(), "actor", actor,
		"cancelledJobs", len(cancelled), "cascade", counts.Total(), "purgeDate", purgeDate)

	return &domain.DeleteResult{
		SessionID:             session.ID.String(),
		CancelledJobs:         cancelled,
		Cascade:               counts,
		PermanentDeletionDate: purgeDate,
	}, nil
}

// PreviewCleanup is the read-only sweep report: everything soft-deleted
// before the cutoff, grouped by entity type.
func (s *Service) PreviewCleanup(ctx context.Context) (*domain.CleanupPreview, error) {
	cutoff := s.now().Add(-s.window)
	candidates, err := s.store.ListDeletedPastCutoff(ctx, cutoff)
	if err != nil {
		return nil, domain.NewInternalError(fmt.Sprintf("list cleanup candidates: %v", err))
	}
	return &domain.CleanupPreview{
		CutoffDate: cutoff,
		Candidates: map[string]int{
			"sessions":  len(candidates.Sessions),
			"patients":  len(candidates.Patients),
			"protocols": len(candidates.Protocols),
			"projects":  len(candidates.Projects),
			"users":     len(candidates.Users),
		},
		Total: candidates.Total(),
	}, nil
}

// RunCleanupNow permanently purges everything past the retention cutoff,
// children before parents. A single entity's failure never aborts the batch,
// and a record already purged by a concurrent run is simply absent.
func (s *Service) RunCleanupNow(ctx context.Context) (*domain.CleanupReport, error) {
	cutoff := s.now().Add(-s.window)
	candidates, err := s.store.ListDeletedPastCutoff(ctx, cutoff)
	if err != nil {
		return nil, domain.NewInternalError(fmt.Sprintf("list cleanup candidates: %v", err))
	}

	report := &domain.CleanupReport{Deleted: map[string]int{}}

	for _, session := range candidates.Sessions {
		if err := s.purgeSession(ctx, &session); err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("session %s: %v", session.ID, err))
			continue
		}
		report.Deleted["sessions"]++
	}
	for _, p := range candidates.Patients {
		if err := s.store.PurgePatient(ctx, p.ID); err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("patient %s: %v", p.ID, err))
			continue
		}
		report.Deleted["patients"]++
	}
	for _, p := range candidates.Protocols {
		if err := s.store.PurgeProtocol(ctx, p.ID); err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("protocol %s: %v", p.ID, err))
			continue
		}
		report.Deleted["protocols"]++
	}
	for _, p := range candidates.Projects {
		if err := s.store.PurgeProject(ctx, p.ID); err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("project %s: %v", p.ID, err))
			continue
		}
		report.Deleted["projects"]++
	}
	for _, u := range candidates.Users {
		if err := s.store.PurgeUser(ctx, u.ID); err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("user %s: %v", u.ID, err))
			continue
		}
		report.Deleted["users"]++
	}

	for _, n := range report.Deleted {
		report.Total += n
	}
	if report.Total > 0 || len(report.Failures) > 0 {
		s.log.Info("cleanup run finished", "purged", report.Total, "failures", len(report.Failures))
	}
	return report, nil
}

// purgeSession removes the session's blobs by prefix, then the row. Leftover
// dependents from pre-cascade data are removed as well so no foreign keys
// are orphaned.
func (s *Service) purgeSession(ctx context.Context, session *domain.Session) error {
	for _, prefix := range pathplan.Prefix(session.MobileSessionID) {
		refs, err := s.blob.ListByPrefix(ctx, prefix)
		if err != nil {
			return fmt.Errorf("list blobs under %s: %w", prefix, err)
		}
		for _, ref := range refs {
			if err := s.blob.Delete(ctx, ref); err != nil {
				return fmt.Errorf("delete blob %s: %w", ref, err)
			}
		}
	}
	if _, err := s.store.DeleteSessionDependents(ctx, session.ID); err != nil {
		return fmt.Errorf("delete dependents: %w", err)
	}
	if err := s.store.PurgeSession(ctx, session.ID); err != nil {
		return fmt.Errorf("purge row: %w", err)
	}
	return nil
}
