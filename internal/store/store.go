package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"handpose-backend/internal/domain"
)

// Store defines persistence behavior for sessions and the entities swept by
// retention. All coordination between racing ingestion channels happens here,
// through the token uniqueness constraint, never through in-process locks.
type Store interface {
	// CreateSession inserts a session row. A concurrent or repeated
	// submission with the same mobile token is an expected outcome, not an
	// exception: the result reports AlreadyExists with the existing row.
	CreateSession(ctx context.Context, s *domain.Session) (*CreateResult, error)
	FindSessionByToken(ctx context.Context, token string) (*domain.Session, error)
	FindSessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	UpdateSession(ctx context.Context, id uuid.UUID, patch domain.SessionPatch) (*domain.Session, error)

	// SoftDeleteSession marks the session cancelled and sets its deletion
	// timestamp. The row stays physically present until purge.
	SoftDeleteSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	PurgeSession(ctx context.Context, id uuid.UUID) error

	FindPatientByRef(ctx context.Context, ref string) (*domain.Patient, error)
	FindProtocolByID(ctx context.Context, id uuid.UUID) (*domain.Protocol, error)
	FindActiveProtocol(ctx context.Context) (*domain.Protocol, error)

	// DeleteSessionDependents hard-deletes every dependent record owned by
	// the session and reports how many of each kind were removed.
	DeleteSessionDependents(ctx context.Context, sessionID uuid.UUID) (domain.CascadeCounts, error)

	// ListDeletedPastCutoff returns every soft-deleted entity whose deletion
	// timestamp precedes the cutoff, grouped by type.
	ListDeletedPastCutoff(ctx context.Context, cutoff time.Time) (*CleanupCandidates, error)
	PurgePatient(ctx context.Context, id uuid.UUID) error
	PurgeProtocol(ctx context.Context, id uuid.UUID) error
	PurgeProject(ctx context.Context, id uuid.UUID) error
	PurgeUser(ctx context.Context, id uuid.UUID) error
}

// CreateResult is the tagged outcome of CreateSession.
type CreateResult struct {
	Session       *domain.Session
	AlreadyExists bool
}

// CleanupCandidates groups soft-deleted entities eligible for permanent
// purge.
type CleanupCandidates struct {
	Sessions  []domain.Session
	Patients  []domain.Patient
	Protocols []domain.Protocol
	Projects  []domain.Project
	Users     []domain.User
}

// Total counts candidates across all entity types.
func (c *CleanupCandidates) Total() int {
	return len(c.Sessions) + len(c.Patients) + len(c.Protocols) + len(c.Projects) + len(c.Users)
}
