package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"handpose-backend/internal/domain"
	"handpose-backend/internal/queue"
	"handpose-backend/internal/store"
)

// fakeStore is an in-memory store.Store with the same conflict semantics as
// the real one: the token constraint is enforced at insert time.
type fakeStore struct {
	mu         sync.Mutex
	sessions   map[uuid.UUID]domain.Session
	patients   []domain.Patient
	protocols  []domain.Protocol
	dependents map[uuid.UUID]domain.CascadeCounts
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:   map[uuid.UUID]domain.Session{},
		dependents: map[uuid.UUID]domain.CascadeCounts{},
	}
}

func (f *fakeStore) CreateSession(ctx context.Context, s *domain.Session) (*store.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.MobileSessionID == s.MobileSessionID && !existing.DeletedAt.Valid {
			winner := existing
			return &store.CreateResult{Session: &winner, AlreadyExists: true}, nil
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	f.sessions[s.ID] = *s
	copied := *s
	return &store.CreateResult{Session: &copied}, nil
}

func (f *fakeStore) FindSessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.MobileSessionID == token && !s.DeletedAt.Valid {
			copied := s
			return &copied, nil
		}
	}
	return nil, store.ErrSessionNotFound
}

func (f *fakeStore) FindSessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.DeletedAt.Valid {
		return nil, store.ErrSessionNotFound
	}
	copied := s
	return &copied, nil
}

func (f *fakeStore) UpdateSession(ctx context.Context, id uuid.UUID, patch domain.SessionPatch) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.DeletedAt.Valid {
		return nil, store.ErrSessionNotFound
	}
	if patch.VideoPath != nil {
		s.VideoPath = *patch.VideoPath
	}
	if patch.KeypointsPath != nil {
		s.KeypointsPath = *patch.KeypointsPath
	}
	if patch.AnalysisPath != nil {
		s.AnalysisPath = *patch.AnalysisPath
	}
	if patch.ReportPath != nil {
		s.ReportPath = *patch.ReportPath
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.AnalysisProgress != nil {
		s.AnalysisProgress = *patch.AnalysisProgress
	}
	if patch.AnalysisError != nil {
		s.AnalysisError = *patch.AnalysisError
	}
	if patch.FPS != nil {
		s.FPS = *patch.FPS
	}
	if patch.DurationSeconds != nil {
		s.DurationSeconds = *patch.DurationSeconds
	}
	if patch.GripStrength != nil {
		s.GripStrength = patch.GripStrength
	}
	if patch.DeviceInfo != nil {
		s.DeviceInfo = patch.DeviceInfo
	}
	if patch.Notes != nil {
		s.Notes = *patch.Notes
	}
	s.UpdatedAt = time.Now()
	f.sessions[id] = s
	copied := s
	return &copied, nil
}

func (f *fakeStore) SoftDeleteSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.DeletedAt.Valid {
		return nil, store.ErrSessionNotFound
	}
	s.Status = domain.StatusCancelled
	s.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	f.sessions[id] = s
	copied := s
	return &copied, nil
}

func (f *fakeStore) PurgeSession(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeStore) FindPatientByRef(ctx context.Context, ref string) (*domain.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.patients {
		if p.ID.String() == ref || p.ExternalID == ref {
			copied := p
			return &copied, nil
		}
	}
	return nil, store.ErrPatientNotFound
}

func (f *fakeStore) FindProtocolByID(ctx context.Context, id uuid.UUID) (*domain.Protocol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.protocols {
		if p.ID == id && p.Active {
			copied := p
			return &copied, nil
		}
	}
	return nil, store.ErrProtocolNotFound
}

func (f *fakeStore) FindActiveProtocol(ctx context.Context) (*domain.Protocol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.protocols {
		if p.Active {
			copied := p
			return &copied, nil
		}
	}
	return nil, store.ErrProtocolNotFound
}

func (f *fakeStore) DeleteSessionDependents(ctx context.Context, sessionID uuid.UUID) (domain.CascadeCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := f.dependents[sessionID]
	delete(f.dependents, sessionID)
	return counts, nil
}

func (f *fakeStore) ListDeletedPastCutoff(ctx context.Context, cutoff time.Time) (*store.CleanupCandidates, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &store.CleanupCandidates{}
	for _, s := range f.sessions {
		if s.DeletedAt.Valid && s.DeletedAt.Time.Before(cutoff) {
			out.Sessions = append(out.Sessions, s)
		}
	}
	return out, nil
}

func (f *fakeStore) PurgePatient(ctx context.Context, id uuid.UUID) error  { return nil }
func (f *fakeStore) PurgeProtocol(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeStore) PurgeProject(ctx context.Context, id uuid.UUID) error  { return nil }
func (f *fakeStore) PurgeUser(ctx context.Context, id uuid.UUID) error     { return nil }

// fakeBlob records uploads under their durable refs. Failures are injected
// by destination substring.
type fakeBlob struct {
	mu         sync.Mutex
	objects    map[string]bool
	failSubstr string
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string]bool{}}
}

func (f *fakeBlob) Upload(ctx context.Context, localPath, destPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubstr != "" && strings.Contains(destPath, f.failSubstr) {
		return "", errors.New("upload failed")
	}
	f.objects[destPath] = true
	return destPath, nil
}

func (f *fakeBlob) Exists(ctx context.Context, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[ref], nil
}

func (f *fakeBlob) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []string
	for ref := range f.objects {
		if strings.Contains(ref, "/"+prefix) {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func (f *fakeBlob) SignedURL(ref string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + ref, nil
}

func (f *fakeBlob) Delete(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, ref)
	return nil
}

// fakeQueue records dispatches and cancellations.
type fakeQueue struct {
	mu         sync.Mutex
	enqueued   []queue.Payload
	types      []queue.JobType
	enqueueErr error
	cancelled  []string
}

func (f *fakeQueue) Enqueue(ctx context.Context, jobType queue.JobType, payload queue.Payload) (queue.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return queue.DispatchResult{}, f.enqueueErr
	}
	payload.JobID = queue.JobID(jobType, payload.SessionID)
	f.enqueued = append(f.enqueued, payload)
	f.types = append(f.types, jobType)
	return queue.DispatchResult{JobID: payload.JobID, MessageID: "msg-1"}, nil
}

func (f *fakeQueue) Cancel(ctx context.Context, jobID string, jobType queue.JobType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return true, nil
}
