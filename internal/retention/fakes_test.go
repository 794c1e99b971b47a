package retention

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

// fakeStore carries only the lifecycle state retention touches. The ingest
// side of the Store contract is stubbed out.
type fakeStore struct {
	mu         sync.Mutex
	sessions   map[uuid.UUID]domain.Session
	patients   map[uuid.UUID]domain.Patient
	protocols  map[uuid.UUID]domain.Protocol
	projects   map[uuid.UUID]domain.Project
	users      map[uuid.UUID]domain.User
	dependents map[uuid.UUID]domain.CascadeCounts

	purgeUserErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:   map[uuid.UUID]domain.Session{},
		patients:   map[uuid.UUID]domain.Patient{},
		protocols:  map[uuid.UUID]domain.Protocol{},
		projects:   map[uuid.UUID]domain.Project{},
		users:      map[uuid.UUID]domain.User{},
		dependents: map[uuid.UUID]domain.CascadeCounts{},
	}
}

func deletedAt(t time.Time) gorm.DeletedAt {
	return gorm.DeletedAt{Time: t, Valid: true}
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

func (f *fakeStore) SoftDeleteSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.DeletedAt.Valid {
		return nil, store.ErrSessionNotFound
	}
	s.Status = domain.StatusCancelled
	s.DeletedAt = deletedAt(time.Now())
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
	for _, p := range f.patients {
		if p.DeletedAt.Valid && p.DeletedAt.Time.Before(cutoff) {
			out.Patients = append(out.Patients, p)
		}
	}
	for _, p := range f.protocols {
		if p.DeletedAt.Valid && p.DeletedAt.Time.Before(cutoff) {
			out.Protocols = append(out.Protocols, p)
		}
	}
	for _, p := range f.projects {
		if p.DeletedAt.Valid && p.DeletedAt.Time.Before(cutoff) {
			out.Projects = append(out.Projects, p)
		}
	}
	for _, u := range f.users {
		if u.DeletedAt.Valid && u.DeletedAt.Time.Before(cutoff) {
			out.Users = append(out.Users, u)
		}
	}
	return out, nil
}

func (f *fakeStore) PurgePatient(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.patients, id)
	return nil
}

func (f *fakeStore) PurgeProtocol(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.protocols, id)
	return nil
}

func (f *fakeStore) PurgeProject(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.projects, id)
	return nil
}

func (f *fakeStore) PurgeUser(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purgeUserErr != nil {
		return f.purgeUserErr
	}
	delete(f.users, id)
	return nil
}

func (f *fakeStore) CreateSession(ctx context.Context, s *domain.Session) (*store.CreateResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeStore) FindSessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	return nil, store.ErrSessionNotFound
}

func (f *fakeStore) UpdateSession(ctx context.Context, id uuid.UUID, patch domain.SessionPatch) (*domain.Session, error) {
	return nil, errors.New("not used")
}

func (f *fakeStore) FindPatientByRef(ctx context.Context, ref string) (*domain.Patient, error) {
	return nil, store.ErrPatientNotFound
}

func (f *fakeStore) FindProtocolByID(ctx context.Context, id uuid.UUID) (*domain.Protocol, error) {
	return nil, store.ErrProtocolNotFound
}

func (f *fakeStore) FindActiveProtocol(ctx context.Context) (*domain.Protocol, error) {
	return nil, store.ErrProtocolNotFound
}

// fakeBlob holds durable refs keyed by full URI.
type fakeBlob struct {
	mu      sync.Mutex
	objects map[string]bool
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string]bool{}}
}

func (f *fakeBlob) put(refs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ref := range refs {
		f.objects[ref] = true
	}
}

func (f *fakeBlob) Upload(ctx context.Context, localPath, destPath string) (string, error) {
	f.put(destPath)
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

// fakeQueue records cancellations; failing job IDs are injectable.
type fakeQueue struct {
	mu        sync.Mutex
	cancelled []string
	failJobs  map[string]bool
}

func (f *fakeQueue) Enqueue(ctx context.Context, jobType queue.JobType, payload queue.Payload) (queue.DispatchResult, error) {
	return queue.DispatchResult{}, errors.New("not used")
}

func (f *fakeQueue) Cancel(ctx context.Context, jobID string, jobType queue.JobType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failJobs[jobID] {
		return false, errors.New("cancel failed")
	}
	f.cancelled = append(f.cancelled, jobID)
	return true, nil
}
