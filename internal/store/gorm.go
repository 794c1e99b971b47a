package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"handpose-backend/internal/domain"
)

// pgErrUniqueViolation is the Postgres unique_violation SQLSTATE.
const pgErrUniqueViolation = "23505"

// GormStore implements Store on a gorm database handle.
type GormStore struct {
	db *gorm.DB
}

// OpenPostgres connects to Postgres and migrates the schema.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing gorm handle and runs migrations.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&domain.Session{},
		&domain.ClinicalAnalysis{},
		&domain.Annotation{},
		&domain.SignalResult{},
		&domain.LabelImage{},
		&domain.Patient{},
		&domain.Protocol{},
		&domain.Project{},
		&domain.User{},
	); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

func (g *GormStore) CreateSession(ctx context.Context, s *domain.Session) (*CreateResult, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := g.db.WithContext(ctx).Create(s).Error
	if err == nil {
		return &CreateResult{Session: s}, nil
	}
	if !isUniqueViolation(err) {
		return nil, err
	}
	// Lost the race (or repeated submission). Hand back the winning row so
	// the caller can surface a conflict carrying its identity.
	existing, findErr := g.FindSessionByToken(ctx, s.MobileSessionID)
	if findErr != nil {
		return nil, err
	}
	return &CreateResult{Session: existing, AlreadyExists: true}, nil
}

func (g *GormStore) FindSessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	var s domain.Session
	err := g.db.WithContext(ctx).Where("mobile_session_id = ?", token).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (g *GormStore) FindSessionByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var s domain.Session
	err := g.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (g *GormStore) UpdateSession(ctx context.Context, id uuid.UUID, patch domain.SessionPatch) (*domain.Session, error) {
	updates := map[string]any{}
	if patch.VideoPath != nil {
		updates["video_path"] = *patch.VideoPath
	}
	if patch.KeypointsPath != nil {
		updates["keypoints_path"] = *patch.KeypointsPath
	}
	if patch.AnalysisPath != nil {
		updates["analysis_path"] = *patch.AnalysisPath
	}
	if patch.ReportPath != nil {
		updates["report_path"] = *patch.ReportPath
	}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.AnalysisProgress != nil {
		updates["analysis_progress"] = *patch.AnalysisProgress
	}
	if patch.AnalysisError != nil {
		updates["analysis_error"] = *patch.AnalysisError
	}
	if patch.FPS != nil {
		updates["fps"] = *patch.FPS
	}
	if patch.DurationSeconds != nil {
		updates["duration_seconds"] = *patch.DurationSeconds
	}
	if patch.GripStrength != nil {
		updates["grip_strength"] = patch.GripStrength
	}
	if patch.DeviceInfo != nil {
		updates["device_info"] = patch.DeviceInfo
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if len(updates) > 0 {
		res := g.db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrSessionNotFound
		}
	}
	return g.FindSessionByID(ctx, id)
}

func (g *GormStore) SoftDeleteSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Session{}).Where("id = ?", id).
			Update("status", string(domain.StatusCancelled))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return tx.Delete(&domain.Session{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	var s domain.Session
	if err := g.db.WithContext(ctx).Unscoped().First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (g *GormStore) PurgeSession(ctx context.Context, id uuid.UUID) error {
	return g.db.WithContext(ctx).Unscoped().Delete(&domain.Session{}, "id = ?", id).Error
}

func (g *GormStore) FindPatientByRef(ctx context.Context, ref string) (*domain.Patient, error) {
	var p domain.Patient
	q := g.db.WithContext(ctx)
	var err error
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		err = q.First(&p, "id = ?", id).Error
	} else {
		err = q.Where("external_id = ?", ref).First(&p).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *GormStore) FindProtocolByID(ctx context.Context, id uuid.UUID) (*domain.Protocol, error) {
	var p domain.Protocol
	err := g.db.WithContext(ctx).Where("active = ?", true).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProtocolNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *GormStore) FindActiveProtocol(ctx context.Context) (*domain.Protocol, error) {
	var p domain.Protocol
	err := g.db.WithContext(ctx).Where("active = ?", true).
		Order("created_at ASC").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProtocolNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *GormStore) DeleteSessionDependents(ctx context.Context, sessionID uuid.UUID) (domain.CascadeCounts, error) {
	var counts domain.CascadeCounts
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&domain.ClinicalAnalysis{}, "session_id = ?", sessionID)
		if res.Error != nil {
			return res.Error
		}
		counts.Analyses = res.RowsAffected

		res = tx.Delete(&domain.Annotation{}, "session_id = ?", sessionID)
		if res.Error != nil {
			return res.Error
		}
		counts.Annotations = res.RowsAffected

		res = tx.Delete(&domain.SignalResult{}, "session_id = ?", sessionID)
		if res.Error != nil {
			return res.Error
		}
		counts.SignalResults = res.RowsAffected

		res = tx.Delete(&domain.LabelImage{}, "session_id = ?", sessionID)
		if res.Error != nil {
			return res.Error
		}
		counts.LabelImages = res.RowsAffected
		return nil
	})
	return counts, err
}

func pastCutoff(db *gorm.DB, cutoff time.Time) *gorm.DB {
	return db.Unscoped().Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff)
}

func (g *GormStore) ListDeletedPastCutoff(ctx context.Context, cutoff time.Time) (*CleanupCandidates, error) {
	db := g.db.WithContext(ctx)
	out := &CleanupCandidates{}
	if err := pastCutoff(db, cutoff).Find(&out.Sessions).Error; err != nil {
		return nil, err
	}
	if err := pastCutoff(db, cutoff).Find(&out.Patients).Error; err != nil {
		return nil, err
	}
	if err := pastCutoff(db, cutoff).Find(&out.Protocols).Error; err != nil {
		return nil, err
	}
	if err := pastCutoff(db, cutoff).Find(&out.Projects).Error; err != nil {
		return nil, err
	}
	if err := pastCutoff(db, cutoff).Find(&out.Users).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (g *GormStore) PurgePatient(ctx context.Context, id uuid.UUID) error {
	return g.db.WithContext(ctx).Unscoped().Delete(&domain.Patient{}, "id = ?", id).Error
}

func (g *GormStore) PurgeProtocol(ctx context.Context, id uuid.UUID) error {
	return g.db.WithContext(ctx).Unscoped().Delete(&domain.Protocol{}, "id = ?", id).Error
}

func (g *GormStore) PurgeProject(ctx context.Context, id uuid.UUID) error {
	return g.db.WithContext(ctx).Unscoped().Delete(&domain.Project{}, "id = ?", id).Error
}

func (g *GormStore) PurgeUser(ctx context.Context, id uuid.UUID) error {
	return g.db.WithContext(ctx).Unscoped().Delete(&domain.User{}, "id = ?", id).Error
}
