package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Session is one capture encounter, identified internally by ID and
// externally by the client-chosen mobile session token. The token is unique
// among non-deleted rows so the two ingestion channels can race on it safely.
type Session struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MobileSessionID string    `gorm:"column:mobile_session_id;not null;uniqueIndex:idx_sessions_mobile_session_id,where:deleted_at IS NULL" json:"mobileSessionId"`

	PatientID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"patientId"`
	ClinicianID *uuid.UUID `gorm:"type:uuid" json:"clinicianId,omitempty"`
	ProtocolID  uuid.UUID  `gorm:"type:uuid;not null" json:"protocolId"`

	// Artifact references. NOT NULL from creation: each holds a provisional
	// placeholder URI until the real upload lands a durable reference.
	VideoPath     string `gorm:"not null" json:"videoPath"`
	KeypointsPath string `gorm:"not null" json:"keypointsPath"`
	AnalysisPath  string `gorm:"not null" json:"analysisPath"`
	ReportPath    string `gorm:"not null" json:"reportPath"`

	Status           SessionStatus `gorm:"type:varchar(32);not null" json:"status"`
	AnalysisProgress int           `gorm:"not null;default:0" json:"analysisProgress"`
	AnalysisError    string        `json:"analysisError,omitempty"`

	FPS             int            `gorm:"column:fps" json:"fps"`
	DurationSeconds float64        `json:"durationSeconds"`
	GripStrength    datatypes.JSON `json:"gripStrength,omitempty"`
	DeviceInfo      datatypes.JSON `json:"deviceInfo,omitempty"`
	Notes           string         `json:"notes,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// SessionPatch is a partial update applied by UpdateSession. Nil fields are
// left untouched.
type SessionPatch struct {
	VideoPath        *string
	KeypointsPath    *string
	AnalysisPath     *string
	ReportPath       *string
	Status           *SessionStatus
	AnalysisProgress *int
	AnalysisError    *string
	FPS              *int
	DurationSeconds  *float64
	GripStrength     datatypes.JSON
	DeviceInfo       datatypes.JSON
	Notes            *string
}

// ClinicalAnalysis is a derived per-session analysis result. Dependent
// records are hard-deleted with their session: they are cheap to regenerate
// and restoring stale ones after an undelete would be incorrect.
type ClinicalAnalysis struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID      `gorm:"type:uuid;not null;index" json:"sessionId"`
	Kind      string         `gorm:"type:varchar(64);not null" json:"kind"`
	Result    datatypes.JSON `json:"result,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Annotation is a clinician note attached to a point in the recording.
type Annotation struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID   uuid.UUID `gorm:"type:uuid;not null;index" json:"sessionId"`
	ClinicianID uuid.UUID `gorm:"type:uuid" json:"clinicianId"`
	OffsetMS    int       `json:"offsetMs"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SignalResult stores a per-session signal-processing output series.
type SignalResult struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID      `gorm:"type:uuid;not null;index" json:"sessionId"`
	Channel   string         `gorm:"type:varchar(64)" json:"channel"`
	Series    datatypes.JSON `json:"series,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// LabelImage is a rendered label frame extracted for review.
type LabelImage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"sessionId"`
	BlobPath  string    `json:"blobPath"`
	FrameIdx  int       `json:"frameIdx"`
	CreatedAt time.Time `json:"createdAt"`
}

// Patient is the capture subject. Only the fields the ingestion pipeline
// reads are modeled here; the full clinical record lives in the CRUD surface.
type Patient struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID  string         `gorm:"uniqueIndex" json:"externalId"`
	Name        string         `json:"name"`
	ClinicianID *uuid.UUID     `gorm:"type:uuid" json:"clinicianId,omitempty"`
	ProjectID   uuid.UUID      `gorm:"type:uuid" json:"projectId"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// Protocol is a capture protocol. Sessions require one; submissions default
// to the active protocol when the client does not name one.
type Protocol struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string         `json:"name"`
	Active    bool           `gorm:"not null;default:false;index" json:"active"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Project and User participate in the retention sweep only.
type Project struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"createdAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string         `gorm:"uniqueIndex" json:"email"`
	FullName  string         `json:"fullName"`
	CreatedAt time.Time      `json:"createdAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// DeviceInfoKnown is the typed projection of the free-form device-info blob.
// The coordinator reads these fields explicitly; everything else stays opaque.
type DeviceInfoKnown struct {
	Source     string `json:"source"`
	UploadMode string `json:"uploadMode"`
	FPS        int    `json:"fps"`
	ProtocolID string `json:"protocolId"`
}

// ParseDeviceInfo extracts the known projection from a raw metadata blob.
// Unknown fields are ignored, not an error.
func ParseDeviceInfo(raw []byte) (DeviceInfoKnown, error) {
	var known DeviceInfoKnown
	if len(raw) == 0 {
		return known, nil
	}
	err := json.Unmarshal(raw, &known)
	return known, err
}
