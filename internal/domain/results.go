package domain

import "time"

// CascadeCounts reports how many dependent records a session cascade removed.
type CascadeCounts struct {
	Analyses      int64 `json:"deletedAnalyses"`
	Annotations   int64 `json:"deletedAnnotations"`
	SignalResults int64 `json:"deletedSignalResults"`
	LabelImages   int64 `json:"deletedLabelImages"`
}

// Total sums the cascade.
func (c CascadeCounts) Total() int64 {
	return c.Analyses + c.Annotations + c.SignalResults + c.LabelImages
}

// SubmitResult is returned by the priority and legacy ingestion channels.
type SubmitResult struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
}

// VideoResult is returned by the background channel.
type VideoResult struct {
	SessionID string        `json:"sessionId"`
	Path      string        `json:"path"`
	Status    SessionStatus `json:"status"`
}

// SessionView is the full status readout for one session, including the
// per-artifact upload flags derived from the placeholder convention.
type SessionView struct {
	SessionID         string        `json:"sessionId"`
	MobileSessionID   string        `json:"mobileSessionId"`
	Status            SessionStatus `json:"status"`
	AnalysisProgress  int           `json:"analysisProgress"`
	AnalysisError     string        `json:"analysisError,omitempty"`
	VideoUploaded     bool          `json:"videoUploaded"`
	KeypointsUploaded bool          `json:"keypointsUploaded"`
	AnalysisReady     bool          `json:"analysisReady"`
	ReportReady       bool          `json:"reportReady"`
	PlaybackURL       string        `json:"playbackUrl,omitempty"`
}

// DeleteResult reports the outcome of a soft delete.
type DeleteResult struct {
	SessionID             string        `json:"sessionId"`
	CancelledJobs         []string      `json:"cancelledJobs"`
	Cascade               CascadeCounts `json:"cascade"`
	PermanentDeletionDate time.Time     `json:"permanentDeletionDate"`
}

// CleanupPreview is the read-only sweep report.
type CleanupPreview struct {
	CutoffDate time.Time      `json:"cutoffDate"`
	Candidates map[string]int `json:"candidates"`
	Total      int            `json:"total"`
}

// CleanupReport is the result of an actual purge run. Failures are
// accumulated per entity and never abort the batch.
type CleanupReport struct {
	Deleted  map[string]int `json:"deleted"`
	Total    int            `json:"total"`
	Failures []string       `json:"failures,omitempty"`
}
