package incident

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
)

// Report statuses
const (
	StatusPending   = "pending"
	StatusReviewed  = "reviewed"
	StatusEscalated = "escalated"
	StatusDismissed = "dismissed"
)

var transitions = map[string][]string{
	StatusPending:   {StatusReviewed, StatusDismissed, StatusEscalated},
	StatusReviewed:  {StatusDismissed, StatusEscalated},
	StatusEscalated: {},
	StatusDismissed: {},
}

// CanTransition reports whether a report may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsFinal reports whether status accepts no further review.
func IsFinal(status string) bool {
	return len(transitions[status]) == 0
}

// maxClockDrift is how far ahead of the server a device clock may run.
const maxClockDrift = 5 * time.Minute

func checkIncidentTime(at time.Time) error {
	if at.After(core.NowFunc().Add(maxClockDrift)) {
		return core.NewValidationError(nil, core.FieldError{Field: "incident_at", Error: "incident time cannot be in the future"})
	}
	return nil
}

type Report struct {
	ID           string      `json:"id"`
	StudentID    string      `json:"student_id"`
	ReporterID   string      `json:"reporter_id"`
	OffenseCode  string      `json:"offense_code"`
	Severity     string      `json:"severity"`
	IncidentAt   time.Time   `json:"incident_at"`
	Location     string      `json:"location"`
	Narrative    string      `json:"narrative"`
	Witnesses    string      `json:"witnesses"`
	ActionTaken  string      `json:"action_taken"`
	Status       string      `json:"status"`
	CaseID       null.String `json:"case_id"`
	ClientRef    null.String `json:"client_ref"`
	ReviewedByID null.String `json:"reviewed_by_id"`
	ReviewNotes  string      `json:"review_notes"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// NewReport is what a teacher submits. ClientRef is set by clients that queue reports offline.
type NewReport struct {
	StudentID   string    `json:"student_id" validate:"required"`
	OffenseCode string    `json:"offense_code" validate:"required,offense"`
	IncidentAt  time.Time `json:"incident_at" validate:"required"`
	Location    string    `json:"location" validate:"max=255"`
	Narrative   string    `json:"narrative" validate:"required,max=5000"`
	Witnesses   string    `json:"witnesses" validate:"max=1000"`
	ActionTaken string    `json:"action_taken" validate:"max=1000"`
	ClientRef   string    `json:"client_ref" validate:"omitempty,uuid"`
}

func (nr *NewReport) Validate(validate *validator.Validate) error {
	nr.StudentID = core.CleanString(nr.StudentID)
	nr.OffenseCode = core.CleanString(nr.OffenseCode)
	nr.Location = core.CleanString(nr.Location)
	nr.Narrative = core.CleanString(nr.Narrative)
	nr.Witnesses = core.CleanString(nr.Witnesses)
	nr.ActionTaken = core.CleanString(nr.ActionTaken)
	nr.ClientRef = core.CleanString(nr.ClientRef, true /* lower */)

	if err := validate.Struct(nr); err != nil {
		return err
	}
	return checkIncidentTime(nr.IncidentAt)
}

// Review is a POD decision on a pending report.
type Review struct {
	Status string `json:"status" validate:"required,oneof=reviewed dismissed"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// SubmitResult is returned after a report is submitted; Case and CallSlip are set when it escalated.
type SubmitResult struct {
	Report    Report             `json:"report"`
	Case      *casefile.Case     `json:"case,omitempty"`
	CallSlip  *casefile.CallSlip `json:"call_slip,omitempty"`
	Duplicate bool               `json:"duplicate,omitempty"`
}

// SyncItemResult is the outcome of one queued report in an offline sync batch.
type SyncItemResult struct {
	ClientRef string        `json:"client_ref"`
	Result    *SubmitResult `json:"result,omitempty"`
	Err       error         `json:"-"`
	Error     interface{}   `json:"error,omitempty"` // set by the transport from Err
}

type QueryFilter struct {
	StudentID   string    `query:"student_id"`
	ReporterID  string    `query:"reporter_id"`
	CaseID      string    `query:"case_id"`
	Status      []string  `query:"status"`
	Severity    string    `query:"severity"`
	OffenseCode string    `query:"offense_code"`
	From        time.Time `query:"from"`
	To          time.Time `query:"to"`
	Search      string    `query:"search"` // narrative, location
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.ReporterID = core.CleanString(qf.ReporterID)
	qf.CaseID = core.CleanString(qf.CaseID)
	qf.Severity = core.CleanString(qf.Severity, true)
	qf.OffenseCode = core.CleanString(qf.OffenseCode)
	qf.Search = core.CleanString(qf.Search)
}

// MinorCountFilter selects the un-escalated minor reports of a student.
type MinorCountFilter struct {
	StudentID string
	Since     time.Time // zero: no limit
}

type OffenseCount struct {
	OffenseCode string `json:"offense_code" db:"offense_code"`
	Count       int    `json:"count" db:"cnt"`
}

type Summary struct {
	ByStatus    map[string]int `json:"by_status"`
	BySeverity  map[string]int `json:"by_severity"`
	TopOffenses []OffenseCount `json:"top_offenses"`
	OpenCases   int            `json:"open_cases"`
}

// OrderingFields maps API ordering fields to columns.
var OrderingFields = map[string]string{
	"incident_at":  "incident_at",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"status":       "status",
	"severity":     "severity",
	"offense_code": "offense_code",
}
