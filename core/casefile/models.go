package casefile

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
)

// Case severities
const (
	SeverityMinor = "minor"
	SeverityMajor = "major"
)

// Case origins
const (
	OriginDirect    = "direct"    // opened from a major offense report
	OriginEscalated = "escalated" // opened from repeated minor offenses
	OriginManual    = "manual"    // opened by POD staff
)

// Case statuses
const (
	StatusOpen           = "open"
	StatusCallSlipIssued = "call_slip_issued"
	StatusConference     = "conference"
	StatusReferred       = "referred"
	StatusResolved       = "resolved"
	StatusClosed         = "closed"
)

// Call slip statuses
const (
	SlipIssued    = "issued"
	SlipAttended  = "attended"
	SlipMissed    = "missed"
	SlipCancelled = "cancelled"
)

var (
	transitions = map[string][]string{
		StatusOpen:           {StatusCallSlipIssued, StatusReferred, StatusResolved, StatusClosed},
		StatusCallSlipIssued: {StatusConference, StatusReferred, StatusResolved, StatusClosed},
		StatusConference:     {StatusReferred, StatusResolved, StatusClosed},
		StatusReferred:       {StatusResolved, StatusClosed},
		StatusResolved:       {StatusClosed},
		StatusClosed:         {},
	}

	slipTransitions = map[string][]string{
		SlipIssued:    {SlipAttended, SlipMissed, SlipCancelled},
		SlipMissed:    {SlipAttended, SlipCancelled},
		SlipAttended:  {},
		SlipCancelled: {},
	}

	Statuses = []string{StatusOpen, StatusCallSlipIssued, StatusConference, StatusReferred, StatusResolved, StatusClosed}
)

func allowed(graph map[string][]string, from, to string) bool {
	for _, s := range graph[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether a case may move from one status to another.
func CanTransition(from, to string) bool { return allowed(transitions, from, to) }

// IsFinal reports whether the case no longer accepts call slips.
func IsFinal(status string) bool {
	return status == StatusResolved || status == StatusClosed
}

type Case struct {
	ID         string      `json:"id"`
	CaseNo     string      `json:"case_no"`
	StudentID  string      `json:"student_id"`
	Severity   string      `json:"severity"`
	Origin     string      `json:"origin"`
	Status     string      `json:"status"`
	HandlerID  null.String `json:"handler_id"`
	Summary    string      `json:"summary"`
	Resolution string      `json:"resolution"`
	Remarks    string      `json:"remarks"`
	OpenedAt   time.Time   `json:"opened_at"`
	ClosedAt   null.Time   `json:"closed_at"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type CallSlip struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"case_id"`
	StudentID   string    `json:"student_id"`
	IssuedByID  string    `json:"issued_by_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Venue       string    `json:"venue"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewCase is used by POD staff to open a case manually.
type NewCase struct {
	StudentID string      `json:"student_id" validate:"required"`
	Severity  string      `json:"severity" validate:"required,oneof=minor major"`
	Summary   string      `json:"summary" validate:"required,max=2000"`
	HandlerID null.String `json:"handler_id"`
}

func (nc *NewCase) Clean() {
	nc.StudentID = core.CleanString(nc.StudentID)
	nc.Severity = core.CleanString(nc.Severity, true /* lower */)
	nc.Summary = core.CleanString(nc.Summary)
}

// UpdateCase defines the editable details of a Case; nil fields are kept.
type UpdateCase struct {
	HandlerID  null.String `json:"handler_id"`
	Summary    *string     `json:"summary" validate:"omitempty,max=2000"`
	Resolution *string     `json:"resolution" validate:"omitempty,max=2000"`
	Remarks    *string     `json:"remarks" validate:"omitempty,max=2000"`
}

type StatusChange struct {
	Status string `json:"status" validate:"required,oneof=open call_slip_issued conference referred resolved closed"`
}

type NewCallSlip struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Venue       string    `json:"venue" validate:"max=255"`
	Reason      string    `json:"reason" validate:"max=1000"`
}

type SlipStatusChange struct {
	Status string `json:"status" validate:"required,oneof=issued attended missed cancelled"`
}

type QueryFilter struct {
	StudentID  string    `query:"student_id"`
	HandlerID  string    `query:"handler_id"`
	Status     []string  `query:"status"`
	Severity   string    `query:"severity"`
	Origin     string    `query:"origin"`
	Search     string    `query:"search"` // case number
	OpenedFrom time.Time `query:"opened_from"`
	OpenedTo   time.Time `query:"opened_to"`
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.HandlerID = core.CleanString(qf.HandlerID)
	qf.Severity = core.CleanString(qf.Severity, true)
	qf.Origin = core.CleanString(qf.Origin, true)
	qf.Search = core.CleanString(qf.Search)
}

type SlipFilter struct {
	CaseID        string    `query:"case_id"`
	StudentID     string    `query:"student_id"`
	Status        string    `query:"status"`
	ScheduledFrom time.Time `query:"scheduled_from"`
	ScheduledTo   time.Time `query:"scheduled_to"`
}

// OrderingFields maps API ordering fields to columns.
var OrderingFields = map[string]string{
	"case_no":    "case_no",
	"status":     "status",
	"severity":   "severity",
	"opened_at":  "opened_at",
	"closed_at":  "closed_at",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

var SlipOrderingFields = map[string]string{
	"scheduled_at": "scheduled_at",
	"status":       "status",
	"created_at":   "created_at",
}
