package incident

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
	"github.com/trezcool/podesk/core/student"
	"github.com/trezcool/podesk/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("report")
	ErrStudentInactive = errors.New("student is not active")
	ErrClientRefNeeded = errors.New("client_ref is required when syncing")
	ErrDuplicateRef    = errors.New("a report with this client_ref already exists")
	ErrRefTaken        = errors.New("client_ref is already used by another reporter")
)

type (
	Repository interface {
		// CreateReport returns ErrDuplicateRef when r.ClientRef was already stored.
		CreateReport(ctx context.Context, r Report, exec ...core.DBExecutor) (Report, error)
		QueryReports(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Report, error)
		GetReport(ctx context.Context, id string, exec ...core.DBExecutor) (Report, error)
		GetReportByClientRef(ctx context.Context, ref string, exec ...core.DBExecutor) (Report, error)
		UpdateReport(ctx context.Context, r Report, exec ...core.DBExecutor) (Report, error)
		// QueryUnescalatedMinor returns the minor reports of a student that are pending or reviewed and not linked to a case.
		QueryUnescalatedMinor(ctx context.Context, filter MinorCountFilter, exec ...core.DBExecutor) ([]Report, error)
		// LinkToCase marks the given reports escalated into caseID.
		LinkToCase(ctx context.Context, ids []string, caseID string, at time.Time, exec ...core.DBExecutor) error
		Summarize(ctx context.Context, exec ...core.DBExecutor) (Summary, error)
	}

	Service interface {
		Catalog() *Catalog
		Submit(ctx context.Context, reporter user.User, nr NewReport) (SubmitResult, error)
		// Sync submits reports queued offline; items are independent and replays are detected by client_ref.
		Sync(ctx context.Context, reporter user.User, items []NewReport, validate *validator.Validate) []SyncItemResult
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Report, error)
		GetByID(ctx context.Context, id string) (Report, error)
		Review(ctx context.Context, id string, reviewer user.User, rv Review) (Report, error)
		Summary(ctx context.Context) (Summary, error)
		// EscalateStudent re-runs the repeat-offense rule for a student outside of a submission.
		EscalateStudent(ctx context.Context, studentID, issuerID string) (*Escalation, error)
	}

	Deps struct {
		DB       core.DB
		Repo     Repository
		Catalog  *Catalog
		Students student.Service
		Cases    casefile.Service
		Users    user.Service
		MailSvc  core.EmailService
		Logger   core.Logger
		Conf     *core.Config
	}

	service struct {
		Deps
	}
)

var _ Service = (*service)(nil)

func NewService(deps Deps) Service {
	return &service{Deps: deps}
}

func (svc *service) Catalog() *Catalog { return svc.Deps.Catalog }

func (svc *service) loadStudent(ctx context.Context, id string, tx core.DBExecutor) (student.Student, error) {
	stu, err := svc.Students.GetByID(ctx, id, tx)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return student.Student{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return student.Student{}, errors.Wrap(err, "finding student")
	}
	if !stu.IsActive {
		return student.Student{}, core.NewValidationError(ErrStudentInactive, core.FieldError{Field: "student_id", Error: ErrStudentInactive.Error()})
	}
	return stu, nil
}

func (svc *service) Submit(ctx context.Context, reporter user.User, nr NewReport) (SubmitResult, error) {
	if nr.ClientRef != "" {
		existing, err := svc.Repo.GetReportByClientRef(ctx, nr.ClientRef)
		if err == nil {
			return replay(existing, reporter)
		}
		if errors.Cause(err) != ErrNotFound {
			return SubmitResult{}, errors.Wrap(err, "finding report by client_ref")
		}
	}
	if err := checkIncidentTime(nr.IncidentAt); err != nil {
		return SubmitResult{}, err
	}

	offense, ok := svc.Deps.Catalog.Get(nr.OffenseCode)
	if !ok {
		return SubmitResult{}, core.NewValidationError(nil, core.FieldError{Field: "offense_code", Error: offenseText})
	}

	var (
		res SubmitResult
		esc *Escalation
		stu student.Student
	)
	err := core.InTx(ctx, svc.DB, func(tx core.DBExecutor) error {
		var err error
		if stu, err = svc.loadStudent(ctx, nr.StudentID, tx); err != nil {
			return err
		}

		now := core.NowFunc()
		rpt := Report{
			StudentID:   stu.ID,
			ReporterID:  reporter.ID,
			OffenseCode: offense.Code,
			Severity:    offense.Severity,
			IncidentAt:  nr.IncidentAt.UTC(),
			Location:    nr.Location,
			Narrative:   nr.Narrative,
			Witnesses:   nr.Witnesses,
			ActionTaken: nr.ActionTaken,
			Status:      StatusPending,
			ClientRef:   null.NewString(nr.ClientRef, nr.ClientRef != ""),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if rpt, err = svc.Repo.CreateReport(ctx, rpt, tx); err != nil {
			return err
		}

		if esc, err = svc.escalate(ctx, rpt, reporter.ID, tx); err != nil {
			return errors.Wrap(err, "escalating")
		}
		if esc != nil {
			rpt.Status = StatusEscalated
			rpt.CaseID = null.StringFrom(esc.Case.ID)
			rpt.UpdatedAt = now
			res.Case = &esc.Case
			res.CallSlip = &esc.CallSlip
		}
		res.Report = rpt
		return nil
	})
	if err != nil {
		if errors.Cause(err) == ErrDuplicateRef {
			// submitted concurrently by another request
			existing, ferr := svc.Repo.GetReportByClientRef(ctx, nr.ClientRef)
			if ferr == nil {
				return replay(existing, reporter)
			}
		}
		return SubmitResult{}, err
	}

	if esc != nil {
		svc.notifyEscalation(ctx, esc, stu, reporter)
	}
	return res, nil
}

// replay answers a resubmitted client_ref with the stored report, only to its own reporter.
func replay(existing Report, reporter user.User) (SubmitResult, error) {
	if existing.ReporterID != reporter.ID {
		return SubmitResult{}, core.NewValidationError(ErrRefTaken, core.FieldError{Field: "client_ref", Error: ErrRefTaken.Error()})
	}
	return SubmitResult{Report: existing, Duplicate: true}, nil
}

func (svc *service) Sync(ctx context.Context, reporter user.User, items []NewReport, validate *validator.Validate) []SyncItemResult {
	results := make([]SyncItemResult, 0, len(items))
	for _, item := range items {
		item := item
		out := SyncItemResult{ClientRef: item.ClientRef}
		if core.CleanString(item.ClientRef) == "" {
			out.Err = core.NewValidationError(ErrClientRefNeeded, core.FieldError{Field: "client_ref", Error: ErrClientRefNeeded.Error()})
			results = append(results, out)
			continue
		}
		if err := item.Validate(validate); err != nil {
			out.Err = err
			results = append(results, out)
			continue
		}
		out.ClientRef = item.ClientRef

		res, err := svc.Submit(ctx, reporter, item)
		if err != nil {
			out.Err = err
		} else {
			out.Result = &res
		}
		results = append(results, out)
	}
	return results
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Report, error) {
	return svc.Repo.QueryReports(ctx, filter, core.CleanOrdering(ordering, OrderingFields))
}

func (svc *service) GetByID(ctx context.Context, id string) (Report, error) {
	return svc.Repo.GetReport(ctx, id)
}

func (svc *service) Review(ctx context.Context, id string, reviewer user.User, rv Review) (Report, error) {
	var rpt Report
	err := core.InTx(ctx, svc.DB, func(tx core.DBExecutor) error {
		var err error
		if rpt, err = svc.Repo.GetReport(ctx, id, tx); err != nil {
			return err
		}
		if IsFinal(rpt.Status) || (rpt.Status != rv.Status && !CanTransition(rpt.Status, rv.Status)) {
			return &core.TransitionError{Object: "report", From: rpt.Status, To: rv.Status}
		}
		rpt.Status = rv.Status
		rpt.ReviewedByID = null.StringFrom(reviewer.ID)
		rpt.ReviewNotes = core.CleanString(rv.Notes)
		rpt.UpdatedAt = core.NowFunc()
		rpt, err = svc.Repo.UpdateReport(ctx, rpt, tx)
		return err
	})
	return rpt, err
}

func (svc *service) Summary(ctx context.Context) (Summary, error) {
	return svc.Repo.Summarize(ctx)
}

func (svc *service) EscalateStudent(ctx context.Context, studentID, issuerID string) (*Escalation, error) {
	var (
		esc *Escalation
		stu student.Student
	)
	err := core.InTx(ctx, svc.DB, func(tx core.DBExecutor) error {
		var err error
		if stu, err = svc.Students.GetByID(ctx, studentID, tx); err != nil {
			return err
		}
		esc, err = svc.escalateRepeatedMinor(ctx, stu.ID, issuerID, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if esc != nil {
		issuer, err := svc.Users.GetByID(ctx, issuerID)
		if err != nil {
			issuer = user.User{ID: issuerID}
		}
		svc.notifyEscalation(ctx, esc, stu, issuer)
	}
	return esc, nil
}
