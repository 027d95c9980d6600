package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
)

const (
	caseColumns = "id, case_no, student_id, severity, origin, status, handler_id, summary, resolution, remarks, " +
		"opened_at, closed_at, created_at, updated_at"
	slipColumns = "id, case_id, student_id, issued_by_id, scheduled_at, venue, reason, status, created_at, updated_at"
)

type caseRow struct {
	ID         string      `db:"id"`
	CaseNo     string      `db:"case_no"`
	StudentID  string      `db:"student_id"`
	Severity   string      `db:"severity"`
	Origin     string      `db:"origin"`
	Status     string      `db:"status"`
	HandlerID  null.String `db:"handler_id"`
	Summary    string      `db:"summary"`
	Resolution string      `db:"resolution"`
	Remarks    string      `db:"remarks"`
	OpenedAt   time.Time   `db:"opened_at"`
	ClosedAt   null.Time   `db:"closed_at"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func toCaseRow(c casefile.Case) caseRow {
	return caseRow{
		ID:         c.ID,
		CaseNo:     c.CaseNo,
		StudentID:  c.StudentID,
		Severity:   c.Severity,
		Origin:     c.Origin,
		Status:     c.Status,
		HandlerID:  c.HandlerID,
		Summary:    c.Summary,
		Resolution: c.Resolution,
		Remarks:    c.Remarks,
		OpenedAt:   c.OpenedAt.UTC(),
		ClosedAt:   null.NewTime(c.ClosedAt.Time.UTC(), c.ClosedAt.Valid),
		CreatedAt:  c.CreatedAt.UTC(),
		UpdatedAt:  c.UpdatedAt.UTC(),
	}
}

func (r caseRow) toCase() casefile.Case {
	return casefile.Case{
		ID:         r.ID,
		CaseNo:     r.CaseNo,
		StudentID:  r.StudentID,
		Severity:   r.Severity,
		Origin:     r.Origin,
		Status:     r.Status,
		HandlerID:  r.HandlerID,
		Summary:    r.Summary,
		Resolution: r.Resolution,
		Remarks:    r.Remarks,
		OpenedAt:   r.OpenedAt.UTC(),
		ClosedAt:   null.NewTime(r.ClosedAt.Time.UTC(), r.ClosedAt.Valid),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

type slipRow struct {
	ID          string    `db:"id"`
	CaseID      string    `db:"case_id"`
	StudentID   string    `db:"student_id"`
	IssuedByID  string    `db:"issued_by_id"`
	ScheduledAt time.Time `db:"scheduled_at"`
	Venue       string    `db:"venue"`
	Reason      string    `db:"reason"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func toSlipRow(cs casefile.CallSlip) slipRow {
	return slipRow{
		ID:          cs.ID,
		CaseID:      cs.CaseID,
		StudentID:   cs.StudentID,
		IssuedByID:  cs.IssuedByID,
		ScheduledAt: cs.ScheduledAt.UTC(),
		Venue:       cs.Venue,
		Reason:      cs.Reason,
		Status:      cs.Status,
		CreatedAt:   cs.CreatedAt.UTC(),
		UpdatedAt:   cs.UpdatedAt.UTC(),
	}
}

func (r slipRow) toCallSlip() casefile.CallSlip {
	return casefile.CallSlip{
		ID:          r.ID,
		CaseID:      r.CaseID,
		StudentID:   r.StudentID,
		IssuedByID:  r.IssuedByID,
		ScheduledAt: r.ScheduledAt.UTC(),
		Venue:       r.Venue,
		Reason:      r.Reason,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type caseRepository struct {
	repository
}

var _ casefile.Repository = (*caseRepository)(nil)

func NewCaseRepository(exec core.DBExecutor) *caseRepository {
	return &caseRepository{repository{exec: exec}}
}

// NextCaseNo must run inside the transaction creating the case; the counter row lock serializes numbering.
func (repo caseRepository) NextCaseNo(ctx context.Context, year int, exec ...core.DBExecutor) (string, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, "UPDATE case_counters SET last_no = last_no + 1 WHERE year = ?", year)
	if err != nil {
		return "", errors.Wrap(err, "incrementing case counter")
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", errors.Wrap(err, "incrementing case counter")
	} else if n == 0 {
		if _, err = exe.ExecContext(ctx, "INSERT INTO case_counters (year, last_no) VALUES (?, 1)", year); err != nil {
			return "", errors.Wrap(err, "creating case counter")
		}
	}

	var no int
	if err = exe.GetContext(ctx, &no, "SELECT last_no FROM case_counters WHERE year = ?", year); err != nil {
		return "", errors.Wrap(err, "reading case counter")
	}
	return fmt.Sprintf("%d-%04d", year, no), nil
}

func (repo caseRepository) CreateCase(ctx context.Context, c casefile.Case, exec ...core.DBExecutor) (casefile.Case, error) {
	c.ID = uuid.New().String()
	q := "INSERT INTO cases (" + caseColumns + ") VALUES " +
		"(:id, :case_no, :student_id, :severity, :origin, :status, :handler_id, :summary, :resolution, :remarks, " +
		":opened_at, :closed_at, :created_at, :updated_at)"
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, toCaseRow(c)); err != nil {
		return casefile.Case{}, errors.Wrap(err, "inserting case")
	}
	return c, nil
}

func (repo caseRepository) QueryCases(ctx context.Context, filter *casefile.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]casefile.Case, error) {
	var where whereClause
	if filter != nil {
		if filter.StudentID != "" {
			where.add("student_id = ?", filter.StudentID)
		}
		if filter.HandlerID != "" {
			where.add("handler_id = ?", filter.HandlerID)
		}
		if len(filter.Status) > 0 {
			where.in("status", filter.Status)
		}
		if filter.Severity != "" {
			where.add("severity = ?", filter.Severity)
		}
		if filter.Origin != "" {
			where.add("origin = ?", filter.Origin)
		}
		if filter.Search != "" {
			where.like(filter.Search, "case_no", "summary")
		}
		if !filter.OpenedFrom.IsZero() {
			where.add("opened_at >= ?", filter.OpenedFrom.UTC())
		}
		if !filter.OpenedTo.IsZero() {
			where.add("opened_at <= ?", filter.OpenedTo.UTC())
		}
	}

	q, args, err := where.build("SELECT "+caseColumns+" FROM cases", ordering, "opened_at DESC")
	if err != nil {
		return nil, errors.Wrap(err, "building cases query")
	}
	var rows []caseRow
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying cases")
	}

	cases := make([]casefile.Case, 0, len(rows))
	for _, r := range rows {
		cases = append(cases, r.toCase())
	}
	return cases, nil
}

func (repo caseRepository) GetCase(ctx context.Context, id string, exec ...core.DBExecutor) (casefile.Case, error) {
	if _, err := uuid.Parse(id); err != nil {
		return casefile.Case{}, casefile.ErrNotFound
	}
	var row caseRow
	if err := repo.getExec(exec).GetContext(ctx, &row, "SELECT "+caseColumns+" FROM cases WHERE id = ?", id); err != nil {
		return casefile.Case{}, trapNoRowsErr(err, casefile.ErrNotFound, "finding case by ID")
	}
	return row.toCase(), nil
}

func (repo caseRepository) UpdateCase(ctx context.Context, c casefile.Case, exec ...core.DBExecutor) (casefile.Case, error) {
	q := "UPDATE cases SET status = :status, handler_id = :handler_id, summary = :summary, resolution = :resolution, " +
		"remarks = :remarks, closed_at = :closed_at, updated_at = :updated_at WHERE id = :id"
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, toCaseRow(c))
	if err != nil {
		return casefile.Case{}, errors.Wrap(err, "updating case")
	}
	if err = checkAffected(res, casefile.ErrNotFound); err != nil {
		return casefile.Case{}, err
	}
	return c, nil
}

func (repo caseRepository) CreateCallSlip(ctx context.Context, cs casefile.CallSlip, exec ...core.DBExecutor) (casefile.CallSlip, error) {
	cs.ID = uuid.New().String()
	q := "INSERT INTO call_slips (" + slipColumns + ") VALUES " +
		"(:id, :case_id, :student_id, :issued_by_id, :scheduled_at, :venue, :reason, :status, :created_at, :updated_at)"
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, toSlipRow(cs)); err != nil {
		return casefile.CallSlip{}, errors.Wrap(err, "inserting call slip")
	}
	return cs, nil
}

func (repo caseRepository) QueryCallSlips(ctx context.Context, filter *casefile.SlipFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]casefile.CallSlip, error) {
	var where whereClause
	if filter != nil {
		if filter.CaseID != "" {
			where.add("case_id = ?", filter.CaseID)
		}
		if filter.StudentID != "" {
			where.add("student_id = ?", filter.StudentID)
		}
		if filter.Status != "" {
			where.add("status = ?", filter.Status)
		}
		if !filter.ScheduledFrom.IsZero() {
			where.add("scheduled_at >= ?", filter.ScheduledFrom.UTC())
		}
		if !filter.ScheduledTo.IsZero() {
			where.add("scheduled_at <= ?", filter.ScheduledTo.UTC())
		}
	}

	q, args, err := where.build("SELECT "+slipColumns+" FROM call_slips", ordering, "scheduled_at ASC")
	if err != nil {
		return nil, errors.Wrap(err, "building call slips query")
	}
	var rows []slipRow
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying call slips")
	}

	slips := make([]casefile.CallSlip, 0, len(rows))
	for _, r := range rows {
		slips = append(slips, r.toCallSlip())
	}
	return slips, nil
}

func (repo caseRepository) GetCallSlip(ctx context.Context, id string, exec ...core.DBExecutor) (casefile.CallSlip, error) {
	if _, err := uuid.Parse(id); err != nil {
		return casefile.CallSlip{}, casefile.ErrSlipNotFound
	}
	var row slipRow
	if err := repo.getExec(exec).GetContext(ctx, &row, "SELECT "+slipColumns+" FROM call_slips WHERE id = ?", id); err != nil {
		return casefile.CallSlip{}, trapNoRowsErr(err, casefile.ErrSlipNotFound, "finding call slip by ID")
	}
	return row.toCallSlip(), nil
}

func (repo caseRepository) UpdateCallSlip(ctx context.Context, cs casefile.CallSlip, exec ...core.DBExecutor) (casefile.CallSlip, error) {
	q := "UPDATE call_slips SET scheduled_at = :scheduled_at, venue = :venue, reason = :reason, status = :status, " +
		"updated_at = :updated_at WHERE id = :id"
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, toSlipRow(cs))
	if err != nil {
		return casefile.CallSlip{}, errors.Wrap(err, "updating call slip")
	}
	if err = checkAffected(res, casefile.ErrSlipNotFound); err != nil {
		return casefile.CallSlip{}, err
	}
	return cs, nil
}
