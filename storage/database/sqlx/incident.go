package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
	"github.com/trezcool/podesk/core/incident"
)

const (
	reportColumns = "id, student_id, reporter_id, offense_code, severity, incident_at, location, narrative, witnesses, " +
		"action_taken, status, case_id, client_ref, reviewed_by_id, review_notes, created_at, updated_at"

	topOffensesLimit = 5
)

type reportRow struct {
	ID           string      `db:"id"`
	StudentID    string      `db:"student_id"`
	ReporterID   string      `db:"reporter_id"`
	OffenseCode  string      `db:"offense_code"`
	Severity     string      `db:"severity"`
	IncidentAt   time.Time   `db:"incident_at"`
	Location     string      `db:"location"`
	Narrative    string      `db:"narrative"`
	Witnesses    string      `db:"witnesses"`
	ActionTaken  string      `db:"action_taken"`
	Status       string      `db:"status"`
	CaseID       null.String `db:"case_id"`
	ClientRef    null.String `db:"client_ref"`
	ReviewedByID null.String `db:"reviewed_by_id"`
	ReviewNotes  string      `db:"review_notes"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func toReportRow(r incident.Report) reportRow {
	return reportRow{
		ID:           r.ID,
		StudentID:    r.StudentID,
		ReporterID:   r.ReporterID,
		OffenseCode:  r.OffenseCode,
		Severity:     r.Severity,
		IncidentAt:   r.IncidentAt.UTC(),
		Location:     r.Location,
		Narrative:    r.Narrative,
		Witnesses:    r.Witnesses,
		ActionTaken:  r.ActionTaken,
		Status:       r.Status,
		CaseID:       r.CaseID,
		ClientRef:    r.ClientRef,
		ReviewedByID: r.ReviewedByID,
		ReviewNotes:  r.ReviewNotes,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func (r reportRow) toReport() incident.Report {
	return incident.Report{
		ID:           r.ID,
		StudentID:    r.StudentID,
		ReporterID:   r.ReporterID,
		OffenseCode:  r.OffenseCode,
		Severity:     r.Severity,
		IncidentAt:   r.IncidentAt.UTC(),
		Location:     r.Location,
		Narrative:    r.Narrative,
		Witnesses:    r.Witnesses,
		ActionTaken:  r.ActionTaken,
		Status:       r.Status,
		CaseID:       r.CaseID,
		ClientRef:    r.ClientRef,
		ReviewedByID: r.ReviewedByID,
		ReviewNotes:  r.ReviewNotes,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func toReports(rows []reportRow) []incident.Report {
	reports := make([]incident.Report, 0, len(rows))
	for _, r := range rows {
		reports = append(reports, r.toReport())
	}
	return reports
}

type reportRepository struct {
	repository
}

var _ incident.Repository = (*reportRepository)(nil)

func NewReportRepository(exec core.DBExecutor) *reportRepository {
	return &reportRepository{repository{exec: exec}}
}

func (repo reportRepository) CreateReport(ctx context.Context, r incident.Report, exec ...core.DBExecutor) (incident.Report, error) {
	r.ID = uuid.New().String()
	q := "INSERT INTO reports (" + reportColumns + ") VALUES " +
		"(:id, :student_id, :reporter_id, :offense_code, :severity, :incident_at, :location, :narrative, :witnesses, " +
		":action_taken, :status, :case_id, :client_ref, :reviewed_by_id, :review_notes, :created_at, :updated_at)"
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, toReportRow(r)); err != nil {
		if r.ClientRef.Valid && isDuplicate(err) {
			return incident.Report{}, incident.ErrDuplicateRef
		}
		return incident.Report{}, errors.Wrap(err, "inserting report")
	}
	return r, nil
}

func (repo reportRepository) QueryReports(ctx context.Context, filter *incident.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]incident.Report, error) {
	var where whereClause
	if filter != nil {
		if filter.StudentID != "" {
			where.add("student_id = ?", filter.StudentID)
		}
		if filter.ReporterID != "" {
			where.add("reporter_id = ?", filter.ReporterID)
		}
		if filter.CaseID != "" {
			where.add("case_id = ?", filter.CaseID)
		}
		if len(filter.Status) > 0 {
			where.in("status", filter.Status)
		}
		if filter.Severity != "" {
			where.add("severity = ?", filter.Severity)
		}
		if filter.OffenseCode != "" {
			where.add("offense_code = ?", filter.OffenseCode)
		}
		if !filter.From.IsZero() {
			where.add("incident_at >= ?", filter.From.UTC())
		}
		if !filter.To.IsZero() {
			where.add("incident_at <= ?", filter.To.UTC())
		}
		if filter.Search != "" {
			where.like(filter.Search, "narrative", "location")
		}
	}

	q, args, err := where.build("SELECT "+reportColumns+" FROM reports", ordering, "incident_at DESC")
	if err != nil {
		return nil, errors.Wrap(err, "building reports query")
	}
	var rows []reportRow
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying reports")
	}
	return toReports(rows), nil
}

func (repo reportRepository) GetReport(ctx context.Context, id string, exec ...core.DBExecutor) (incident.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return incident.Report{}, incident.ErrNotFound
	}
	var row reportRow
	if err := repo.getExec(exec).GetContext(ctx, &row, "SELECT "+reportColumns+" FROM reports WHERE id = ?", id); err != nil {
		return incident.Report{}, trapNoRowsErr(err, incident.ErrNotFound, "finding report by ID")
	}
	return row.toReport(), nil
}

func (repo reportRepository) GetReportByClientRef(ctx context.Context, ref string, exec ...core.DBExecutor) (incident.Report, error) {
	var row reportRow
	if err := repo.getExec(exec).GetContext(ctx, &row, "SELECT "+reportColumns+" FROM reports WHERE client_ref = ?", ref); err != nil {
		return incident.Report{}, trapNoRowsErr(err, incident.ErrNotFound, "finding report by client_ref")
	}
	return row.toReport(), nil
}

func (repo reportRepository) UpdateReport(ctx context.Context, r incident.Report, exec ...core.DBExecutor) (incident.Report, error) {
	q := "UPDATE reports SET status = :status, case_id = :case_id, reviewed_by_id = :reviewed_by_id, " +
		"review_notes = :review_notes, updated_at = :updated_at WHERE id = :id"
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, toReportRow(r))
	if err != nil {
		return incident.Report{}, errors.Wrap(err, "updating report")
	}
	if err = checkAffected(res, incident.ErrNotFound); err != nil {
		return incident.Report{}, err
	}
	return r, nil
}

func (repo reportRepository) QueryUnescalatedMinor(ctx context.Context, filter incident.MinorCountFilter, exec ...core.DBExecutor) ([]incident.Report, error) {
	where := whereClause{}
	where.add("student_id = ?", filter.StudentID)
	where.add("severity = ?", incident.SeverityMinor)
	where.in("status", []string{incident.StatusPending, incident.StatusReviewed})
	where.add("case_id IS NULL")
	if !filter.Since.IsZero() {
		where.add("incident_at >= ?", filter.Since.UTC())
	}

	q, args, err := where.build("SELECT "+reportColumns+" FROM reports", nil, "incident_at ASC")
	if err != nil {
		return nil, errors.Wrap(err, "building minor reports query")
	}
	var rows []reportRow
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying minor reports")
	}
	return toReports(rows), nil
}

func (repo reportRepository) LinkToCase(ctx context.Context, ids []string, caseID string, at time.Time, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(
		"UPDATE reports SET status = ?, case_id = ?, updated_at = ? WHERE id IN (?)",
		incident.StatusEscalated, caseID, at.UTC(), ids)
	if err != nil {
		return errors.Wrap(err, "building link query")
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, q, args...); err != nil {
		return errors.Wrap(err, "linking reports to case")
	}
	return nil
}

type countRow struct {
	Key   string `db:"k"`
	Count int    `db:"cnt"`
}

func (repo reportRepository) countBy(ctx context.Context, exe core.DBExecutor, col string) (map[string]int, error) {
	var rows []countRow
	if err := exe.SelectContext(ctx, &rows, "SELECT "+col+" AS k, COUNT(*) AS cnt FROM reports GROUP BY "+col); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Key] = r.Count
	}
	return counts, nil
}

func (repo reportRepository) Summarize(ctx context.Context, exec ...core.DBExecutor) (incident.Summary, error) {
	exe := repo.getExec(exec)
	var (
		sum incident.Summary
		err error
	)

	if sum.ByStatus, err = repo.countBy(ctx, exe, "status"); err != nil {
		return incident.Summary{}, errors.Wrap(err, "counting reports by status")
	}
	if sum.BySeverity, err = repo.countBy(ctx, exe, "severity"); err != nil {
		return incident.Summary{}, errors.Wrap(err, "counting reports by severity")
	}

	sum.TopOffenses = make([]incident.OffenseCount, 0, topOffensesLimit)
	q := "SELECT offense_code, COUNT(*) AS cnt FROM reports GROUP BY offense_code ORDER BY cnt DESC, offense_code ASC LIMIT ?"
	if err = exe.SelectContext(ctx, &sum.TopOffenses, q, topOffensesLimit); err != nil {
		return incident.Summary{}, errors.Wrap(err, "counting top offenses")
	}

	q, args, err := sqlx.In("SELECT COUNT(*) FROM cases WHERE status NOT IN (?)", []string{casefile.StatusResolved, casefile.StatusClosed})
	if err != nil {
		return incident.Summary{}, errors.Wrap(err, "building open cases query")
	}
	if err = exe.GetContext(ctx, &sum.OpenCases, q, args...); err != nil {
		return incident.Summary{}, errors.Wrap(err, "counting open cases")
	}
	return sum, nil
}
