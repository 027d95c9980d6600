package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/student"
)

const studentColumns = "id, lrn, first_name, middle_name, last_name, sex, birth_date, grade_level, section, " +
	"adviser_id, guardian_name, guardian_contact, address, is_active, created_at, updated_at"

type studentRow struct {
	ID              string      `db:"id"`
	LRN             string      `db:"lrn"`
	FirstName       string      `db:"first_name"`
	MiddleName      string      `db:"middle_name"`
	LastName        string      `db:"last_name"`
	Sex             string      `db:"sex"`
	BirthDate       null.Time   `db:"birth_date"`
	GradeLevel      int         `db:"grade_level"`
	Section         string      `db:"section"`
	AdviserID       null.String `db:"adviser_id"`
	GuardianName    string      `db:"guardian_name"`
	GuardianContact string      `db:"guardian_contact"`
	Address         string      `db:"address"`
	IsActive        bool        `db:"is_active"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func toStudentRow(s student.Student) studentRow {
	return studentRow{
		ID:              s.ID,
		LRN:             s.LRN,
		FirstName:       s.FirstName,
		MiddleName:      s.MiddleName,
		LastName:        s.LastName,
		Sex:             s.Sex,
		BirthDate:       s.BirthDate,
		GradeLevel:      s.GradeLevel,
		Section:         s.Section,
		AdviserID:       s.AdviserID,
		GuardianName:    s.GuardianName,
		GuardianContact: s.GuardianContact,
		Address:         s.Address,
		IsActive:        s.IsActive,
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
	}
}

func (r studentRow) toStudent() student.Student {
	return student.Student{
		ID:              r.ID,
		LRN:             r.LRN,
		FirstName:       r.FirstName,
		MiddleName:      r.MiddleName,
		LastName:        r.LastName,
		Sex:             r.Sex,
		BirthDate:       r.BirthDate,
		GradeLevel:      r.GradeLevel,
		Section:         r.Section,
		AdviserID:       r.AdviserID,
		GuardianName:    r.GuardianName,
		GuardianContact: r.GuardianContact,
		Address:         r.Address,
		IsActive:        r.IsActive,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type studentRepository struct {
	repository
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{repository{exec: exec}}
}

func (repo studentRepository) CheckLRNUniqueness(ctx context.Context, lrn string, excluded []student.Student, exec ...core.DBExecutor) error {
	q := "SELECT COUNT(*) FROM students WHERE lrn = ?"
	args := []interface{}{lrn}
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, s := range excluded {
			ids = append(ids, s.ID)
		}
		q += " AND id NOT IN (?)"
		args = append(args, ids)
	}
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return errors.Wrap(err, "building LRN query")
	}

	var n int
	if err = repo.getExec(exec).GetContext(ctx, &n, q, args...); err != nil {
		return errors.Wrap(err, "checking LRN uniqueness")
	}
	if n > 0 {
		return student.ErrLRNExists
	}
	return nil
}

func (repo studentRepository) CreateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	s.ID = uuid.New().String()
	q := "INSERT INTO students (" + studentColumns + ") VALUES " +
		"(:id, :lrn, :first_name, :middle_name, :last_name, :sex, :birth_date, :grade_level, :section, " +
		":adviser_id, :guardian_name, :guardian_contact, :address, :is_active, :created_at, :updated_at)"
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, toStudentRow(s)); err != nil {
		if isDuplicate(err) {
			return student.Student{}, student.ErrLRNExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]student.Student, error) {
	var where whereClause
	if filter != nil {
		if filter.Search != "" {
			where.like(filter.Search, "lrn", "first_name", "middle_name", "last_name")
		}
		if filter.GradeLevel > 0 {
			where.add("grade_level = ?", filter.GradeLevel)
		}
		if filter.Section != "" {
			where.add("section = ?", filter.Section)
		}
		if filter.AdviserID != "" {
			where.add("adviser_id = ?", filter.AdviserID)
		}
		if filter.IsActive != nil {
			where.add("is_active = ?", *filter.IsActive)
		}
	}

	q, args, err := where.build("SELECT "+studentColumns+" FROM students", ordering, "last_name ASC, first_name ASC")
	if err != nil {
		return nil, errors.Wrap(err, "building students query")
	}
	var rows []studentRow
	if err = repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}

	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toStudent())
	}
	return students, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (student.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return student.Student{}, student.ErrNotFound
	}
	var row studentRow
	q := "SELECT " + studentColumns + " FROM students WHERE id = ?"
	if err := repo.getExec(exec).GetContext(ctx, &row, q, id); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student by ID")
	}
	return row.toStudent(), nil
}

func (repo studentRepository) GetStudentByLRN(ctx context.Context, lrn string, exec ...core.DBExecutor) (student.Student, error) {
	var row studentRow
	q := "SELECT " + studentColumns + " FROM students WHERE lrn = ?"
	if err := repo.getExec(exec).GetContext(ctx, &row, q, lrn); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student by LRN")
	}
	return row.toStudent(), nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	q := "UPDATE students SET lrn = :lrn, first_name = :first_name, middle_name = :middle_name, last_name = :last_name, " +
		"sex = :sex, birth_date = :birth_date, grade_level = :grade_level, section = :section, adviser_id = :adviser_id, " +
		"guardian_name = :guardian_name, guardian_contact = :guardian_contact, address = :address, " +
		"is_active = :is_active, updated_at = :updated_at WHERE id = :id"
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, toStudentRow(s))
	if err != nil {
		if isDuplicate(err) {
			return student.Student{}, student.ErrLRNExists
		}
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if err = checkAffected(res, student.ErrNotFound); err != nil {
		return student.Student{}, err
	}
	return s, nil
}

func (repo studentRepository) HasReports(ctx context.Context, id string, exec ...core.DBExecutor) (bool, error) {
	var n int
	q := "SELECT (SELECT COUNT(*) FROM reports WHERE student_id = ?) + (SELECT COUNT(*) FROM cases WHERE student_id = ?)"
	if err := repo.getExec(exec).GetContext(ctx, &n, q, id, id); err != nil {
		return false, errors.Wrap(err, "counting student records")
	}
	return n > 0, nil
}

func (repo studentRepository) DeleteStudent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		if isReferenced(err) {
			return student.ErrHasReports
		}
		return errors.Wrap(err, "deleting student")
	}
	return checkAffected(res, student.ErrNotFound)
}
