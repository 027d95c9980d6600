package student

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/podesk/core"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("student")
	ErrLRNExists    = errors.New("a student with this LRN already exists")
	ErrHasReports   = errors.New("student has incident reports and cannot be deleted; deactivate instead")
	ErrUnknownAdvsr = errors.New("adviser not found")
)

type (
	Repository interface {
		CheckLRNUniqueness(ctx context.Context, lrn string, excluded []Student, exec ...core.DBExecutor) error
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
		GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		GetStudentByLRN(ctx context.Context, lrn string, exec ...core.DBExecutor) (Student, error)
		UpdateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		HasReports(ctx context.Context, id string, exec ...core.DBExecutor) (bool, error)
		DeleteStudent(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// AdviserChecker tells whether a user ID belongs to an existing staff account.
	AdviserChecker interface {
		Exists(ctx context.Context, id string) (bool, error)
	}

	Service interface {
		CheckUniqueness(lrn string, excluded ...Student) error
		Create(ctx context.Context, ns NewStudent) (Student, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		GetByLRN(ctx context.Context, lrn string) (Student, error)
		Update(ctx context.Context, id string, us UpdateStudent) (Student, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		db       core.DB
		repo     Repository
		advisers AdviserChecker
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, advisers AdviserChecker) Service {
	return &service{db: db, repo: repo, advisers: advisers}
}

func (svc *service) CheckUniqueness(lrn string, excluded ...Student) error {
	if err := svc.repo.CheckLRNUniqueness(context.Background(), lrn, excluded); err != nil {
		if errors.Cause(err) == ErrLRNExists {
			return core.NewValidationError(ErrLRNExists, core.FieldError{Field: "lrn", Error: ErrLRNExists.Error()})
		}
		return errors.Wrap(err, "checking LRN uniqueness")
	}
	return nil
}

func (svc *service) checkAdviser(ctx context.Context, adviserID string) error {
	if adviserID == "" || svc.advisers == nil {
		return nil
	}
	ok, err := svc.advisers.Exists(ctx, adviserID)
	if err != nil {
		return errors.Wrap(err, "checking adviser")
	}
	if !ok {
		return core.NewValidationError(ErrUnknownAdvsr, core.FieldError{Field: "adviser_id", Error: ErrUnknownAdvsr.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	if err := svc.checkAdviser(ctx, ns.AdviserID.String); err != nil {
		return Student{}, err
	}

	now := core.NowFunc()
	s := Student{
		LRN:             ns.LRN,
		FirstName:       ns.FirstName,
		MiddleName:      ns.MiddleName,
		LastName:        ns.LastName,
		Sex:             ns.Sex,
		BirthDate:       ns.BirthDate,
		GradeLevel:      ns.GradeLevel,
		Section:         ns.Section,
		AdviserID:       ns.AdviserID,
		GuardianName:    ns.GuardianName,
		GuardianContact: ns.GuardianContact,
		Address:         ns.Address,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return svc.repo.CreateStudent(ctx, s)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, filter, core.CleanOrdering(ordering, OrderingFields))
}

func (svc *service) GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error) {
	return svc.repo.GetStudent(ctx, id, exec...)
}

func (svc *service) GetByLRN(ctx context.Context, lrn string) (Student, error) {
	return svc.repo.GetStudentByLRN(ctx, core.CleanString(lrn))
}

func (svc *service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	if us.AdviserID.Valid {
		if err := svc.checkAdviser(ctx, us.AdviserID.String); err != nil {
			return Student{}, err
		}
	}

	var s Student
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetStudent(ctx, id, tx)
		if err != nil {
			return err
		}
		s = us.apply(orig)
		s.UpdatedAt = core.NowFunc()
		s, err = svc.repo.UpdateStudent(ctx, s, tx)
		return err
	})
	return s, err
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if _, err := svc.repo.GetStudent(ctx, id, tx); err != nil {
			return err
		}
		has, err := svc.repo.HasReports(ctx, id, tx)
		if err != nil {
			return errors.Wrap(err, "checking reports")
		}
		if has {
			return core.NewValidationError(ErrHasReports)
		}
		return svc.repo.DeleteStudent(ctx, id, tx)
	})
}
