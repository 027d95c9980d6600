package casefile

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("case")
	ErrSlipNotFound = core.NewNotFoundError("call slip")
	ErrCaseFinal    = errors.New("case is already resolved or closed")
)

type (
	Repository interface {
		// NextCaseNo returns the next "YYYY-NNNN" case number for year.
		NextCaseNo(ctx context.Context, year int, exec ...core.DBExecutor) (string, error)
		CreateCase(ctx context.Context, c Case, exec ...core.DBExecutor) (Case, error)
		QueryCases(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Case, error)
		GetCase(ctx context.Context, id string, exec ...core.DBExecutor) (Case, error)
		UpdateCase(ctx context.Context, c Case, exec ...core.DBExecutor) (Case, error)

		CreateCallSlip(ctx context.Context, cs CallSlip, exec ...core.DBExecutor) (CallSlip, error)
		QueryCallSlips(ctx context.Context, filter *SlipFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]CallSlip, error)
		GetCallSlip(ctx context.Context, id string, exec ...core.DBExecutor) (CallSlip, error)
		UpdateCallSlip(ctx context.Context, cs CallSlip, exec ...core.DBExecutor) (CallSlip, error)
	}

	Service interface {
		// Open opens a case for studentID. It joins the caller's transaction when exec is given.
		Open(ctx context.Context, studentID, severity, origin, summary string, handlerID null.String, exec ...core.DBExecutor) (Case, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Case, error)
		GetByID(ctx context.Context, id string) (Case, error)
		Update(ctx context.Context, id string, uc UpdateCase) (Case, error)
		Transition(ctx context.Context, id, status string) (Case, error)
		// IssueCallSlip summons the student of the case; an open case moves to call_slip_issued.
		IssueCallSlip(ctx context.Context, caseID, issuerID string, ncs NewCallSlip, exec ...core.DBExecutor) (CallSlip, Case, error)
		QueryCallSlips(ctx context.Context, filter *SlipFilter, ordering []core.DBOrdering) ([]CallSlip, error)
		GetCallSlip(ctx context.Context, id string) (CallSlip, error)
		// SetCallSlipStatus records the outcome of a call slip; attending moves the case to conference.
		SetCallSlipStatus(ctx context.Context, id, status string) (CallSlip, error)
	}

	service struct {
		db   core.DB
		repo Repository
		conf *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, conf *core.Config) Service {
	return &service{db: db, repo: repo, conf: conf}
}

// inTx runs fn within the given executor, or within a new transaction.
func (svc *service) inTx(ctx context.Context, exec []core.DBExecutor, fn func(tx core.DBExecutor) error) error {
	if len(exec) > 0 && exec[0] != nil {
		return fn(exec[0])
	}
	return core.InTx(ctx, svc.db, fn)
}

func (svc *service) Open(
	ctx context.Context,
	studentID, severity, origin, summary string,
	handlerID null.String,
	exec ...core.DBExecutor,
) (Case, error) {
	var c Case
	err := svc.inTx(ctx, exec, func(tx core.DBExecutor) error {
		now := core.NowFunc()
		caseNo, err := svc.repo.NextCaseNo(ctx, now.Year(), tx)
		if err != nil {
			return errors.Wrap(err, "numbering case")
		}
		c, err = svc.repo.CreateCase(ctx, Case{
			CaseNo:    caseNo,
			StudentID: studentID,
			Severity:  severity,
			Origin:    origin,
			Status:    StatusOpen,
			HandlerID: handlerID,
			Summary:   summary,
			OpenedAt:  now,
			CreatedAt: now,
			UpdatedAt: now,
		}, tx)
		return err
	})
	return c, err
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Case, error) {
	return svc.repo.QueryCases(ctx, filter, core.CleanOrdering(ordering, OrderingFields))
}

func (svc *service) GetByID(ctx context.Context, id string) (Case, error) {
	return svc.repo.GetCase(ctx, id)
}

func (svc *service) Update(ctx context.Context, id string, uc UpdateCase) (Case, error) {
	var c Case
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if c, err = svc.repo.GetCase(ctx, id, tx); err != nil {
			return err
		}
		if uc.HandlerID.Valid {
			c.HandlerID = uc.HandlerID
		}
		if uc.Summary != nil {
			c.Summary = core.CleanString(*uc.Summary)
		}
		if uc.Resolution != nil {
			c.Resolution = core.CleanString(*uc.Resolution)
		}
		if uc.Remarks != nil {
			c.Remarks = core.CleanString(*uc.Remarks)
		}
		c.UpdatedAt = core.NowFunc()
		c, err = svc.repo.UpdateCase(ctx, c, tx)
		return err
	})
	return c, err
}

func (svc *service) transition(ctx context.Context, c Case, status string, tx core.DBExecutor) (Case, error) {
	if c.Status == status {
		return c, nil
	}
	if !CanTransition(c.Status, status) {
		return Case{}, &core.TransitionError{Object: "case", From: c.Status, To: status}
	}
	now := core.NowFunc()
	c.Status = status
	if IsFinal(status) && !c.ClosedAt.Valid {
		c.ClosedAt = null.TimeFrom(now)
	}
	c.UpdatedAt = now
	return svc.repo.UpdateCase(ctx, c, tx)
}

func (svc *service) Transition(ctx context.Context, id, status string) (Case, error) {
	var c Case
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if c, err = svc.repo.GetCase(ctx, id, tx); err != nil {
			return err
		}
		c, err = svc.transition(ctx, c, status, tx)
		return err
	})
	return c, err
}

func (svc *service) IssueCallSlip(ctx context.Context, caseID, issuerID string, ncs NewCallSlip, exec ...core.DBExecutor) (CallSlip, Case, error) {
	var (
		cs CallSlip
		c  Case
	)
	err := svc.inTx(ctx, exec, func(tx core.DBExecutor) error {
		var err error
		if c, err = svc.repo.GetCase(ctx, caseID, tx); err != nil {
			return err
		}
		if IsFinal(c.Status) {
			return core.NewValidationError(ErrCaseFinal)
		}

		venue := core.CleanString(ncs.Venue)
		if venue == "" {
			venue = svc.conf.School.PODOffice
		}
		reason := core.CleanString(ncs.Reason)
		if reason == "" {
			reason = fmt.Sprintf("Case %s: %s", c.CaseNo, c.Summary)
		}

		now := core.NowFunc()
		cs, err = svc.repo.CreateCallSlip(ctx, CallSlip{
			CaseID:      c.ID,
			StudentID:   c.StudentID,
			IssuedByID:  issuerID,
			ScheduledAt: ncs.ScheduledAt.UTC(),
			Venue:       venue,
			Reason:      reason,
			Status:      SlipIssued,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, tx)
		if err != nil {
			return err
		}

		if c.Status == StatusOpen {
			c, err = svc.transition(ctx, c, StatusCallSlipIssued, tx)
		}
		return err
	})
	return cs, c, err
}

func (svc *service) QueryCallSlips(ctx context.Context, filter *SlipFilter, ordering []core.DBOrdering) ([]CallSlip, error) {
	return svc.repo.QueryCallSlips(ctx, filter, core.CleanOrdering(ordering, SlipOrderingFields))
}

func (svc *service) GetCallSlip(ctx context.Context, id string) (CallSlip, error) {
	return svc.repo.GetCallSlip(ctx, id)
}

func (svc *service) SetCallSlipStatus(ctx context.Context, id, status string) (CallSlip, error) {
	var cs CallSlip
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if cs, err = svc.repo.GetCallSlip(ctx, id, tx); err != nil {
			return err
		}
		if cs.Status == status {
			return nil
		}
		if !allowed(slipTransitions, cs.Status, status) {
			return &core.TransitionError{Object: "call slip", From: cs.Status, To: status}
		}
		cs.Status = status
		cs.UpdatedAt = core.NowFunc()
		if cs, err = svc.repo.UpdateCallSlip(ctx, cs, tx); err != nil {
			return err
		}

		if status == SlipAttended {
			c, err := svc.repo.GetCase(ctx, cs.CaseID, tx)
			if err != nil {
				return err
			}
			if c.Status == StatusCallSlipIssued {
				_, err = svc.transition(ctx, c, StatusConference, tx)
			}
			return err
		}
		return nil
	})
	return cs, err
}
