package incident

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
	"github.com/trezcool/podesk/core/student"
	"github.com/trezcool/podesk/core/user"
)

// Escalation is the case opened for a student, with its first call slip and the reports it covers.
type Escalation struct {
	Case     casefile.Case     `json:"case"`
	CallSlip casefile.CallSlip `json:"call_slip"`
	Reports  []Report          `json:"reports"`
}

// escalate opens a case when rpt is a major offense, or when it brings the student's
// un-escalated minor offenses to the configured threshold. It returns nil when nothing escalated.
func (svc *service) escalate(ctx context.Context, rpt Report, issuerID string, tx core.DBExecutor) (*Escalation, error) {
	if rpt.Severity == SeverityMajor {
		title := rpt.OffenseCode
		if o, ok := svc.Deps.Catalog.Get(rpt.OffenseCode); ok {
			title = o.Title
		}
		return svc.openCase(ctx, rpt.StudentID, casefile.OriginDirect, title, []Report{rpt}, issuerID, tx)
	}
	return svc.escalateRepeatedMinor(ctx, rpt.StudentID, issuerID, tx)
}

func (svc *service) escalateRepeatedMinor(ctx context.Context, studentID, issuerID string, tx core.DBExecutor) (*Escalation, error) {
	threshold := svc.Conf.Escalation.MinorThreshold
	if threshold <= 0 {
		return nil, nil
	}

	filter := MinorCountFilter{StudentID: studentID}
	if days := svc.Conf.Escalation.WindowDays; days > 0 {
		filter.Since = core.NowFunc().AddDate(0, 0, -days)
	}
	reports, err := svc.Repo.QueryUnescalatedMinor(ctx, filter, tx)
	if err != nil {
		return nil, errors.Wrap(err, "counting minor offenses")
	}
	if len(reports) < threshold {
		return nil, nil
	}

	summary := fmt.Sprintf("Repeated minor offenses (%d)", len(reports))
	return svc.openCase(ctx, studentID, casefile.OriginEscalated, summary, reports, issuerID, tx)
}

func (svc *service) openCase(
	ctx context.Context,
	studentID, origin, summary string,
	reports []Report,
	issuerID string,
	tx core.DBExecutor,
) (*Escalation, error) {
	c, err := svc.Cases.Open(ctx, studentID, casefile.SeverityMajor, origin, summary, null.String{}, tx)
	if err != nil {
		return nil, errors.Wrap(err, "opening case")
	}

	now := core.NowFunc()
	ids := make([]string, len(reports))
	for i := range reports {
		ids[i] = reports[i].ID
		reports[i].Status = StatusEscalated
		reports[i].CaseID = null.StringFrom(c.ID)
		reports[i].UpdatedAt = now
	}
	if err = svc.Repo.LinkToCase(ctx, ids, c.ID, now, tx); err != nil {
		return nil, errors.Wrap(err, "linking reports")
	}

	slip, c, err := svc.Cases.IssueCallSlip(ctx, c.ID, issuerID, casefile.NewCallSlip{
		ScheduledAt: now.Add(svc.Conf.Escalation.CallSlipLeadTime),
	}, tx)
	if err != nil {
		return nil, errors.Wrap(err, "issuing call slip")
	}
	return &Escalation{Case: c, CallSlip: slip, Reports: reports}, nil
}

// notifyEscalation mails the POD office, the reporter and the student's adviser.
func (svc *service) notifyEscalation(ctx context.Context, esc *Escalation, stu student.Student, reporter user.User) {
	if svc.MailSvc == nil {
		return
	}

	recipients := make([]user.User, 0, 4)
	pods, err := svc.Users.QueryByRole(ctx, user.RolePOD)
	if err != nil {
		svc.Logger.Error("notifying escalation: querying POD staff", err)
	}
	recipients = append(recipients, pods...)
	recipients = append(recipients, reporter)
	if stu.AdviserID.Valid {
		if adviser, err := svc.Users.GetByID(ctx, stu.AdviserID.String); err == nil {
			recipients = append(recipients, adviser)
		} else if !core.IsNotFound(err) {
			svc.Logger.Error("notifying escalation: finding adviser", err)
		}
	}

	seen := make(map[string]bool, len(recipients))
	to := make([]mail.Address, 0, len(recipients))
	for _, usr := range recipients {
		if usr.Email == "" || seen[usr.Email] {
			continue
		}
		seen[usr.Email] = true
		to = append(to, mail.Address{Name: usr.Name, Address: usr.Email})
	}
	if len(to) == 0 {
		return
	}

	messages := make([]*core.EmailMessage, 0, len(to))
	for _, addr := range to {
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{addr},
			Subject:      fmt.Sprintf("Case %s opened for %s", esc.Case.CaseNo, stu.FullName()),
			TemplateName: "case_escalated",
			TemplateData: map[string]interface{}{
				"Name":        addr.Name,
				"CaseNo":      esc.Case.CaseNo,
				"Origin":      esc.Case.Origin,
				"Summary":     esc.Case.Summary,
				"Student":     stu.FullName(),
				"Class":       stu.GradeAndSection(),
				"ReportCount": len(esc.Reports),
				"ScheduledAt": esc.CallSlip.ScheduledAt.In(svc.Conf.School.Location()).Format("Mon, Jan 2 2006 3:04 PM MST"),
				"Venue":       esc.CallSlip.Venue,
				"URL":         svc.Conf.FrontendBaseURL + "/cases/" + esc.Case.ID,
			},
		})
	}
	svc.MailSvc.SendMessages(messages...)
}
