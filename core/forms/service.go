package forms

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
	"github.com/trezcool/podesk/core/incident"
	"github.com/trezcool/podesk/core/student"
	"github.com/trezcool/podesk/core/user"
)

type (
	// ReportLine is a report as printed on forms.
	ReportLine struct {
		incident.Report
		OffenseTitle string `json:"offense_title"`
		ReporterName string `json:"reporter_name"`
	}

	// CaseDetail is a case with everything filed under it.
	CaseDetail struct {
		Case      casefile.Case       `json:"case"`
		Student   student.Student     `json:"student"`
		Handler   *user.User          `json:"handler,omitempty"`
		Adviser   *user.User          `json:"adviser,omitempty"`
		Reports   []ReportLine        `json:"reports"`
		CallSlips []casefile.CallSlip `json:"call_slips"`
	}

	CallSlipData struct {
		School      core.SchoolConfig
		Slip        casefile.CallSlip
		Case        casefile.Case
		Student     student.Student
		Issuer      user.User
		Adviser     *user.User
		GeneratedAt time.Time
	}

	CaseRecordData struct {
		School core.SchoolConfig
		CaseDetail
		GeneratedAt time.Time
	}

	// YakapData feeds the intervention and referral form; History lists every report filed against the student.
	YakapData struct {
		School core.SchoolConfig
		CaseDetail
		History     []ReportLine
		GeneratedAt time.Time
	}

	// Renderer writes printable forms.
	Renderer interface {
		CallSlip(w io.Writer, data CallSlipData) error
		CaseRecord(w io.Writer, data CaseRecordData) error
		Yakap(w io.Writer, data YakapData) error
	}

	Service interface {
		CaseDetail(ctx context.Context, caseID string) (CaseDetail, error)
		// The render methods return the suggested file name.
		RenderCallSlip(ctx context.Context, slipID string, w io.Writer) (string, error)
		RenderCaseRecord(ctx context.Context, caseID string, w io.Writer) (string, error)
		RenderYakap(ctx context.Context, caseID string, w io.Writer) (string, error)
	}

	Deps struct {
		Renderer Renderer
		Cases    casefile.Service
		Reports  incident.Service
		Students student.Service
		Users    user.Service
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

func (svc *service) findUser(ctx context.Context, id string) (*user.User, error) {
	if id == "" {
		return nil, nil
	}
	usr, err := svc.Users.GetByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &usr, nil
}

func (svc *service) reportLines(ctx context.Context, reports []incident.Report) ([]ReportLine, error) {
	names := make(map[string]string)
	lines := make([]ReportLine, 0, len(reports))
	for _, r := range reports {
		line := ReportLine{Report: r, OffenseTitle: r.OffenseCode}
		if o, ok := svc.Reports.Catalog().Get(r.OffenseCode); ok {
			line.OffenseTitle = o.Title
		}
		name, ok := names[r.ReporterID]
		if !ok {
			usr, err := svc.findUser(ctx, r.ReporterID)
			if err != nil {
				return nil, errors.Wrap(err, "finding reporter")
			}
			if usr != nil {
				name = usr.Name
			}
			names[r.ReporterID] = name
		}
		line.ReporterName = name
		lines = append(lines, line)
	}
	return lines, nil
}

func (svc *service) CaseDetail(ctx context.Context, caseID string) (CaseDetail, error) {
	c, err := svc.Cases.GetByID(ctx, caseID)
	if err != nil {
		return CaseDetail{}, err
	}
	stu, err := svc.Students.GetByID(ctx, c.StudentID)
	if err != nil {
		return CaseDetail{}, errors.Wrap(err, "finding student")
	}

	d := CaseDetail{Case: c, Student: stu}
	if d.Handler, err = svc.findUser(ctx, c.HandlerID.String); err != nil {
		return CaseDetail{}, errors.Wrap(err, "finding handler")
	}
	if d.Adviser, err = svc.findUser(ctx, stu.AdviserID.String); err != nil {
		return CaseDetail{}, errors.Wrap(err, "finding adviser")
	}

	reports, err := svc.Reports.Query(ctx, &incident.QueryFilter{CaseID: c.ID}, []core.DBOrdering{{Field: "incident_at", Ascending: true}})
	if err != nil {
		return CaseDetail{}, errors.Wrap(err, "querying reports")
	}
	if d.Reports, err = svc.reportLines(ctx, reports); err != nil {
		return CaseDetail{}, err
	}

	d.CallSlips, err = svc.Cases.QueryCallSlips(ctx, &casefile.SlipFilter{CaseID: c.ID}, []core.DBOrdering{{Field: "scheduled_at", Ascending: true}})
	if err != nil {
		return CaseDetail{}, errors.Wrap(err, "querying call slips")
	}
	return d, nil
}

func (svc *service) RenderCallSlip(ctx context.Context, slipID string, w io.Writer) (string, error) {
	slip, err := svc.Cases.GetCallSlip(ctx, slipID)
	if err != nil {
		return "", err
	}
	c, err := svc.Cases.GetByID(ctx, slip.CaseID)
	if err != nil {
		return "", errors.Wrap(err, "finding case")
	}
	stu, err := svc.Students.GetByID(ctx, slip.StudentID)
	if err != nil {
		return "", errors.Wrap(err, "finding student")
	}

	data := CallSlipData{School: svc.Conf.School, Slip: slip, Case: c, Student: stu, GeneratedAt: core.NowFunc()}
	issuer, err := svc.findUser(ctx, slip.IssuedByID)
	if err != nil {
		return "", errors.Wrap(err, "finding issuer")
	}
	if issuer != nil {
		data.Issuer = *issuer
	}
	if data.Adviser, err = svc.findUser(ctx, stu.AdviserID.String); err != nil {
		return "", errors.Wrap(err, "finding adviser")
	}

	if err = svc.Renderer.CallSlip(w, data); err != nil {
		return "", errors.Wrap(err, "rendering call slip")
	}
	return fmt.Sprintf("call-slip-%s-%s.pdf", c.CaseNo, slip.ScheduledAt.Format("20060102")), nil
}

func (svc *service) RenderCaseRecord(ctx context.Context, caseID string, w io.Writer) (string, error) {
	d, err := svc.CaseDetail(ctx, caseID)
	if err != nil {
		return "", err
	}
	if err = svc.Renderer.CaseRecord(w, CaseRecordData{School: svc.Conf.School, CaseDetail: d, GeneratedAt: core.NowFunc()}); err != nil {
		return "", errors.Wrap(err, "rendering case record")
	}
	return fmt.Sprintf("case-record-%s.pdf", d.Case.CaseNo), nil
}

func (svc *service) RenderYakap(ctx context.Context, caseID string, w io.Writer) (string, error) {
	d, err := svc.CaseDetail(ctx, caseID)
	if err != nil {
		return "", err
	}
	all, err := svc.Reports.Query(ctx, &incident.QueryFilter{StudentID: d.Student.ID}, []core.DBOrdering{{Field: "incident_at", Ascending: true}})
	if err != nil {
		return "", errors.Wrap(err, "querying offense history")
	}
	history, err := svc.reportLines(ctx, all)
	if err != nil {
		return "", err
	}

	data := YakapData{School: svc.Conf.School, CaseDetail: d, History: history, GeneratedAt: core.NowFunc()}
	if err = svc.Renderer.Yakap(w, data); err != nil {
		return "", errors.Wrap(err, "rendering YAKAP form")
	}
	return fmt.Sprintf("yakap-%s.pdf", d.Case.CaseNo), nil
}
