package pdfsvc

import (
	"io"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // school time zones on hosts without zoneinfo

	"github.com/pkg/errors"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/forms"
	"github.com/trezcool/podesk/core/student"
	"github.com/trezcool/podesk/core/user"
)

type renderer struct {
	appName  string
	pageSize string
	loc      *time.Location
}

var _ forms.Renderer = (*renderer)(nil)

// NewRenderer returns a forms.Renderer printing on A4 in the school's time zone.
func NewRenderer(conf *core.Config) (forms.Renderer, error) {
	loc := time.UTC
	if tz := conf.School.Timezone; tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, errors.Wrapf(err, "loading time zone %q", tz)
		}
	}
	return &renderer{appName: conf.AppName, pageSize: "A4", loc: loc}, nil
}

func (r *renderer) date(t time.Time) string     { return formatDate(t.In(r.loc)) }
func (r *renderer) dateTime(t time.Time) string { return formatDateTime(t.In(r.loc)) }

func userName(u *user.User) string {
	if u == nil {
		return ""
	}
	return u.Name
}

func sexLabel(sex string) string {
	switch sex {
	case student.SexMale:
		return "Male"
	case student.SexFemale:
		return "Female"
	}
	return sex
}

func humanize(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (r *renderer) studentProfile(d *document, stu student.Student, adviser *user.User) {
	birth := ""
	if stu.BirthDate.Valid {
		birth = formatDate(stu.BirthDate.Time)
	}
	d.fields(
		"Name", stu.FullName(),
		"LRN", stu.LRN,
		"Grade & Section", stu.GradeAndSection(),
		"Sex", sexLabel(stu.Sex),
		"Birth Date", birth,
		"Adviser", userName(adviser),
	)
}

func (r *renderer) reportRows(lines []forms.ReportLine) [][]string {
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []string{
			r.dateTime(l.IncidentAt),
			l.OffenseCode + " - " + l.OffenseTitle,
			humanize(l.Severity),
			l.Narrative,
			l.ReporterName,
			humanize(l.Status),
		})
	}
	return rows
}

var (
	reportHeaders = []string{"Date", "Offense", "Severity", "Narrative", "Reported by", "Status"}
	reportWidths  = []float64{.15, .2, .09, .32, .14, .1}
)

func (r *renderer) CallSlip(w io.Writer, data forms.CallSlipData) error {
	d := newDocument("Call Slip", r.appName, data.GeneratedAt.In(r.loc), r.pageSize)
	d.header(data.School, "CALL SLIP")

	d.fields(
		"Date Issued", r.date(data.Slip.CreatedAt),
		"Case No.", data.Case.CaseNo,
	)
	d.pdf.Ln(3)
	d.paragraph("To the Class Adviser / Subject Teacher:")
	d.paragraph("Please excuse the student named below from class and send them to the " +
		data.Slip.Venue + " on the date and time indicated.")
	d.pdf.Ln(2)

	d.section("Student")
	r.studentProfile(d, data.Student, data.Adviser)

	d.section("Schedule")
	d.fields(
		"Date", r.date(data.Slip.ScheduledAt),
		"Time", data.Slip.ScheduledAt.In(r.loc).Format("3:04 PM"),
		"Venue", data.Slip.Venue,
		"Status", humanize(data.Slip.Status),
	)
	d.box("Reason", data.Slip.Reason, 3)

	d.signatures(
		[2]string{data.Issuer.Name, "Issued by"},
		[2]string{userName(data.Adviser), "Adviser (received)"},
		[2]string{data.Student.FullName(), "Student (acknowledged)"},
	)
	return d.output(w)
}

func (r *renderer) CaseRecord(w io.Writer, data forms.CaseRecordData) error {
	c := data.Case
	d := newDocument("Case Record "+c.CaseNo, r.appName, data.GeneratedAt.In(r.loc), r.pageSize)
	d.header(data.School, "ANECDOTAL / CASE RECORD")

	d.section("Case")
	closed := ""
	if c.ClosedAt.Valid {
		closed = r.date(c.ClosedAt.Time)
	}
	d.fields(
		"Case No.", c.CaseNo,
		"Status", humanize(c.Status),
		"Severity", humanize(c.Severity),
		"Origin", humanize(c.Origin),
		"Opened", r.date(c.OpenedAt),
		"Closed", closed,
		"Handled by", userName(data.Handler),
		"Reports", strconv.Itoa(len(data.Reports)),
	)
	d.box("Summary", c.Summary, 2)

	d.section("Student")
	r.studentProfile(d, data.Student, data.Adviser)
	d.fields(
		"Guardian", data.Student.GuardianName,
		"Contact", data.Student.GuardianContact,
	)
	if data.Student.Address != "" {
		d.fields("Address", data.Student.Address)
	}

	d.section("Incident reports")
	d.table(reportHeaders, reportWidths, r.reportRows(data.Reports))

	d.section("Call slips")
	slipRows := make([][]string, 0, len(data.CallSlips))
	for _, cs := range data.CallSlips {
		slipRows = append(slipRows, []string{r.dateTime(cs.ScheduledAt), cs.Venue, cs.Reason, humanize(cs.Status)})
	}
	d.table([]string{"Schedule", "Venue", "Reason", "Status"}, []float64{.2, .2, .45, .15}, slipRows)

	d.section("Action taken")
	d.box("Resolution", c.Resolution, 3)
	d.box("Remarks", c.Remarks, 3)

	d.signatures(
		[2]string{userName(data.Handler), "Prefect of Discipline"},
		[2]string{data.Student.GuardianName, "Parent / Guardian"},
		[2]string{data.Student.FullName(), "Student"},
	)
	return d.output(w)
}

// Yakap renders the intervention and referral form filled with the student's offense history.
func (r *renderer) Yakap(w io.Writer, data forms.YakapData) error {
	c := data.Case
	d := newDocument("YAKAP Form "+c.CaseNo, r.appName, data.GeneratedAt.In(r.loc), r.pageSize)
	d.header(data.School, "YAKAP INTERVENTION AND REFERRAL FORM")

	d.fields(
		"Case No.", c.CaseNo,
		"Date", r.date(data.GeneratedAt),
	)

	d.section("I. Learner's profile")
	r.studentProfile(d, data.Student, data.Adviser)
	d.fields(
		"Guardian", data.Student.GuardianName,
		"Contact", data.Student.GuardianContact,
	)
	if data.Student.Address != "" {
		d.fields("Address", data.Student.Address)
	}

	d.section("II. Offense history")
	d.table(reportHeaders, reportWidths, r.reportRows(data.History))

	d.section("III. Case summary")
	d.box("Summary", c.Summary, 2)
	d.box("Actions taken so far", c.Resolution, 2)

	d.section("IV. Intervention plan")
	d.table(
		[]string{"Concern", "Intervention / Activity", "Person responsible", "Target date"},
		[]float64{.25, .35, .22, .18},
		[][]string{{"", "", "", ""}, {"", "", "", ""}, {"", "", "", ""}},
	)
	d.box("Referral (guidance office, health services, barangay, others)", "", 2)

	d.section("V. Commitments")
	d.box("Learner's commitment", "", 3)
	d.box("Parent / guardian's commitment", "", 3)

	d.signatures(
		[2]string{data.Student.FullName(), "Learner"},
		[2]string{data.Student.GuardianName, "Parent / Guardian"},
		[2]string{userName(data.Adviser), "Class Adviser"},
		[2]string{userName(data.Handler), "Prefect of Discipline"},
	)
	return d.output(w)
}
