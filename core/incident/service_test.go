package incident_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
	"github.com/trezcool/podesk/core/incident"
	"github.com/trezcool/podesk/core/student"
	"github.com/trezcool/podesk/core/user"
	emailsvc "github.com/trezcool/podesk/services/email"
	"github.com/trezcool/podesk/testutil"
)

var now = time.Date(2024, time.June, 3, 2, 0, 0, 0, time.UTC)

type fixture struct {
	*testutil.App
	pod     user.User
	teacher user.User
	adviser user.User
	stu     student.Student
}

func setup(t *testing.T, conf ...*core.Config) fixture {
	app := testutil.NewApp(t, conf...)
	testutil.FreezeTime(t, now)

	f := fixture{App: app}
	f.pod = testutil.CreateUser(t, app.UsrRepo, "Pod Staff", "pod", "pod@test.ph", "", []string{user.RolePOD}, true)
	f.teacher = testutil.CreateUser(t, app.UsrRepo, "Teacher", "teacher", "teacher@test.ph", "", []string{user.RoleTeacher}, true)
	f.adviser = testutil.CreateUser(t, app.UsrRepo, "Adviser", "adviser", "adviser@test.ph", "", []string{user.RoleTeacherAdviser}, true)
	f.stu = testutil.CreateStudent(t, app.StudentRepo, "100000000001", "Juan", "Dela Cruz", 8, "Rizal", f.adviser.ID, true)
	return f
}

func (f fixture) newReport(code string, at time.Time) incident.NewReport {
	return incident.NewReport{
		StudentID:   f.stu.ID,
		OffenseCode: code,
		IncidentAt:  at,
		Location:    "Room 204",
		Narrative:   "Observed during class.",
	}
}

func TestNewReport_Validate(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name    string
		edit    func(nr *incident.NewReport)
		wantErr bool
	}{
		{name: "valid", edit: func(nr *incident.NewReport) {}},
		{name: "lower-case code", edit: func(nr *incident.NewReport) { nr.OffenseCode = "min-01" }},
		{name: "unknown code", edit: func(nr *incident.NewReport) { nr.OffenseCode = "LOL-01" }, wantErr: true},
		{name: "no narrative", edit: func(nr *incident.NewReport) { nr.Narrative = "  " }, wantErr: true},
		{name: "no student", edit: func(nr *incident.NewReport) { nr.StudentID = "" }, wantErr: true},
		{name: "no time", edit: func(nr *incident.NewReport) { nr.IncidentAt = time.Time{} }, wantErr: true},
		{name: "small clock drift", edit: func(nr *incident.NewReport) { nr.IncidentAt = now.Add(2 * time.Minute) }},
		{name: "in the future", edit: func(nr *incident.NewReport) { nr.IncidentAt = now.Add(time.Hour) }, wantErr: true},
		{name: "bad client ref", edit: func(nr *incident.NewReport) { nr.ClientRef = "lol" }, wantErr: true},
		{name: "client ref", edit: func(nr *incident.NewReport) { nr.ClientRef = uuid.NewString() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nr := f.newReport("MIN-01", now.Add(-time.Hour))
			tt.edit(&nr)
			err := nr.Validate(f.Validate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_Submit_minor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var res incident.SubmitResult
	var err error
	for i := 0; i < f.Conf.Escalation.MinorThreshold-1; i++ {
		res, err = f.ReportSvc.Submit(ctx, f.teacher, f.newReport("MIN-01", now.AddDate(0, 0, -i)))
		require.NoError(t, err)
		assert.Equal(t, incident.StatusPending, res.Report.Status)
		assert.Equal(t, incident.SeverityMinor, res.Report.Severity)
		assert.Nil(t, res.Case)
		assert.False(t, res.Report.CaseID.Valid)
	}
	assert.Empty(t, emailsvc.LastSentMessages(10))

	// the threshold-th minor report escalates all of them
	res, err = f.ReportSvc.Submit(ctx, f.teacher, f.newReport("MIN-04", now))
	require.NoError(t, err)
	require.NotNil(t, res.Case)
	require.NotNil(t, res.CallSlip)
	assert.Equal(t, incident.StatusEscalated, res.Report.Status)
	assert.Equal(t, res.Case.ID, res.Report.CaseID.String)
	assert.Equal(t, casefile.OriginEscalated, res.Case.Origin)
	assert.Equal(t, casefile.StatusCallSlipIssued, res.Case.Status)
	assert.Equal(t, "2024-0001", res.Case.CaseNo)
	assert.Equal(t, f.teacher.ID, res.CallSlip.IssuedByID)
	assert.True(t, res.CallSlip.ScheduledAt.Equal(now.Add(f.Conf.Escalation.CallSlipLeadTime)))

	reports, err := f.ReportSvc.Query(ctx, &incident.QueryFilter{CaseID: res.Case.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, reports, f.Conf.Escalation.MinorThreshold)
	for _, r := range reports {
		assert.Equal(t, incident.StatusEscalated, r.Status)
	}

	// POD staff, the reporter and the adviser are told
	msgs := emailsvc.LastSentMessages(10)
	require.Len(t, msgs, 3)
	to := make([]string, 0, len(msgs))
	for _, m := range msgs {
		assert.Equal(t, "case_escalated", m.TemplateName)
		assert.Contains(t, m.Subject, res.Case.CaseNo)
		to = append(to, m.To[0].Address)
	}
	assert.ElementsMatch(t, []string{f.pod.Email, f.teacher.Email, f.adviser.Email}, to)

	// escalated reports no longer count
	res, err = f.ReportSvc.Submit(ctx, f.teacher, f.newReport("MIN-01", now))
	require.NoError(t, err)
	assert.Nil(t, res.Case)
}

func TestService_Submit_window(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	window := f.Conf.Escalation.WindowDays
	require.Greater(t, window, 0)

	old := now.AddDate(0, 0, -window-1)
	for i := 0; i < f.Conf.Escalation.MinorThreshold-1; i++ {
		testutil.CreateReport(t, f.ReportRepo, f.stu.ID, f.teacher.ID, "MIN-01", incident.SeverityMinor, incident.StatusPending, old)
	}
	res, err := f.ReportSvc.Submit(ctx, f.teacher, f.newReport("MIN-01", now))
	require.NoError(t, err)
	assert.Nil(t, res.Case, "reports older than the window are ignored")

	// dismissed reports do not count either
	dismissed := testutil.CreateReport(t, f.ReportRepo, f.stu.ID, f.teacher.ID, "MIN-02", incident.SeverityMinor, incident.StatusDismissed, now)
	res, err = f.ReportSvc.Submit(ctx, f.teacher, f.newReport("MIN-01", now))
	require.NoError(t, err)
	if f.Conf.Escalation.MinorThreshold > 2 {
		assert.Nil(t, res.Case)
	}
	got, err := f.ReportSvc.GetByID(ctx, dismissed.ID)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusDismissed, got.Status)
}

func TestService_Submit_major(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	minor := testutil.CreateReport(t, f.ReportRepo, f.stu.ID, f.teacher.ID, "MIN-01", incident.SeverityMinor, incident.StatusPending, now)

	res, err := f.ReportSvc.Submit(ctx, f.teacher, f.newReport("MAJ-01", now))
	require.NoError(t, err)
	require.NotNil(t, res.Case)
	assert.Equal(t, incident.SeverityMajor, res.Report.Severity)
	assert.Equal(t, incident.StatusEscalated, res.Report.Status)
	assert.Equal(t, casefile.OriginDirect, res.Case.Origin)
	assert.Equal(t, casefile.SeverityMajor, res.Case.Severity)
	assert.Equal(t, "Bullying", res.Case.Summary)

	// only the major report is linked
	got, err := f.ReportSvc.GetByID(ctx, minor.ID)
	require.NoError(t, err)
	assert.Equal(t, incident.StatusPending, got.Status)
	assert.False(t, got.CaseID.Valid)
}

func TestService_Submit_errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inactive := testutil.CreateStudent(t, f.StudentRepo, "100000000002", "Pedro", "Penduko", 8, "Rizal", "", false)

	nr := f.newReport("MIN-01", now)
	nr.StudentID = inactive.ID
	_, err := f.ReportSvc.Submit(ctx, f.teacher, nr)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "err = %v", err)
	assert.Equal(t, incident.ErrStudentInactive, verr.Err)

	nr.StudentID = uuid.NewString()
	_, err = f.ReportSvc.Submit(ctx, f.teacher, nr)
	require.True(t, errors.As(err, &verr), "err = %v", err)
	assert.Equal(t, "student_id", verr.Fields[0].Field)

	nr = f.newReport("LOL-01", now)
	_, err = f.ReportSvc.Submit(ctx, f.teacher, nr)
	require.True(t, errors.As(err, &verr), "err = %v", err)
	assert.Equal(t, "offense_code", verr.Fields[0].Field)

	// callers that skip NewReport.Validate still cannot file future incidents
	nr = f.newReport("MIN-01", now.Add(time.Hour))
	_, err = f.ReportSvc.Submit(ctx, f.teacher, nr)
	require.True(t, errors.As(err, &verr), "err = %v", err)
	assert.Equal(t, "incident_at", verr.Fields[0].Field)

	reports, err := f.ReportSvc.Query(ctx, &incident.QueryFilter{}, nil)
	require.NoError(t, err)
	assert.Empty(t, reports)

	_, err = f.ReportSvc.Submit(ctx, f.teacher, f.newReport("MIN-01", now.Add(time.Minute)))
	assert.NoError(t, err, "small clock drift is tolerated")
}

func TestService_Submit_duplicateRef(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	nr := f.newReport("MIN-01", now)
	nr.ClientRef = uuid.NewString()
	first, err := f.ReportSvc.Submit(ctx, f.teacher, nr)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	again, err := f.ReportSvc.Submit(ctx, f.teacher, nr)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Report.ID, again.Report.ID)

	// another reporter reusing the ref does not get the report back
	other := testutil.CreateUser(t, f.UsrRepo, "Other", "other", "other@test.ph", "", []string{user.RoleTeacher}, true)
	res, err := f.ReportSvc.Submit(ctx, other, nr)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "err = %v", err)
	assert.Equal(t, incident.ErrRefTaken, verr.Err)
	assert.Equal(t, "client_ref", verr.Fields[0].Field)
	assert.Empty(t, res.Report.ID)

	reports, err := f.ReportSvc.Query(ctx, &incident.QueryFilter{StudentID: f.stu.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestService_Sync(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ref1, ref2 := uuid.NewString(), uuid.NewString()
	items := []incident.NewReport{
		f.newReport("MIN-01", now), // no client ref
		f.newReport("LOL-01", now), // unknown offense
		f.newReport("MIN-02", now),
		f.newReport("MIN-03", now),
		f.newReport("MIN-02", now.Add(-time.Minute)), // replay of items[2]
	}
	items[1].ClientRef = uuid.NewString()
	items[2].ClientRef = ref1
	items[3].ClientRef = ref2
	items[4].ClientRef = ref1

	results := f.ReportSvc.Sync(ctx, f.teacher, items, f.Validate)
	require.Len(t, results, len(items))

	var verr *core.ValidationError
	require.True(t, errors.As(results[0].Err, &verr))
	assert.Equal(t, incident.ErrClientRefNeeded, verr.Err)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Result)

	require.NoError(t, results[2].Err)
	require.NoError(t, results[3].Err)
	assert.Equal(t, ref1, results[2].ClientRef)
	assert.False(t, results[2].Result.Duplicate)

	require.NoError(t, results[4].Err)
	assert.True(t, results[4].Result.Duplicate)
	assert.Equal(t, results[2].Result.Report.ID, results[4].Result.Report.ID)

	reports, err := f.ReportSvc.Query(ctx, &incident.QueryFilter{ReporterID: f.teacher.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestService_Review(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rpt := testutil.CreateReport(t, f.ReportRepo, f.stu.ID, f.teacher.ID, "MIN-01", incident.SeverityMinor, incident.StatusPending, now)
	escalated := testutil.CreateReport(t, f.ReportRepo, f.stu.ID, f.teacher.ID, "MIN-02", incident.SeverityMinor, incident.StatusEscalated, now)

	got, err := f.ReportSvc.Review(ctx, rpt.ID, f.pod, incident.Review{Status: incident.StatusReviewed, Notes: " Talked to student. "})
	require.NoError(t, err)
	assert.Equal(t, incident.StatusReviewed, got.Status)
	assert.Equal(t, f.pod.ID, got.ReviewedByID.String)
	assert.Equal(t, "Talked to student.", got.ReviewNotes)

	// re-reviewing only updates notes
	got, err = f.ReportSvc.Review(ctx, rpt.ID, f.pod, incident.Review{Status: incident.StatusReviewed, Notes: "Again"})
	require.NoError(t, err)
	assert.Equal(t, "Again", got.ReviewNotes)

	got, err = f.ReportSvc.Review(ctx, rpt.ID, f.pod, incident.Review{Status: incident.StatusDismissed})
	require.NoError(t, err)
	assert.Equal(t, incident.StatusDismissed, got.Status)

	var terr *core.TransitionError
	_, err = f.ReportSvc.Review(ctx, rpt.ID, f.pod, incident.Review{Status: incident.StatusReviewed})
	assert.True(t, errors.As(err, &terr), "err = %v", err)

	// dismissed is final, even for the same status
	other := testutil.CreateUser(t, f.UsrRepo, "Pod Head", "podhead", "podhead@test.ph", "", []string{user.RolePODHead}, true)
	_, err = f.ReportSvc.Review(ctx, rpt.ID, other, incident.Review{Status: incident.StatusDismissed, Notes: "Overwritten"})
	assert.True(t, errors.As(err, &terr), "err = %v", err)
	got, err = f.ReportSvc.GetByID(ctx, rpt.ID)
	require.NoError(t, err)
	assert.Equal(t, f.pod.ID, got.ReviewedByID.String)
	assert.Equal(t, "Again", got.ReviewNotes)
	_, err = f.ReportSvc.Review(ctx, escalated.ID, f.pod, incident.Review{Status: incident.StatusDismissed})
	assert.True(t, errors.As(err, &terr), "err = %v", err)

	_, err = f.ReportSvc.Review(ctx, "lol", f.pod, incident.Review{Status: incident.StatusReviewed})
	assert.Equal(t, incident.ErrNotFound, errors.Cause(err))
}

func TestService_Query(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	other := testutil.CreateStudent(t, f.StudentRepo, "100000000002", "Maria", "Clara", 8, "Rizal", "", true)

	r1 := testutil.CreateReport(t, f.ReportRepo, f.stu.ID, f.teacher.ID, "MIN-01", incident.SeverityMinor, incident.StatusPending, now.Add(-3*time.Hour))
	r2 := testutil.CreateReport(t, f.ReportRepo, other.ID, f.adviser.ID, "MAJ-01", incident.SeverityMajor, incident.StatusReviewed, now.Add(-2*time.Hour))
	r3 := testutil.CreateReport(t, f.ReportRepo, f.stu.ID, f.adviser.ID, "MIN-02", incident.SeverityMinor, incident.StatusDismissed, now.Add(-time.Hour))

	tests := []struct {
		name     string
		filter   incident.QueryFilter
		ordering []core.DBOrdering
		want     []incident.Report
	}{
		{name: "all (latest first)", want: []incident.Report{r3, r2, r1}},
		{name: "student", filter: incident.QueryFilter{StudentID: f.stu.ID}, want: []incident.Report{r3, r1}},
		{name: "reporter", filter: incident.QueryFilter{ReporterID: f.adviser.ID}, want: []incident.Report{r3, r2}},
		{name: "statuses", filter: incident.QueryFilter{Status: []string{incident.StatusPending, incident.StatusReviewed}}, want: []incident.Report{r2, r1}},
		{name: "severity", filter: incident.QueryFilter{Severity: incident.SeverityMajor}, want: []incident.Report{r2}},
		{name: "offense", filter: incident.QueryFilter{OffenseCode: "MIN-02"}, want: []incident.Report{r3}},
		{name: "from", filter: incident.QueryFilter{From: now.Add(-90 * time.Minute)}, want: []incident.Report{r3}},
		{name: "to", filter: incident.QueryFilter{To: now.Add(-150 * time.Minute)}, want: []incident.Report{r1}},
		{name: "search", filter: incident.QueryFilter{Search: "during class"}, want: []incident.Report{r3, r2, r1}},
		{name: "search (none)", filter: incident.QueryFilter{Search: "lol"}, want: []incident.Report{}},
		{name: "order by incident_at", ordering: []core.DBOrdering{{Field: "incident_at", Ascending: true}}, want: []incident.Report{r1, r2, r3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := tt.filter
			got, err := f.ReportSvc.Query(ctx, &filter, tt.ordering)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			wantIDs := make([]string, 0, len(tt.want))
			for _, r := range tt.want {
				wantIDs = append(wantIDs, r.ID)
			}
			assert.Equal(t, wantIDs, ids)
		})
	}
}

func TestService_Summary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.CreateReport(t, f.ReportRepo, f.stu.ID, f.teacher.ID, "MIN-01", incident.SeverityMinor, incident.StatusPending, now)
	testutil.CreateReport(t, f.ReportRepo, f.stu.ID, f.teacher.ID, "MIN-01", incident.SeverityMinor, incident.StatusDismissed, now)
	_, err := f.ReportSvc.Submit(ctx, f.teacher, f.newReport("MAJ-02", now))
	require.NoError(t, err)

	sum, err := f.ReportSvc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		incident.StatusPending:   1,
		incident.StatusDismissed: 1,
		incident.StatusEscalated: 1,
	}, sum.ByStatus)
	assert.Equal(t, map[string]int{incident.SeverityMinor: 2, incident.SeverityMajor: 1}, sum.BySeverity)
	require.Len(t, sum.TopOffenses, 2)
	assert.Equal(t, incident.OffenseCount{OffenseCode: "MIN-01", Count: 2}, sum.TopOffenses[0])
	assert.Equal(t, 1, sum.OpenCases)
}

func TestService_EscalateStudent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	esc, err := f.ReportSvc.EscalateStudent(ctx, f.stu.ID, f.pod.ID)
	require.NoError(t, err)
	assert.Nil(t, esc)

	for i := 0; i < f.Conf.Escalation.MinorThreshold; i++ {
		testutil.CreateReport(t, f.ReportRepo, f.stu.ID, f.teacher.ID, "MIN-01", incident.SeverityMinor, incident.StatusReviewed, now.AddDate(0, 0, -i))
	}
	esc, err = f.ReportSvc.EscalateStudent(ctx, f.stu.ID, f.pod.ID)
	require.NoError(t, err)
	require.NotNil(t, esc)
	assert.Len(t, esc.Reports, f.Conf.Escalation.MinorThreshold)
	assert.Equal(t, f.pod.ID, esc.CallSlip.IssuedByID)
	assert.NotEmpty(t, emailsvc.LastSentMessages(1))

	_, err = f.ReportSvc.EscalateStudent(ctx, uuid.NewString(), f.pod.ID)
	assert.Equal(t, student.ErrNotFound, errors.Cause(err))
}

func TestService_thresholdDisabled(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Escalation.MinorThreshold = 0
	f := setup(t, conf)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := f.ReportSvc.Submit(ctx, f.teacher, f.newReport("MIN-01", now))
		require.NoError(t, err)
		assert.Nil(t, res.Case)
	}
}
