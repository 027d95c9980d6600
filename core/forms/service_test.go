package forms_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
	"github.com/trezcool/podesk/core/incident"
	"github.com/trezcool/podesk/core/user"
	"github.com/trezcool/podesk/testutil"
)

func TestService(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	now := time.Date(2024, time.June, 3, 2, 0, 0, 0, time.UTC)
	testutil.FreezeTime(t, now)

	teacher := testutil.CreateUser(t, app.UsrRepo, "Teacher", "teacher", "teacher@test.ph", "", []string{user.RoleTeacher}, true)
	adviser := testutil.CreateUser(t, app.UsrRepo, "Adviser", "adviser", "adviser@test.ph", "", []string{user.RoleTeacherAdviser}, true)
	stu := testutil.CreateStudent(t, app.StudentRepo, "100000000001", "Juan", "Dela Cruz", 8, "Rizal", adviser.ID, true)
	earlier := testutil.CreateReport(t, app.ReportRepo, stu.ID, teacher.ID, "MIN-01", incident.SeverityMinor, incident.StatusDismissed, now.AddDate(0, -1, 0))

	res, err := app.ReportSvc.Submit(ctx, teacher, incident.NewReport{
		StudentID:   stu.ID,
		OffenseCode: "MAJ-01",
		IncidentAt:  now.Add(-time.Hour),
		Narrative:   "Pushed a classmate repeatedly.",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Case)
	require.NotNil(t, res.CallSlip)

	t.Run("case detail", func(t *testing.T) {
		d, err := app.FormSvc.CaseDetail(ctx, res.Case.ID)
		require.NoError(t, err)
		assert.Equal(t, "2024-0001", d.Case.CaseNo)
		assert.Equal(t, stu.ID, d.Student.ID)
		assert.Nil(t, d.Handler)
		require.NotNil(t, d.Adviser)
		assert.Equal(t, adviser.ID, d.Adviser.ID)

		require.Len(t, d.Reports, 1)
		assert.Equal(t, res.Report.ID, d.Reports[0].ID)
		assert.Equal(t, "Bullying", d.Reports[0].OffenseTitle)
		assert.Equal(t, "Teacher", d.Reports[0].ReporterName)

		require.Len(t, d.CallSlips, 1)
		assert.Equal(t, res.CallSlip.ID, d.CallSlips[0].ID)

		_, err = app.FormSvc.CaseDetail(ctx, "00000000-0000-0000-0000-000000000000")
		assert.Equal(t, casefile.ErrNotFound, err)
	})

	tests := []struct {
		name     string
		render   func(w *bytes.Buffer) (string, error)
		wantFile string
	}{
		{
			name:     "call slip",
			render:   func(w *bytes.Buffer) (string, error) { return app.FormSvc.RenderCallSlip(ctx, res.CallSlip.ID, w) },
			wantFile: "call-slip-2024-0001-20240604.pdf",
		},
		{
			name:     "case record",
			render:   func(w *bytes.Buffer) (string, error) { return app.FormSvc.RenderCaseRecord(ctx, res.Case.ID, w) },
			wantFile: "case-record-2024-0001.pdf",
		},
		{
			name:     "yakap",
			render:   func(w *bytes.Buffer) (string, error) { return app.FormSvc.RenderYakap(ctx, res.Case.ID, w) },
			wantFile: "yakap-2024-0001.pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			name, err := tt.render(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFile, name)
			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
			assert.Contains(t, buf.String(), "%%EOF")
		})
	}

	t.Run("unknown", func(t *testing.T) {
		buf := new(bytes.Buffer)
		_, err := app.FormSvc.RenderCallSlip(ctx, "lol", buf)
		assert.True(t, core.IsNotFound(err))
		_, err = app.FormSvc.RenderYakap(ctx, earlier.ID, buf)
		assert.True(t, core.IsNotFound(err))
		assert.Zero(t, buf.Len())
	})
}
