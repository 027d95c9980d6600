package student_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/incident"
	"github.com/trezcool/podesk/core/student"
	"github.com/trezcool/podesk/core/user"
	"github.com/trezcool/podesk/testutil"
)

func strPtr(s string) *string { return &s }

func TestNewStudent_Validate(t *testing.T) {
	app := testutil.NewApp(t)
	testutil.CreateStudent(t, app.StudentRepo, "111111111111", "Juan", "Dela Cruz", 8, "Rizal", "", true)

	valid := func() student.NewStudent {
		return student.NewStudent{
			LRN:        " 222222222222 ",
			FirstName:  "  Maria ",
			LastName:   "Santos",
			Sex:        "f",
			GradeLevel: 9,
		}
	}

	tests := []struct {
		name      string
		edit      func(ns *student.NewStudent)
		wantField string
		wantErr   error
	}{
		{name: "valid", edit: func(ns *student.NewStudent) {}},
		{name: "missing LRN", edit: func(ns *student.NewStudent) { ns.LRN = "" }, wantField: "lrn"},
		{name: "short LRN", edit: func(ns *student.NewStudent) { ns.LRN = "12345" }, wantField: "lrn"},
		{name: "non-digit LRN", edit: func(ns *student.NewStudent) { ns.LRN = "12345678901a" }, wantField: "lrn"},
		{name: "bad sex", edit: func(ns *student.NewStudent) { ns.Sex = "x" }, wantField: "sex"},
		{name: "grade too low", edit: func(ns *student.NewStudent) { ns.GradeLevel = 6 }, wantField: "grade_level"},
		{name: "grade too high", edit: func(ns *student.NewStudent) { ns.GradeLevel = 13 }, wantField: "grade_level"},
		{name: "missing names", edit: func(ns *student.NewStudent) { ns.FirstName = " " }, wantField: "first_name"},
		{name: "duplicate LRN", edit: func(ns *student.NewStudent) { ns.LRN = "111111111111" }, wantErr: student.ErrLRNExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := valid()
			tt.edit(&ns)
			err := ns.Validate(app.Validate, app.StudentSvc)

			switch {
			case tt.wantField != "":
				var verrs validator.ValidationErrors
				require.True(t, errors.As(err, &verrs), "err = %v", err)
				fields := make([]string, 0, len(verrs))
				for _, fe := range verrs {
					fields = append(fields, fe.Field())
				}
				assert.Contains(t, fields, tt.wantField)
			case tt.wantErr != nil:
				var verr *core.ValidationError
				require.True(t, errors.As(err, &verr), "err = %v", err)
				assert.Equal(t, tt.wantErr, verr.Err)
			default:
				require.NoError(t, err)
				assert.Equal(t, "222222222222", ns.LRN)
				assert.Equal(t, "Maria", ns.FirstName)
				assert.Equal(t, student.SexFemale, ns.Sex)
			}
		})
	}
}

func TestService_Create(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	adviser := testutil.CreateUser(t, app.UsrRepo, "Adviser", "adviser", "adviser@test.ph", "", []string{user.RoleTeacherAdviser}, true)

	ns := student.NewStudent{
		LRN:          "123456789012",
		FirstName:    "Jose",
		MiddleName:   "Protacio",
		LastName:     "Rizal",
		Sex:          student.SexMale,
		GradeLevel:   10,
		Section:      "Mabini",
		AdviserID:    null.StringFrom(adviser.ID),
		GuardianName: "Teodora Alonso",
	}
	stu, err := app.StudentSvc.Create(ctx, ns)
	require.NoError(t, err)
	assert.NotEmpty(t, stu.ID)
	assert.True(t, stu.IsActive)
	assert.Equal(t, "Rizal, Jose P.", stu.FullName())
	assert.Equal(t, "Grade 10 - Mabini", stu.GradeAndSection())

	got, err := app.StudentSvc.GetByLRN(ctx, " 123456789012 ")
	require.NoError(t, err)
	assert.Equal(t, stu.ID, got.ID)
	assert.Equal(t, adviser.ID, got.AdviserID.String)

	ns.LRN = "123456789013"
	ns.AdviserID = null.StringFrom("00000000-0000-0000-0000-000000000000")
	_, err = app.StudentSvc.Create(ctx, ns)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "err = %v", err)
	assert.Equal(t, student.ErrUnknownAdvsr, verr.Err)
}

func TestService_Query(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	adviser := testutil.CreateUser(t, app.UsrRepo, "Adviser", "adviser", "adviser@test.ph", "", []string{user.RoleTeacherAdviser}, true)

	juan := testutil.CreateStudent(t, app.StudentRepo, "100000000001", "Juan", "Dela Cruz", 8, "Rizal", adviser.ID, true)
	maria := testutil.CreateStudent(t, app.StudentRepo, "100000000002", "Maria", "Clara", 8, "Bonifacio", "", true)
	pedro := testutil.CreateStudent(t, app.StudentRepo, "100000000003", "Pedro", "Penduko", 11, "Rizal", "", false)
	bPtr := core.BoolPtr

	tests := []struct {
		name     string
		filter   student.QueryFilter
		ordering []core.DBOrdering
		want     []student.Student
	}{
		{name: "all (by last name)", want: []student.Student{maria, juan, pedro}},
		{name: "search name", filter: student.QueryFilter{Search: "cruz"}, want: []student.Student{juan}},
		{name: "search LRN", filter: student.QueryFilter{Search: "0003"}, want: []student.Student{pedro}},
		{name: "grade", filter: student.QueryFilter{GradeLevel: 8}, want: []student.Student{maria, juan}},
		{name: "section", filter: student.QueryFilter{Section: "Rizal"}, want: []student.Student{juan, pedro}},
		{name: "adviser", filter: student.QueryFilter{AdviserID: adviser.ID}, want: []student.Student{juan}},
		{name: "inactive", filter: student.QueryFilter{IsActive: bPtr(false)}, want: []student.Student{pedro}},
		{
			name:     "order by -lrn",
			ordering: []core.DBOrdering{{Field: "lrn"}},
			want:     []student.Student{pedro, maria, juan},
		},
		{
			name:     "unknown ordering field ignored",
			ordering: []core.DBOrdering{{Field: "guardian_name"}},
			want:     []student.Student{maria, juan, pedro},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := tt.filter
			got, err := app.StudentSvc.Query(ctx, &filter, tt.ordering)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, s := range got {
				ids = append(ids, s.LRN)
			}
			wantIDs := make([]string, 0, len(tt.want))
			for _, s := range tt.want {
				wantIDs = append(wantIDs, s.LRN)
			}
			assert.Equal(t, wantIDs, ids)
		})
	}
}

func TestService_Update(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	other := testutil.CreateStudent(t, app.StudentRepo, "100000000009", "Andres", "Bonifacio", 12, "", "", true)
	stu := testutil.CreateStudent(t, app.StudentRepo, "100000000001", "Juan", "Dela Cruz", 8, "Rizal", "", true)

	us := student.UpdateStudent{LRN: other.LRN}
	var verr *core.ValidationError
	err := us.Validate(stu, app.Validate, app.StudentSvc)
	require.True(t, errors.As(err, &verr), "err = %v", err)
	assert.Equal(t, student.ErrLRNExists, verr.Err)

	us = student.UpdateStudent{
		LRN:        stu.LRN,
		GradeLevel: 9,
		Section:    strPtr(" Mabini "),
		IsActive:   core.BoolPtr(false),
	}
	require.NoError(t, us.Validate(stu, app.Validate, app.StudentSvc))
	updated, err := app.StudentSvc.Update(ctx, stu.ID, us)
	require.NoError(t, err)
	assert.Equal(t, 9, updated.GradeLevel)
	assert.Equal(t, "Mabini", updated.Section)
	assert.Equal(t, "Juan", updated.FirstName)
	assert.False(t, updated.IsActive)

	_, err = app.StudentSvc.Update(ctx, "lol", us)
	assert.Equal(t, student.ErrNotFound, errors.Cause(err))
}

func TestService_Delete(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	teacher := testutil.CreateUser(t, app.UsrRepo, "Teacher", "teacher", "teacher@test.ph", "", []string{user.RoleTeacher}, true)
	clean := testutil.CreateStudent(t, app.StudentRepo, "100000000001", "Juan", "Dela Cruz", 8, "Rizal", "", true)
	naughty := testutil.CreateStudent(t, app.StudentRepo, "100000000002", "Pedro", "Penduko", 8, "Rizal", "", true)
	testutil.CreateReport(t, app.ReportRepo, naughty.ID, teacher.ID, "MIN-01", incident.SeverityMinor, incident.StatusPending, core.NowFunc())

	require.NoError(t, app.StudentSvc.Delete(ctx, clean.ID))
	_, err := app.StudentSvc.GetByID(ctx, clean.ID)
	assert.Equal(t, student.ErrNotFound, errors.Cause(err))

	err = app.StudentSvc.Delete(ctx, naughty.ID)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "err = %v", err)
	assert.Equal(t, student.ErrHasReports, verr.Err)

	assert.Equal(t, student.ErrNotFound, errors.Cause(app.StudentSvc.Delete(ctx, clean.ID)))
}
