package user_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/incident"
	"github.com/trezcool/podesk/core/user"
	emailsvc "github.com/trezcool/podesk/services/email"
	"github.com/trezcool/podesk/testutil"
)

func TestNewUser_Validate(t *testing.T) {
	app := testutil.NewApp(t)
	testutil.CreateUser(t, app.UsrRepo, "Taken", "taken", "taken@test.ph", "", nil, true)

	valid := func() user.NewUser {
		return user.NewUser{
			Name:            " Test User ",
			Username:        " TestUser ",
			Email:           "Test@User.ph",
			Password:        testutil.Password,
			PasswordConfirm: testutil.Password,
			Roles:           []string{user.RoleTeacher},
		}
	}
	setPwd := func(pwd string) func(nu *user.NewUser) {
		return func(nu *user.NewUser) {
			nu.Password = pwd
			nu.PasswordConfirm = pwd
		}
	}

	tests := []struct {
		name      string
		edit      func(nu *user.NewUser)
		wantField string
		wantTag   string
		wantErr   error
	}{
		{name: "valid", edit: func(nu *user.NewUser) {}},
		{name: "email only", edit: func(nu *user.NewUser) { nu.Username = "" }},
		{name: "missing name", edit: func(nu *user.NewUser) { nu.Name = "  " }, wantField: "name", wantTag: "required"},
		{
			name:      "no username nor email",
			edit:      func(nu *user.NewUser) { nu.Username, nu.Email = "", "" },
			wantField: "username",
			wantTag:   "username_or_email",
		},
		{name: "bad email", edit: func(nu *user.NewUser) { nu.Email = "lol" }, wantField: "email", wantTag: "email"},
		{name: "unknown role", edit: func(nu *user.NewUser) { nu.Roles = []string{"janitor"} }, wantField: "roles", wantTag: "allroles"},
		{
			name:      "confirmation mismatch",
			edit:      func(nu *user.NewUser) { nu.PasswordConfirm = "Kx9#vT2!pLqW" },
			wantField: "password_confirm",
			wantTag:   "eqfield",
		},
		{name: "too short", edit: setPwd("Kx9#vT2"), wantField: "password", wantTag: "pwdminlen"},
		{name: "whitespace", edit: setPwd("Kx9# vT2!pLqw"), wantField: "password", wantTag: "pwdnospace"},
		{name: "all numeric", edit: setPwd("1234509876"), wantField: "password", wantTag: "pwdnotallnum"},
		{name: "no special", edit: setPwd("Kx9vT2pLqw"), wantField: "password", wantTag: "pwdcplx"},
		{name: "no upper", edit: setPwd("kx9#vt2!plqw"), wantField: "password", wantTag: "pwdcplx"},
		{name: "similar to username", edit: setPwd("TestUser2021!"), wantField: "password", wantTag: "pwdtoosim"},
		{name: "common", edit: setPwd("P@ssw0rd"), wantField: "password", wantTag: "pwdnocommon"},
		{name: "username taken", edit: func(nu *user.NewUser) { nu.Username = "TAKEN" }, wantErr: user.ErrUsernameExists},
		{name: "email taken", edit: func(nu *user.NewUser) { nu.Email = "taken@test.ph" }, wantErr: user.ErrEmailExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := valid()
			tt.edit(&nu)
			err := nu.Validate(app.Validate, app.UserSvc)

			switch {
			case tt.wantField != "":
				var verrs validator.ValidationErrors
				require.True(t, errors.As(err, &verrs), "err = %v", err)
				found := false
				for _, fe := range verrs {
					if fe.Field() == tt.wantField && fe.Tag() == tt.wantTag {
						found = true
					}
				}
				assert.True(t, found, "%s/%s not in %v", tt.wantField, tt.wantTag, verrs)
			case tt.wantErr != nil:
				var verr *core.ValidationError
				require.True(t, errors.As(err, &verr), "err = %v", err)
				assert.Equal(t, tt.wantErr, errors.Cause(verr.Err))
				require.Len(t, verr.Fields, 1)
			default:
				require.NoError(t, err)
				assert.Equal(t, "Test User", nu.Name)
				assert.Equal(t, "test@user.ph", nu.Email)
			}
		})
	}
}

func TestService_Create(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()

	usr, err := app.UserSvc.Create(ctx, user.NewUser{
		Name:     "Prefect",
		Username: "prefect",
		Email:    "prefect@test.ph",
		Password: testutil.Password,
		Roles:    []string{user.RolePOD},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.IsActive)
	assert.True(t, usr.CanManageCases())
	require.NoError(t, usr.CheckPassword(testutil.Password))

	got, err := app.UserSvc.GetByUsernameOrEmail(ctx, " PREFECT@test.ph ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)
	assert.Equal(t, []string{user.RolePOD}, got.Roles)

	_, err = app.UserSvc.GetByUsername(ctx, "nobody")
	assert.True(t, core.IsNotFound(err))
}

func TestService_QueryByRole(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()

	head := testutil.CreateUser(t, app.UsrRepo, "Head", "head", "head@test.ph", "", []string{user.RolePODHead}, true)
	pod := testutil.CreateUser(t, app.UsrRepo, "Pod", "pod", "pod@test.ph", "", []string{user.RolePOD}, true)
	testutil.CreateUser(t, app.UsrRepo, "Retired", "retired", "retired@test.ph", "", []string{user.RolePOD}, false)
	teacher := testutil.CreateUser(t, app.UsrRepo, "Teacher", "teacher", "teacher@test.ph", "", []string{user.RoleTeacherAdviser}, true)

	ids := func(users []user.User) []string {
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, u.ID)
		}
		return out
	}

	got, err := app.UserSvc.QueryByRole(ctx, user.RolePOD)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{head.ID, pod.ID}, ids(got))

	got, err = app.UserSvc.QueryByRole(ctx, user.RoleTeacher, user.RolePODHead)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{head.ID, teacher.ID}, ids(got))
}

func TestService_Exists(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	active := testutil.CreateUser(t, app.UsrRepo, "Active", "active", "", "", nil, true)
	inactive := testutil.CreateUser(t, app.UsrRepo, "Inactive", "inactive", "", "", nil, false)

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{name: "active", id: active.ID, want: true},
		{name: "inactive", id: inactive.ID},
		{name: "unknown", id: "00000000-0000-0000-0000-000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := app.UserSvc.Exists(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestService_Update(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, app.UsrRepo, "Teacher", "teacher", "teacher@test.ph", testutil.Password, []string{user.RoleTeacher}, true)

	newPwd := "Zq4$mN8&wRty"
	uu := user.UpdateUser{
		Name:            "Class Adviser",
		IsActive:        core.BoolPtr(false),
		Roles:           []string{user.RoleTeacherAdviser},
		Password:        newPwd,
		PasswordConfirm: newPwd,
	}
	require.NoError(t, uu.Validate(usr, app.Validate, app.UserSvc))
	assert.Equal(t, "teacher", uu.Username)

	updated, err := app.UserSvc.Update(ctx, usr.ID, uu)
	require.NoError(t, err)
	assert.Equal(t, "Class Adviser", updated.Name)
	assert.Equal(t, "teacher@test.ph", updated.Email)
	assert.False(t, updated.IsActive)
	assert.Equal(t, []string{user.RoleTeacherAdviser}, updated.Roles)
	assert.NoError(t, updated.CheckPassword(newPwd))

	_, err = app.UserSvc.Update(ctx, "lol", uu)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_Delete(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	idle := testutil.CreateUser(t, app.UsrRepo, "Idle", "idle", "", "", []string{user.RoleTeacher}, true)
	busy := testutil.CreateUser(t, app.UsrRepo, "Busy", "busy", "", "", []string{user.RoleTeacher}, true)
	stu := testutil.CreateStudent(t, app.StudentRepo, "100000000001", "Juan", "Dela Cruz", 8, "Rizal", "", true)
	testutil.CreateReport(t, app.ReportRepo, stu.ID, busy.ID, "MIN-01", incident.SeverityMinor, incident.StatusPending, core.NowFunc())

	require.NoError(t, app.UserSvc.Delete(ctx, idle.ID))
	_, err := app.UserSvc.GetByID(ctx, idle.ID)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	err = app.UserSvc.Delete(ctx, busy.ID)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "err = %v", err)
	assert.Equal(t, user.ErrHasRecords, verr.Err)

	_, err = app.UserSvc.GetByID(ctx, busy.ID)
	assert.NoError(t, err)
}

func TestService_PasswordReset(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, app.UsrRepo, "Teacher", "teacher", "teacher@test.ph", testutil.Password, nil, true)
	testutil.CreateUser(t, app.UsrRepo, "Gone", "gone", "gone@test.ph", testutil.Password, nil, false)

	assert.Equal(t, user.ErrNotFound, errors.Cause(app.UserSvc.RequestPasswordReset(ctx, "nobody@test.ph")))
	assert.Equal(t, user.ErrNotFound, errors.Cause(app.UserSvc.RequestPasswordReset(ctx, "gone@test.ph")))
	assert.Empty(t, emailsvc.LastSentMessages(1))

	require.NoError(t, app.UserSvc.RequestPasswordReset(ctx, " Teacher@Test.ph "))
	msgs := emailsvc.LastSentMessages(1)
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, "password_reset", msg.TemplateName)
	require.Len(t, msg.To, 1)
	assert.Equal(t, usr.Email, msg.To[0].Address)

	link, err := url.Parse(msg.TemplateData.(map[string]interface{})["URL"].(string))
	require.NoError(t, err)
	assert.Equal(t, "/password-reset-confirm", link.Path)
	uid, token := link.Query().Get("uid"), link.Query().Get("token")
	require.NotEmpty(t, uid)
	require.NotEmpty(t, token)

	newPwd := "Zq4$mN8&wRty"
	invalid := func(err error) {
		t.Helper()
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "err = %v", err)
		assert.EqualError(t, verr.Err, "invalid or expired token")
	}

	invalid(app.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: "%%%", Token: token, Password: newPwd}))
	invalid(app.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: "lol-token", Password: newPwd}))

	require.NoError(t, app.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: newPwd}))
	got, err := app.UserSvc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword(newPwd))

	// the password change invalidates the token
	invalid(app.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: testutil.Password}))
}
