package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
	"github.com/trezcool/podesk/core/forms"
	"github.com/trezcool/podesk/core/incident"
	"github.com/trezcool/podesk/core/student"
	"github.com/trezcool/podesk/core/user"
	appfs "github.com/trezcool/podesk/fs"
	emailsvc "github.com/trezcool/podesk/services/email"
	logsvc "github.com/trezcool/podesk/services/logger"
	pdfsvc "github.com/trezcool/podesk/services/pdf"
	"github.com/trezcool/podesk/storage/database"
	sqlxrepos "github.com/trezcool/podesk/storage/database/sqlx"
)

// Password satisfies the password policy.
const Password = "Kx9#vT2!pLqw"

// PrepareDB opens a fresh in-memory database with every migration applied.
func PrepareDB(t *testing.T, conf ...*core.Config) *sqlx.DB {
	t.Helper()
	c := core.NewTestConfig()
	if len(conf) > 0 {
		c = conf[0]
	}
	db, err := database.Open(c)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, c.Database.Engine); err != nil {
		t.Fatalf("PrepareDB() failed to migrate: %v", err)
	}
	return db
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// App bundles the repositories and services of a test application.
type App struct {
	Conf       *core.Config
	DB         *sqlx.DB
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Catalog    *incident.Catalog

	UsrRepo     user.Repository
	StudentRepo student.Repository
	CaseRepo    casefile.Repository
	ReportRepo  incident.Repository

	UserSvc    user.Service
	StudentSvc student.Service
	CaseSvc    casefile.Service
	ReportSvc  incident.Service
	FormSvc    forms.Service
}

// NewApp wires the application against a fresh in-memory database; mails go to the console mock.
func NewApp(t *testing.T, conf ...*core.Config) *App {
	t.Helper()
	c := core.NewTestConfig()
	if len(conf) > 0 {
		c = conf[0]
	}
	db := PrepareDB(t, c)
	logger := logsvc.NewNopLogger()

	validate := validator.New()
	translator := NewTranslator()
	catalog, err := incident.LoadCatalog(appfs.FS, appfs.OffenseCatalog)
	if err != nil {
		t.Fatalf("NewApp() failed to load catalog: %v", err)
	}
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	student.InitValidators(validate, translator)
	incident.InitValidators(validate, translator, catalog)
	user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswords, logger)
	core.ParseEmailTemplates(c, appfs.FS, appfs.EmailTemplatesDir, logger)
	emailsvc.ClearSentMessages()

	renderer, err := pdfsvc.NewRenderer(c)
	if err != nil {
		t.Fatalf("NewApp() failed to create renderer: %v", err)
	}
	mailSvc := emailsvc.NewConsoleServiceMock(c, logger)

	app := &App{
		Conf:        c,
		DB:          db,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Catalog:     catalog,
		UsrRepo:     sqlxrepos.NewUserRepository(db),
		StudentRepo: sqlxrepos.NewStudentRepository(db),
		CaseRepo:    sqlxrepos.NewCaseRepository(db),
		ReportRepo:  sqlxrepos.NewReportRepository(db),
	}
	app.UserSvc = user.NewService(db, app.UsrRepo, mailSvc, c)
	app.StudentSvc = student.NewService(db, app.StudentRepo, app.UserSvc)
	app.CaseSvc = casefile.NewService(db, app.CaseRepo, c)
	app.ReportSvc = incident.NewService(incident.Deps{
		DB:       db,
		Repo:     app.ReportRepo,
		Catalog:  catalog,
		Students: app.StudentSvc,
		Cases:    app.CaseSvc,
		Users:    app.UserSvc,
		MailSvc:  mailSvc,
		Logger:   logger,
		Conf:     c,
	})
	app.FormSvc = forms.NewService(forms.Deps{
		Renderer: renderer,
		Cases:    app.CaseSvc,
		Reports:  app.ReportSvc,
		Students: app.StudentSvc,
		Users:    app.UserSvc,
		Conf:     c,
	})
	return app
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := core.NowFunc()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC().Truncate(time.Microsecond)
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(
	t *testing.T,
	repo student.Repository,
	lrn, firstName, lastName string,
	gradeLevel int,
	section string,
	adviserID string,
	isActive bool,
) student.Student {
	t.Helper()
	now := core.NowFunc()
	stu, err := repo.CreateStudent(context.Background(), student.Student{
		LRN:        lrn,
		FirstName:  firstName,
		LastName:   lastName,
		Sex:        student.SexMale,
		GradeLevel: gradeLevel,
		Section:    section,
		AdviserID:  null.NewString(adviserID, adviserID != ""),
		IsActive:   isActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return stu
}

// CreateReport inserts a report as-is, without running escalation.
func CreateReport(
	t *testing.T,
	repo incident.Repository,
	studentID, reporterID, offenseCode, severity, status string,
	incidentAt time.Time,
) incident.Report {
	t.Helper()
	now := core.NowFunc()
	rpt, err := repo.CreateReport(context.Background(), incident.Report{
		StudentID:   studentID,
		ReporterID:  reporterID,
		OffenseCode: offenseCode,
		Severity:    severity,
		IncidentAt:  incidentAt.UTC().Truncate(time.Microsecond),
		Narrative:   "Reported during class.",
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateReport() failed: %v", err)
	}
	return rpt
}

// FreezeTime pins core.NowFunc to at for the duration of the test.
func FreezeTime(t *testing.T, at time.Time) {
	t.Helper()
	orig := core.NowFunc
	at = at.UTC().Truncate(time.Microsecond)
	core.NowFunc = func() time.Time { return at }
	t.Cleanup(func() { core.NowFunc = orig })
}
