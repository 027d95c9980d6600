package di

import (
	"fmt"
	"log"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/podesk/apps/api/echo"
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

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type loggers struct {
	dig.Out
	Zap *zap.Logger
	API core.Logger
	DB  core.Logger `name:"dbLogger"`
}

func newLoggers(conf *core.Config) (loggers, error) {
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		return loggers{}, errors.Wrap(err, "building zap logger")
	}
	apiLogger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	apiLogger.Enable(!conf.Debug)
	dbLogger := logsvc.NewRollbarLogger(zl.Named("db"), conf)
	dbLogger.Enable(!conf.Debug)
	return loggers{Zap: zl, API: apiLogger, DB: dbLogger}, nil
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB, core.DBExecutor, error) {
	if conf.Database.Engine == database.MySQL {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, nil, nil, errors.Wrap(err, "creating database")
		}
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "opening database")
	}
	if err = database.Migrate(db, conf.Database.Engine); err != nil {
		return nil, nil, nil, errors.Wrap(err, "migrating database")
	}
	loggerParam.Logger.Info(fmt.Sprintf("database ready : engine %q", conf.Database.Engine))
	return db, db, db, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newCatalog() (*incident.Catalog, error) {
	return incident.LoadCatalog(appfs.FS, appfs.OffenseCatalog)
}

// newValidator registers every custom validator and loads the assets they need.
func newValidator(translator ut.Translator, catalog *incident.Catalog, logger core.Logger) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	student.InitValidators(validate, translator)
	incident.InitValidators(validate, translator, catalog)
	user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswords, logger)
	return validate
}

func newStudentService(db core.DB, repo student.Repository, usrSvc user.Service) student.Service {
	return student.NewService(db, repo, usrSvc)
}

func newReportService(
	conf *core.Config,
	logger core.Logger,
	db core.DB,
	repo incident.Repository,
	catalog *incident.Catalog,
	students student.Service,
	cases casefile.Service,
	users user.Service,
	mailSvc core.EmailService,
) incident.Service {
	return incident.NewService(incident.Deps{
		DB:       db,
		Repo:     repo,
		Catalog:  catalog,
		Students: students,
		Cases:    cases,
		Users:    users,
		MailSvc:  mailSvc,
		Logger:   logger,
		Conf:     conf,
	})
}

func newFormService(
	conf *core.Config,
	renderer forms.Renderer,
	cases casefile.Service,
	reports incident.Service,
	students student.Service,
	users user.Service,
) forms.Service {
	return forms.NewService(forms.Deps{
		Renderer: renderer,
		Cases:    cases,
		Reports:  reports,
		Students: students,
		Users:    users,
		Conf:     conf,
	})
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	usrSvc user.Service,
	studentSvc student.Service,
	reportSvc incident.Service,
	caseSvc casefile.Service,
	formSvc forms.Service,
) *echoapi.Server {
	core.ParseEmailTemplates(conf, appfs.FS, appfs.EmailTemplatesDir, logger)
	return echoapi.NewServer(&echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		StudentSvc: studentSvc,
		ReportSvc:  reportSvc,
		CaseSvc:    caseSvc,
		FormSvc:    formSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLoggers))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(NewTranslator))
	must(c.Provide(newCatalog))
	must(c.Provide(newValidator))
	must(c.Provide(pdfsvc.NewRenderer))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewStudentRepository, dig.As(new(student.Repository))))
	must(c.Provide(sqlxrepos.NewCaseRepository, dig.As(new(casefile.Repository))))
	must(c.Provide(sqlxrepos.NewReportRepository, dig.As(new(incident.Repository))))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(newStudentService))
	must(c.Provide(casefile.NewService))
	must(c.Provide(newReportService))
	must(c.Provide(newFormService))

	must(c.Provide(newServer))
	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
