package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
	"github.com/trezcool/podesk/core/incident"
	"github.com/trezcool/podesk/core/student"
	"github.com/trezcool/podesk/core/user"
	appfs "github.com/trezcool/podesk/fs"
	emailsvc "github.com/trezcool/podesk/services/email"
	logsvc "github.com/trezcool/podesk/services/logger"
	"github.com/trezcool/podesk/storage/database"
	sqlxrepos "github.com/trezcool/podesk/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZap(conf)
	errAndDie(err)
	defer func() { _ = zl.Sync() }()
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	logger.Enable(!conf.Debug)

	// the MySQL database must exist before we can connect to it
	if len(os.Args) > 1 && os.Args[1] == "createdb" && conf.Database.Engine == database.MySQL {
		errAndDie(createDBFunc(conf))
	}
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	catalog, err := incident.LoadCatalog(appfs.FS, appfs.OffenseCatalog)
	errAndDie(err)
	core.ParseEmailTemplates(conf, appfs.FS, appfs.EmailTemplatesDir, logger)

	var mailSvc core.EmailService = emailsvc.NewConsoleService(conf, logger)
	if !conf.Debug {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(db, usrRepo, mailSvc, conf)
	studentSvc := student.NewService(db, sqlxrepos.NewStudentRepository(db), usrSvc)
	caseSvc := casefile.NewService(db, sqlxrepos.NewCaseRepository(db), conf)

	// start CLI
	cli := commandLine{
		conf:       conf,
		db:         db,
		usrRepo:    usrRepo,
		usrSvc:     usrSvc,
		studentSvc: studentSvc,
		reportSvc: incident.NewService(incident.Deps{
			DB:       db,
			Repo:     sqlxrepos.NewReportRepository(db),
			Catalog:  catalog,
			Students: studentSvc,
			Cases:    caseSvc,
			Users:    usrSvc,
			MailSvc:  mailSvc,
			Logger:   logger,
			Conf:     conf,
		}),
		out: os.Stdout,
	}
	err = cli.run(os.Args)
	if w, ok := mailSvc.(interface{ Wait() }); ok {
		w.Wait()
	}
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
