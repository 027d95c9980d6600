package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/incident"
)

func (cli *commandLine) listOffenses(w io.Writer, severity string) error {
	catalog := cli.reportSvc.Catalog()
	offenses := catalog.All()
	if severity = core.CleanString(severity, true /* lower */); severity != "" {
		if severity != incident.SeverityMinor && severity != incident.SeverityMajor {
			return fmt.Errorf("unknown severity %q", severity)
		}
		offenses = catalog.BySeverity(severity)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tSEVERITY\tTITLE")
	for _, o := range offenses {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Code, o.Severity, o.Title)
	}
	return tw.Flush()
}

func (cli *commandLine) escalate(lrn, issuer string) (*incident.Escalation, error) {
	ctx := context.Background()
	stu, err := cli.studentSvc.GetByLRN(ctx, lrn)
	if err != nil {
		return nil, errors.Wrap(err, "finding student")
	}
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, issuer)
	if err != nil {
		return nil, errors.Wrap(err, "finding issuer")
	}
	if !usr.CanManageCases() {
		return nil, fmt.Errorf("%s cannot issue call slips", usr.Username)
	}
	return cli.reportSvc.EscalateStudent(ctx, stu.ID, usr.ID)
}
