package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/incident"
	"github.com/trezcool/podesk/core/user"
)

const maxSyncBatch = 200

type reportApi struct {
	*Deps
}

func registerOffenseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	og := g.Group("/offenses", jwt, staffMiddleware(deps.UserSvc, nil))
	og.GET("", func(ctx echo.Context) error {
		catalog := deps.ReportSvc.Catalog()
		if severity := core.CleanString(ctx.QueryParam("severity"), true); severity != "" {
			offenses := catalog.BySeverity(severity)
			if offenses == nil {
				offenses = []incident.Offense{}
			}
			return ctx.JSON(http.StatusOK, offenses)
		}
		return ctx.JSON(http.StatusOK, catalog.All())
	})
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := reportApi{deps}
	pod := podMiddleware(deps.UserSvc)

	rg := g.Group("/reports", jwt, staffMiddleware(deps.UserSvc, nil))
	rg.POST("", api.submit)
	rg.POST("/sync", api.sync)
	rg.GET("", api.query)
	rg.GET("/summary", api.summary, pod)
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id/review", api.review, pod)
}

func (api *reportApi) submit(ctx echo.Context) error {
	var data incident.NewReport
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReport")
	}
	if err := data.Validate(api.Validate); err != nil {
		return err
	}

	reporter, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	res, err := api.ReportSvc.Submit(ctx.Request().Context(), reporter, data)
	if err != nil {
		return errors.Wrap(err, "submitting report")
	}

	code := http.StatusCreated
	if res.Duplicate {
		code = http.StatusOK
	}
	return ctx.JSON(code, res)
}

// sync accepts reports queued by an offline client. Items succeed or fail independently.
func (api *reportApi) sync(ctx echo.Context) error {
	var data SyncRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SyncRequest")
	}
	if len(data.Reports) > maxSyncBatch {
		return core.NewValidationError(nil, core.FieldError{Field: "reports", Error: "too many reports in one batch"})
	}

	reporter, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	results := api.ReportSvc.Sync(ctx.Request().Context(), reporter, data.Reports, api.Validate)
	for i := range results {
		if results[i].Err == nil {
			continue
		}
		if msg := validationMessage(errors.Cause(results[i].Err), api.Translator); msg != nil {
			results[i].Error = msg
		} else {
			api.Logger.Error("syncing report", errors.Wrap(results[i].Err, "syncing report"), reporter)
			results[i].Error = echo.Map{"error": http.StatusText(http.StatusInternalServerError)}
		}
	}
	return ctx.JSON(http.StatusOK, SyncResponse{Results: results})
}

func (api *reportApi) query(ctx echo.Context) error {
	filter := new(incident.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []incident.Report{})
	}
	filter.Clean()

	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	// teachers only see their own reports
	if !usr.CanManageCases() {
		filter.ReporterID = usr.ID
	}

	reports, err := api.ReportSvc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying reports")
	}
	return ctx.JSON(http.StatusOK, reports)
}

func (api *reportApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	rpt, err := api.ReportSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding report by ID")
	}
	if !canSeeReport(usr, rpt) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, rpt)
}

func (api *reportApi) review(ctx echo.Context) error {
	var data incident.Review
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Review")
	}
	if err := api.Validate.Struct(&data); err != nil {
		return err
	}

	reviewer, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	rpt, err := api.ReportSvc.Review(ctx.Request().Context(), ctx.Param("id"), reviewer, data)
	if err != nil {
		return errors.Wrap(err, "reviewing report")
	}
	return ctx.JSON(http.StatusOK, rpt)
}

func (api *reportApi) summary(ctx echo.Context) error {
	sum, err := api.ReportSvc.Summary(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "summarizing reports")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func canSeeReport(usr user.User, rpt incident.Report) bool {
	return usr.CanManageCases() || rpt.ReporterID == usr.ID
}

type (
	SyncRequest struct {
		Reports []incident.NewReport `json:"reports"`
	}

	SyncResponse struct {
		Results []incident.SyncItemResult `json:"results"`
	}
)
