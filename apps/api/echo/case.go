package echoapi

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/podesk/core"
	"github.com/trezcool/podesk/core/casefile"
	"github.com/trezcool/podesk/core/student"
)

const mimeApplicationPDF = "application/pdf"

type caseApi struct {
	*Deps
}

// cases and call slips are handled by the POD office
func registerCaseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := caseApi{deps}

	cg := g.Group("/cases", jwt, podMiddleware(deps.UserSvc))
	cg.POST("", api.create)
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update)
	cg.PUT("/:id/status", api.transition)
	cg.POST("/:id/call-slips", api.issueCallSlip)
	cg.GET("/:id/forms/case-record", api.caseRecordForm)
	cg.GET("/:id/forms/yakap", api.yakapForm)
}

func registerCallSlipAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := caseApi{deps}

	sg := g.Group("/call-slips", jwt, podMiddleware(deps.UserSvc))
	sg.GET("", api.queryCallSlips)
	sg.GET("/:id", api.retrieveCallSlip)
	sg.PUT("/:id/status", api.setCallSlipStatus)
	sg.GET("/:id/form", api.callSlipForm)
}

func (api *caseApi) create(ctx echo.Context) error {
	var data casefile.NewCase
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCase")
	}
	data.Clean()
	if err := api.Validate.Struct(&data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	stu, err := api.StudentSvc.GetByID(reqCtx, data.StudentID)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return errors.Wrap(err, "finding student")
	}
	if data.HandlerID.Valid {
		if ok, err := api.UserSvc.Exists(reqCtx, data.HandlerID.String); err != nil {
			return errors.Wrap(err, "finding handler")
		} else if !ok {
			return core.NewValidationError(nil, core.FieldError{Field: "handler_id", Error: "user not found"})
		}
	}

	c, err := api.CaseSvc.Open(reqCtx, stu.ID, data.Severity, casefile.OriginManual, data.Summary, data.HandlerID)
	if err != nil {
		return errors.Wrap(err, "opening case")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *caseApi) query(ctx echo.Context) error {
	filter := new(casefile.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []casefile.Case{})
	}
	filter.Clean()

	cases, err := api.CaseSvc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying cases")
	}
	return ctx.JSON(http.StatusOK, cases)
}

// retrieve returns the case with its student, reports and call slips.
func (api *caseApi) retrieve(ctx echo.Context) error {
	detail, err := api.FormSvc.CaseDetail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "loading case detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *caseApi) update(ctx echo.Context) error {
	var data casefile.UpdateCase
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCase")
	}
	if err := api.Validate.Struct(&data); err != nil {
		return err
	}
	if data.HandlerID.Valid {
		if ok, err := api.UserSvc.Exists(ctx.Request().Context(), data.HandlerID.String); err != nil {
			return errors.Wrap(err, "finding handler")
		} else if !ok {
			return core.NewValidationError(nil, core.FieldError{Field: "handler_id", Error: "user not found"})
		}
	}

	c, err := api.CaseSvc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating case")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *caseApi) transition(ctx echo.Context) error {
	var data casefile.StatusChange
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatusChange")
	}
	data.Status = core.CleanString(data.Status, true)
	if err := api.Validate.Struct(&data); err != nil {
		return err
	}

	c, err := api.CaseSvc.Transition(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "changing case status")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *caseApi) issueCallSlip(ctx echo.Context) error {
	var data casefile.NewCallSlip
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCallSlip")
	}
	if err := api.Validate.Struct(&data); err != nil {
		return err
	}

	issuer, err := getContextUser(ctx, api.UserSvc)
	if err != nil {
		return err
	}
	cs, c, err := api.CaseSvc.IssueCallSlip(ctx.Request().Context(), ctx.Param("id"), issuer.ID, data)
	if err != nil {
		return errors.Wrap(err, "issuing call slip")
	}
	return ctx.JSON(http.StatusCreated, IssueCallSlipResponse{CallSlip: cs, Case: c})
}

func (api *caseApi) queryCallSlips(ctx echo.Context) error {
	filter := new(casefile.SlipFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []casefile.CallSlip{})
	}
	filter.Status = core.CleanString(filter.Status, true)

	slips, err := api.CaseSvc.QueryCallSlips(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying call slips")
	}
	return ctx.JSON(http.StatusOK, slips)
}

func (api *caseApi) retrieveCallSlip(ctx echo.Context) error {
	cs, err := api.CaseSvc.GetCallSlip(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding call slip by ID")
	}
	return ctx.JSON(http.StatusOK, cs)
}

func (api *caseApi) setCallSlipStatus(ctx echo.Context) error {
	var data casefile.SlipStatusChange
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SlipStatusChange")
	}
	data.Status = core.CleanString(data.Status, true)
	if err := api.Validate.Struct(&data); err != nil {
		return err
	}

	cs, err := api.CaseSvc.SetCallSlipStatus(ctx.Request().Context(), ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "changing call slip status")
	}
	return ctx.JSON(http.StatusOK, cs)
}

// Forms

type renderFunc func(buf *bytes.Buffer) (string, error)

// sendPDF renders into a buffer first so that render errors still produce a JSON error response.
func sendPDF(ctx echo.Context, render renderFunc) error {
	var buf bytes.Buffer
	filename, err := render(&buf)
	if err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="`+filename+`"`)
	return ctx.Blob(http.StatusOK, mimeApplicationPDF, buf.Bytes())
}

func (api *caseApi) caseRecordForm(ctx echo.Context) error {
	return sendPDF(ctx, func(buf *bytes.Buffer) (string, error) {
		name, err := api.FormSvc.RenderCaseRecord(ctx.Request().Context(), ctx.Param("id"), buf)
		return name, errors.Wrap(err, "rendering case record")
	})
}

func (api *caseApi) yakapForm(ctx echo.Context) error {
	return sendPDF(ctx, func(buf *bytes.Buffer) (string, error) {
		name, err := api.FormSvc.RenderYakap(ctx.Request().Context(), ctx.Param("id"), buf)
		return name, errors.Wrap(err, "rendering YAKAP form")
	})
}

func (api *caseApi) callSlipForm(ctx echo.Context) error {
	return sendPDF(ctx, func(buf *bytes.Buffer) (string, error) {
		name, err := api.FormSvc.RenderCallSlip(ctx.Request().Context(), ctx.Param("id"), buf)
		return name, errors.Wrap(err, "rendering call slip")
	})
}

type IssueCallSlipResponse struct {
	CallSlip casefile.CallSlip `json:"call_slip"`
	Case     casefile.Case     `json:"case"`
}
