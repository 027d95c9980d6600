package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/podesk/core/user"
)

// staffMiddleware loads the authenticated user and lets it through when allow accepts it.
// A nil allow accepts every active user.
func staffMiddleware(svc user.Service, allow func(usr user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if allow == nil || allow(usr) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func isAdmin(usr user.User) bool        { return usr.IsAdmin() }
func canManageCases(usr user.User) bool { return usr.CanManageCases() }

func adminMiddleware(svc user.Service) echo.MiddlewareFunc {
	return staffMiddleware(svc, isAdmin)
}

func podMiddleware(svc user.Service) echo.MiddlewareFunc {
	return staffMiddleware(svc, canManageCases)
}
