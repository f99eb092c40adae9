package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newRoleApp(userID interface{}, role string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != nil {
			c.Locals(LocalUserID, userID)
		}
		c.Locals(LocalUserRole, role)
		return c.Next()
	})
	app.Use(RequireRole(RoleAdmin))
	app.Get("/admin/benchmarks", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRoleAllowsAuthorizedRoles(t *testing.T) {
	app := newRoleApp(uint(1), "Admin")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/benchmarks", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireRoleRejectsUnauthorizedRoles(t *testing.T) {
	app := newRoleApp(uint(1), RoleParent)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/benchmarks", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireRoleRequiresUser(t *testing.T) {
	app := newRoleApp(nil, RoleAdmin)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/benchmarks", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
