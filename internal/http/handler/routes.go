package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"userapi/internal/http/middleware"
	"userapi/internal/model"
	"userapi/internal/service"
	"userapi/internal/upload"
)

// Deps bundles everything the route table needs. Handlers stay thin: parse,
// delegate to a service, serialize; business rules live below.
type Deps struct {
	DB           *sql.DB
	Auth         service.AuthService
	Users        service.UserService
	Admin        service.AdminService
	Pipeline     *upload.Pipeline
	Authenticate fiber.Handler
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type deleteDocumentsRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	// Health endpoint: checks DB connectivity only
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := d.DB.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	})

	// Simple liveness probe
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	api := app.Group("/api")

	registerAuthRoutes(api, d)
	registerUserRoutes(api, d)
	registerAdminRoutes(api, d)
}

func registerAuthRoutes(api fiber.Router, d Deps) {
	auth := api.Group("/auth")

	auth.Post("/register", func(c *fiber.Ctx) error {
		var in service.RegisterInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}
		if in.Email == "" || in.Password == "" {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "email and password are required")
		}
		user, err := d.Auth.Register(c.UserContext(), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(user)
	})

	auth.Post("/login", func(c *fiber.Ctx) error {
		var in loginRequest
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}
		res, err := d.Auth.Login(c.UserContext(), in.Email, in.Password)
		if err != nil {
			return err
		}
		return c.JSON(res)
	})

	auth.Post("/refresh-token", func(c *fiber.Ctx) error {
		var in refreshRequest
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}
		res, err := d.Auth.Refresh(c.UserContext(), in.RefreshToken)
		if err != nil {
			return err
		}
		return c.JSON(res)
	})
}

func registerUserRoutes(api fiber.Router, d Deps) {
	users := api.Group("/users", d.Authenticate)

	users.Get("/profile", func(c *fiber.Ctx) error {
		user, err := d.Users.GetProfile(c.UserContext(), middleware.UserFromCtx(c).ID)
		if err != nil {
			return err
		}
		return c.JSON(user)
	})

	users.Patch("/profile", func(c *fiber.Ctx) error {
		var in service.UpdateProfileInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}
		user, err := d.Users.UpdateProfile(c.UserContext(), middleware.UserFromCtx(c).ID, in)
		if err != nil {
			return err
		}
		return c.JSON(user)
	})

	users.Post("/logout", func(c *fiber.Ctx) error {
		err := d.Users.Logout(c.UserContext(), middleware.UserFromCtx(c).ID, middleware.RefreshTokenFromCtx(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Logged out successfully"})
	})

	users.Post("/change-password", func(c *fiber.Ctx) error {
		var in changePasswordRequest
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}
		if in.NewPassword == "" {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "new password is required")
		}
		err := d.Users.ChangePassword(c.UserContext(), middleware.UserFromCtx(c).ID, in.CurrentPassword, in.NewPassword)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Password changed successfully"})
	})

	users.Post("/profile-image",
		d.Pipeline.Fields(upload.Field{Name: "profileImage", MaxCount: 1, Type: upload.TypeImage}),
		func(c *fiber.Ctx) error {
			files := upload.Files(c, "profileImage")
			if len(files) == 0 {
				return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "no file uploaded")
			}
			user, err := d.Users.UpdateProfileImage(c.UserContext(), middleware.UserFromCtx(c).ID, files[0])
			if err != nil {
				return err
			}
			return c.JSON(user)
		})

	users.Delete("/profile-image", func(c *fiber.Ctx) error {
		if err := d.Users.DeleteProfileImage(c.UserContext(), middleware.UserFromCtx(c).ID); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Profile image deleted successfully"})
	})

	users.Post("/documents",
		d.Pipeline.Fields(upload.Field{Name: "documents", MaxCount: 5, Type: upload.TypeDocument}),
		func(c *fiber.Ctx) error {
			files := upload.Files(c, "documents")
			if len(files) == 0 {
				return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "no file uploaded")
			}
			user, err := d.Users.UploadDocuments(c.UserContext(), middleware.UserFromCtx(c).ID, files)
			if err != nil {
				return err
			}
			return c.JSON(user)
		})

	users.Delete("/documents", func(c *fiber.Ctx) error {
		var in deleteDocumentsRequest
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}
		if len(in.DocumentIDs) == 0 {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "document_ids is required")
		}
		if err := d.Users.DeleteDocuments(c.UserContext(), middleware.UserFromCtx(c).ID, in.DocumentIDs); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Documents deleted successfully"})
	})

	users.Delete("/profile", func(c *fiber.Ctx) error {
		if err := d.Users.DeleteUser(c.UserContext(), middleware.UserFromCtx(c).ID); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "User deleted successfully"})
	})
}

func registerAdminRoutes(api fiber.Router, d Deps) {
	admin := api.Group("/admin", d.Authenticate, middleware.Authorize(model.RoleAdmin))

	admin.Get("/users", func(c *fiber.Ctx) error {
		q := service.ListUsersQuery{
			Page:   c.QueryInt("page", 1),
			Limit:  c.QueryInt("limit", 10),
			Status: c.Query("status"),
			Role:   c.Query("role"),
			Search: c.Query("search"),
		}
		res, err := d.Admin.ListUsers(c.UserContext(), q)
		if err != nil {
			return err
		}
		return c.JSON(res)
	})

	admin.Get("/users/:id", func(c *fiber.Ctx) error {
		user, err := d.Admin.GetUser(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(user)
	})

	admin.Patch("/users/:id/status", func(c *fiber.Ctx) error {
		var in changeStatusRequest
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}
		user, err := d.Admin.ChangeStatus(c.UserContext(), c.Params("id"), model.Status(in.Status))
		if err != nil {
			return err
		}
		return c.JSON(user)
	})

	admin.Delete("/users/:id", func(c *fiber.Ctx) error {
		if err := d.Users.DeleteUser(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "User deleted successfully"})
	})
}
