package middleware

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"userapi/internal/apperr"
	"userapi/internal/auth"
	"userapi/internal/model"
	"userapi/internal/repository"
)

const (
	// UserLocalKey is the ctx locals key holding the authenticated *model.User.
	UserLocalKey = "auth_user"
	// RefreshTokenLocalKey holds the refresh token string recovered from the
	// presented access token.
	RefreshTokenLocalKey = "auth_refresh_token"
)

// Authenticate verifies the bearer access token and resolves the live
// session behind it. Signature validity alone is not sufficient: the decoded
// refresh token must still be present in the account's outstanding record
// set, which is what makes logout and password change revoke access tokens
// immediately.
func Authenticate(issuer *auth.TokenIssuer, users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if token == "" {
			return apperr.Unauthorized("Access token is required")
		}

		decoded, err := issuer.VerifyAccess(token)
		if err != nil {
			return apperr.Unauthorized("Invalid token")
		}

		user, err := users.FindByID(c.UserContext(), decoded.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.Unauthorized("Invalid token user not found")
			}
			return apperr.Wrap(err, "failed to resolve user")
		}

		if !user.IsActive() {
			return apperr.Forbidden("Your account is not active")
		}

		if !user.HasRefreshToken(decoded.RefreshToken) {
			return apperr.NotFound("Token not found")
		}

		c.Locals(UserLocalKey, user)
		c.Locals(RefreshTokenLocalKey, decoded.RefreshToken)

		return c.Next()
	}
}

// Authorize gates a route behind a role set. It consumes the user resolved
// by Authenticate; no I/O.
func Authorize(roles ...model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := UserFromCtx(c)
		if user == nil {
			return apperr.Unauthorized("Access token is required")
		}
		for _, role := range roles {
			if user.Role == role {
				return c.Next()
			}
		}
		return apperr.Forbidden("You don't have permission to perform this action")
	}
}

// UserFromCtx returns the authenticated user stored by Authenticate, or nil.
func UserFromCtx(c *fiber.Ctx) *model.User {
	user, _ := c.Locals(UserLocalKey).(*model.User)
	return user
}

// RefreshTokenFromCtx returns the refresh token string stored by
// Authenticate.
func RefreshTokenFromCtx(c *fiber.Ctx) string {
	token, _ := c.Locals(RefreshTokenLocalKey).(string)
	return token
}
