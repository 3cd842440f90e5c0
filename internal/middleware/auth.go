package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/mural-go-api/internal/utils"
)

const (
	subjectLocal = "subject"
	roleLocal    = "user_role"
	bearerPrefix = "bearer "
)

// TokenClaims is the claim set accepted on protected routes.
type TokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTProtected validates HS256 bearer tokens signed with secret. A non-empty issuer must match
// the iss claim. The subject and role are exposed to later handlers.
func JWTProtected(secret, issuer string) fiber.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}
		if len(authorization) <= len(bearerPrefix) || !strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		var claims TokenClaims
		token, err := parser.ParseWithClaims(strings.TrimSpace(authorization[len(bearerPrefix):]), &claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		if subject := strings.TrimSpace(claims.Subject); subject != "" {
			c.Locals(subjectLocal, subject)
		}
		if role := normalizeRole(claims.Role); role != "" {
			c.Locals(roleLocal, role)
		}

		return c.Next()
	}
}

// RequireRole admits requests whose token carried one of roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[RoleFromContext(c)]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// RoleFromContext returns the normalised role set by JWTProtected, or "".
func RoleFromContext(c *fiber.Ctx) string {
	role, _ := c.Locals(roleLocal).(string)
	return normalizeRole(role)
}

// SubjectFromContext returns the token subject set by JWTProtected, or "".
func SubjectFromContext(c *fiber.Ctx) string {
	subject, _ := c.Locals(subjectLocal).(string)
	return subject
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
