package middlewares

import (
	"strings"

	t_token "live_session_service/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//TokenMemberID get member form token, set c.locals name
	TokenMemberID = "MemberID"
	//TokenRole get role form token, set c.locals name
	TokenRole = "role"
	//TokenDisplayName get display name form token, set c.locals name
	TokenDisplayName = "DisplayName"
)

// Caller verified identity of the request
type Caller struct {
	MemberID    string
	Role        string
	DisplayName string
}

// CallerFrom read the identity JWTMiddleware stored in fiber locals
func CallerFrom(c *fiber.Ctx) (Caller, bool) {
	return CallerFromLookup(func(key string) interface{} { return c.Locals(key) })
}

// CallerFromLookup read the identity through a locals getter, websocket.Conn uses this
func CallerFromLookup(get func(key string) interface{}) (Caller, bool) {
	id, ok := get(TokenMemberID).(string)
	if !ok || id == "" {
		return Caller{}, false
	}
	role, _ := get(TokenRole).(string)
	name, _ := get(TokenDisplayName).(string)
	if name == "" {
		name = id
	}
	return Caller{MemberID: id, Role: role, DisplayName: name}, true
}

// JWTMiddleware validates JWT from query, cookie or Authorization header
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Query(QueryToken)

		// 查詢參數中沒有 token，則從 Cookie / Header 取得
		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}
		if tokenStr == "" {
			if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
				tokenStr = strings.TrimPrefix(h, "Bearer ")
			}
		}

		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		claims, err := t_token.ParseJWT(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals(TokenMemberID, claims.MemberID)
		c.Locals(TokenRole, claims.Role)
		c.Locals(TokenDisplayName, claims.DisplayName)

		return c.Next()
	}
}

// RequireRole only lets callers with role through
func RequireRole(role t_token.RoleType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if r, _ := c.Locals(TokenRole).(string); r != string(role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "forbidden",
			})
		}
		return c.Next()
	}
}
