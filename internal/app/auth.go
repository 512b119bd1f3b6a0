package app

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	SessionCookie = "session-token"
	sessionKey    = "session"
)

// ProtectedPrefixes are the path prefixes gated by SessionAuth. Everything else
// passes through untouched.
var ProtectedPrefixes = []string{"/dashboard", "/portal", "/admin"}

var ErrNoToken = errors.New("no session token")

type SessionConfig struct {
	Secret       string
	StaticTokens []string
	SignInPath   string
	Prefixes     []string
}

// SessionClaims is the token shape: the provider's registered claims plus id and role.
type SessionClaims struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func IssueSessionToken(secret string, u User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		ID:    u.ID,
		Role:  u.Role,
		Email: u.Email,
		Name:  u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseSession validates tokenStr against the configured secret and static tokens.
func (cfg SessionConfig) ParseSession(tokenStr string) (*Session, error) {
	if tokenStr == "" {
		return nil, ErrNoToken
	}

	// JWT path
	if cfg.Secret != "" {
		var claims SessionClaims
		_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenMalformed
			}
			return []byte(cfg.Secret), nil
		}, jwt.WithLeeway(5*time.Second))
		if err == nil && claims.ID != "" {
			s := &Session{User: User{ID: claims.ID, Email: claims.Email, Name: claims.Name, Role: claims.Role}}
			if claims.ExpiresAt != nil {
				s.Expires = claims.ExpiresAt.Time
			}
			return s, nil
		}
	}

	// static tokens
	for _, t := range cfg.StaticTokens {
		t = strings.TrimSpace(t)
		if t != "" && tokenStr == t {
			return &Session{User: User{ID: "static", Role: RoleService}}, nil
		}
	}

	return nil, errors.New("invalid token")
}

func (cfg SessionConfig) protects(path string) bool {
	prefixes := cfg.Prefixes
	if prefixes == nil {
		prefixes = ProtectedPrefixes
	}
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func tokenFromRequest(c *gin.Context) string {
	// a non-Bearer Authorization header (basic auth from a proxy) falls through to the cookie
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

// SessionAuth gates the protected prefixes: any valid session passes regardless
// of role. Browser navigations without a session are sent to the sign-in page.
func SessionAuth(cfg SessionConfig) gin.HandlerFunc {
	signIn := cfg.SignInPath
	if signIn == "" {
		signIn = "/api/auth/signin"
	}

	return func(c *gin.Context) {
		// resolve the session everywhere so unprotected pages can still read it
		session, err := cfg.ParseSession(tokenFromRequest(c))
		if err == nil {
			c.Set(sessionKey, session)
			c.Next()
			return
		}
		if !cfg.protects(c.Request.URL.Path) {
			c.Next()
			return
		}

		if isNavigation(c.Request) {
			target := signIn + "?callbackUrl=" + url.QueryEscape(c.Request.URL.RequestURI())
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}
		msg := "invalid token"
		if errors.Is(err, ErrNoToken) {
			msg = "missing session"
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
	}
}

func isNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func SessionFromContext(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}

// RequireRole narrows a route to the given roles. The prefix gate never applies it.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		s, ok := SessionFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
			return
		}
		if _, ok := allowed[s.User.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// GET /api/auth/session
func SessionHandler(c *gin.Context) {
	s, ok := SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s)
}
