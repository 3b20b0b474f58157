package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/ksred/exec-engine/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Configure limits per endpoint type
	authLimit   = rate.Limit(10.0 / 60.0)   // 10 requests per minute
	signalLimit = rate.Limit(100.0 / 60.0)  // 100 requests per minute
	readLimit   = rate.Limit(1000.0 / 60.0) // 1000 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientID string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientID + ":" + path
	v, exists := visitors[key]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/signals"),
			strings.HasPrefix(path, "/api/v1/orders"):
			limit = signalLimit
		case strings.HasPrefix(path, "/api/v1/portfolio"),
			strings.HasPrefix(path, "/api/v1/emergencies"):
			limit = readLimit
		default:
			limit = rate.Inf
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, 1), // burst of 1
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			clientID = c.ClientIP()
		}

		limiter := getLimiter(c.FullPath(), clientID)
		if !limiter.Allow() {
			response.BadRequest(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth validates bearer tokens signed with the configured secret and
// requires the trade permission.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := parseToken(c, secret)
		if !ok {
			return
		}

		if !hasPermission(claims, "trade") {
			response.Forbidden(c, "Missing trade permission")
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// InternalAuth guards operator endpoints: liquidation, risk-mode
// override. Requires the operate permission.
func InternalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := parseToken(c, secret)
		if !ok {
			return
		}

		if !hasPermission(claims, "operate") {
			response.Forbidden(c, "Missing operate permission")
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

func parseToken(c *gin.Context, secret string) (jwt.MapClaims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.Unauthorized(c, "Authorization header required")
		c.Abort()
		return nil, false
	}

	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
		response.Unauthorized(c, "Invalid authorization header format")
		c.Abort()
		return nil, false
	}

	token, err := jwt.Parse(bearerToken[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		response.Unauthorized(c, "Invalid token claims")
		c.Abort()
		return nil, false
	}

	for _, required := range []string{"client_id", "exp"} {
		if _, exists := claims[required]; !exists {
			response.Unauthorized(c, fmt.Sprintf("Missing required claim: %s", required))
			c.Abort()
			return nil, false
		}
	}

	return claims, true
}

func hasPermission(claims jwt.MapClaims, permission string) bool {
	raw, ok := claims["permissions"].([]interface{})
	if !ok {
		return false
	}
	for _, p := range raw {
		if s, ok := p.(string); ok && s == permission {
			return true
		}
	}
	return false
}

func setClaims(c *gin.Context, claims jwt.MapClaims) {
	c.Set("claims", claims)
	if clientID, ok := claims["client_id"].(string); ok {
		c.Set("clientID", clientID)
	}
}
