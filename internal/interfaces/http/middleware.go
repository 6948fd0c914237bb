package http

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Middleware struct {
	jwtSecret    []byte
	rateLimiters map[string]*clientLimiter
	idleTimeout  time.Duration
	lastCleanup  time.Time
	now          func() time.Time
	mu           sync.Mutex
}

func NewMiddleware(secret string) *Middleware {
	return &Middleware{
		jwtSecret:    []byte(secret),
		rateLimiters: make(map[string]*clientLimiter),
		idleTimeout:  10 * time.Minute,
		lastCleanup:  time.Now(),
		now:          time.Now,
	}
}

// AuthRequired accepts an HS256 bearer token issued to the operator.
func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			c.Set("operator", claims["sub"])
		}
		c.Next()
	}
}

// RateLimitPerClient keeps one token bucket per client IP.
func (m *Middleware) RateLimitPerClient(r rate.Limit, b int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.limiterFor(c.ClientIP(), r, b).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// limiterFor evicts clients idle for longer than idleTimeout.
func (m *Middleware) limiterFor(key string, r rate.Limit, b int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastCleanup) > m.idleTimeout {
		for k, cl := range m.rateLimiters {
			if now.Sub(cl.lastSeen) > m.idleTimeout {
				delete(m.rateLimiters, k)
			}
		}
		m.lastCleanup = now
	}

	cl, ok := m.rateLimiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(r, b)}
		m.rateLimiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
