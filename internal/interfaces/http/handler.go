package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"

	"wa_relay/internal/usecases"
)

const serviceName = "WhatsApp AI Relay"

// ConnectionState is the read-only view of the WhatsApp session.
type ConnectionState interface {
	IsConnected() bool
	PairingChallenge() string
}

type Handler struct {
	conn ConnectionState
}

func NewHandler(conn ConnectionState) *Handler {
	return &Handler{conn: conn}
}

type RouterConfig struct {
	// Auth protects the pairing endpoint when set.
	Auth      *usecases.AuthUsecase
	JWTSecret string
	Gatherer  prometheus.Gatherer
}

func SetupRoutes(r *gin.Engine, conn ConnectionState, cfg RouterConfig) {
	h := NewHandler(conn)
	mw := NewMiddleware(cfg.JWTSecret)

	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20))

	r.GET("/", h.Status)
	r.GET("/health", h.Health)

	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	limited := r.Group("/", mw.RateLimitPerClient(rate.Limit(1), 5))
	if cfg.Auth != nil {
		limited.POST("/api/auth/login", func(c *gin.Context) {
			var req struct {
				Username string `json:"username" binding:"required"`
				Password string `json:"password" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := cfg.Auth.Login(req.Username, req.Password)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
		limited.GET("/qr", mw.AuthRequired(), h.GetQRCode)
	} else {
		limited.GET("/qr", h.GetQRCode)
	}
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "running",
		"service":   serviceName,
		"connected": h.conn.IsConnected(),
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"connected": h.conn.IsConnected(),
	})
}

// GetQRCode renders the pending pairing challenge as a PNG.
func (h *Handler) GetQRCode(c *gin.Context) {
	if h.conn.IsConnected() {
		c.Status(http.StatusNoContent)
		return
	}
	code := h.conn.PairingChallenge()
	if code == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "QR code not available yet, retry in a few seconds"})
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate QR image"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
