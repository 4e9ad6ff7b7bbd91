package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetRealClientIP extracts the client IP behind the platform proxy.
// X-Real-IP wins, then the first X-Forwarded-For hop, then Gin's ClientIP.
func GetRealClientIP(c *gin.Context) string {
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}

	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	ip := c.ClientIP()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}

// ShortUserAgent trims a user agent for storage and logs.
func ShortUserAgent(ua string, max int) string {
	ua = strings.TrimSpace(ua)
	if len(ua) > max {
		return ua[:max]
	}
	return ua
}
