package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
	ua "github.com/mssola/user_agent"
	"github.com/travyy/tour-booking-backend/internal/models"
)

var privateRanges = func() []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		_, subnet, _ := net.ParseCIDR(cidr)
		nets = append(nets, subnet)
	}
	return nets
}()

// GetRealIP returns the client address behind reverse proxies.
// X-Real-IP wins when public, then the first public X-Forwarded-For hop,
// then the first hop, then Gin's ClientIP.
func GetRealIP(c *gin.Context) string {
	if realIP := strings.TrimSpace(c.Request.Header.Get("X-Real-IP")); realIP != "" {
		if ip := net.ParseIP(realIP); ip != nil && !isPrivateIP(ip) {
			return realIP
		}
	}

	if forwarded := c.Request.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for _, hop := range hops {
			hop = strings.TrimSpace(hop)
			ip := net.ParseIP(hop)
			if ip != nil && !isPrivateIP(ip) && !ip.IsLoopback() {
				return hop
			}
		}
		if first := strings.TrimSpace(hops[0]); net.ParseIP(first) != nil {
			return first
		}
	}

	return c.ClientIP()
}

// GetUserAgent extracts the User-Agent header from the request
func GetUserAgent(c *gin.Context) string {
	agent := c.Request.UserAgent()
	if agent == "" {
		return "Unknown"
	}
	return agent
}

// DescribeClient summarizes a User-Agent as "Browser/OS", e.g. "Chrome/Android 14"
func DescribeClient(userAgent string) string {
	if userAgent == "" || userAgent == "Unknown" {
		return "Unknown"
	}
	parser := ua.New(userAgent)
	if parser.Bot() {
		return "Bot"
	}

	browser, _ := parser.Browser()
	if browser == "" {
		browser = "Other"
	}
	osInfo := parser.OSInfo()
	osName := strings.TrimSpace(osInfo.Name + " " + osInfo.Version)
	if osName == "" {
		osName = "Unknown"
	}
	return browser + "/" + osName
}

// RequestMeta collects client metadata for the payment audit trail
func RequestMeta(c *gin.Context) models.RequestMeta {
	agent := GetUserAgent(c)
	return models.RequestMeta{
		IP:        GetRealIP(c),
		UserAgent: agent,
		Client:    DescribeClient(agent),
	}
}

func isPrivateIP(ip net.IP) bool {
	for _, subnet := range privateRanges {
		if subnet.Contains(ip) {
			return true
		}
	}
	return false
}
