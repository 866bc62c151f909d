package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextWithHeaders(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest("POST", "/api/v1/payments/momo/ipn", nil)
	req.RemoteAddr = "10.0.0.5:4321"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"public X-Real-IP", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"private X-Real-IP falls through", map[string]string{"X-Real-IP": "10.1.1.1", "X-Forwarded-For": "198.51.100.4"}, "198.51.100.4"},
		{"first public hop", map[string]string{"X-Forwarded-For": "192.168.1.2, 198.51.100.4, 10.0.0.1"}, "198.51.100.4"},
		{"all private hops", map[string]string{"X-Forwarded-For": "192.168.1.2, 10.0.0.1"}, "192.168.1.2"},
		{"no headers", nil, "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetRealIP(contextWithHeaders(tt.headers)))
		})
	}
}

func TestDescribeClient(t *testing.T) {
	assert.Equal(t, "Unknown", DescribeClient(""))
	assert.Equal(t, "Bot", DescribeClient("Googlebot/2.1 (+http://www.google.com/bot.html)"))

	chrome := "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36"
	assert.Contains(t, DescribeClient(chrome), "Chrome/Android")
}

func TestRequestMeta(t *testing.T) {
	c := contextWithHeaders(map[string]string{
		"X-Real-IP":  "203.0.113.9",
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	})
	meta := RequestMeta(c)
	assert.Equal(t, "203.0.113.9", meta.IP)
	assert.Contains(t, meta.Client, "Chrome/Windows")
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(32)
	require.NoError(t, err)
	b, err := GenerateSecret(32)
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
