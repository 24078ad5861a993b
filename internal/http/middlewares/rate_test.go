package middlewares

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/portalgate/internal/rate"
)

func mustTrusted(t *testing.T, entries ...string) TrustedProxies {
	t.Helper()
	tp, err := ParseTrustedProxies(entries)
	require.NoError(t, err)
	return tp
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	h := WithRateLimit(rate.NewMemoryLimiter(1, time.Minute), IPPathRateKey(nil))(okHandler)

	passed := 0
	for i := 0; i < 20; i++ {
		r := httptest.NewRequest(http.MethodPost, "/auth/admin/login", nil)
		r.RemoteAddr = "203.0.113.9:5555"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code == http.StatusOK {
			passed++
		} else {
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
		}
	}
	assert.Equal(t, 1, passed)
}

func TestRateLimit_TrustedProxyForwardsClients(t *testing.T) {
	trusted := mustTrusted(t, "10.0.0.0/8")
	h := WithRateLimit(rate.NewMemoryLimiter(1, time.Minute), IPPathRateKey(trusted))(okHandler)

	send := func(xff string) int {
		r := httptest.NewRequest(http.MethodPost, "/auth/admin/login", nil)
		r.RemoteAddr = "10.1.2.3:443"
		r.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	// clientes distintos detrás del mismo proxy: cupos separados
	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"))
	// el cliente no puede esconderse anteponiendo entradas propias
	assert.Equal(t, http.StatusTooManyRequests, send("1.1.1.1, 198.51.100.1"))
}

func TestClientIP(t *testing.T) {
	trusted := mustTrusted(t, "10.0.0.0/8", "192.168.1.1")

	cases := []struct {
		name   string
		remote string
		xff    []string
		want   string
	}{
		{"no proxy", "203.0.113.9:1234", nil, "203.0.113.9"},
		{"untrusted peer spoofs", "203.0.113.9:1234", []string{"1.2.3.4"}, "203.0.113.9"},
		{"trusted peer without header", "10.0.0.1:80", nil, "10.0.0.1"},
		{"trusted peer", "10.0.0.1:80", []string{"198.51.100.7"}, "198.51.100.7"},
		{"proxy chain", "192.168.1.1:80", []string{"6.6.6.6, 198.51.100.7, 10.9.9.9"}, "198.51.100.7"},
		{"split headers", "10.0.0.1:80", []string{"6.6.6.6", "198.51.100.7"}, "198.51.100.7"},
		{"garbage stops the walk", "10.0.0.1:80", []string{"6.6.6.6, junk, 10.2.2.2"}, "10.2.2.2"},
		{"remote without port", "203.0.113.9", nil, "203.0.113.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for _, v := range tc.xff {
				r.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tc.want, trusted.ClientIP(r))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	tp := mustTrusted(t, " 10.1.2.3/8 ", "", "::1")
	require.Len(t, tp, 2)
	assert.Equal(t, "10.0.0.0/8", tp[0].String())
	assert.Equal(t, "::1/128", tp[1].String())

	_, err := ParseTrustedProxies([]string{"proxy.internal"})
	require.Error(t, err)
}
