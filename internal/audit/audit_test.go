package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/portalgate/internal/observability/logger"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"Jane.Doe@Example.com": "j…@e….com",
		"j@x.io":               "j@x.io",
		"nobody":               "***",
		"":                     "",
		"@example.com":         "***",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskEmail(in), in)
	}
}

func TestLog_UsesRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core))

	Log(ctx, SignInRejected, Email("jane@example.com"), zap.String("reason", "allow_list_denied"))

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, "audit", e.LoggerName)
	assert.Equal(t, string(SignInRejected), e.Message)
	fields := e.ContextMap()
	assert.Equal(t, "sign_in.rejected", fields["event"])
	assert.Equal(t, "j…@e….com", fields["email"])
	assert.NotContains(t, fields["email"], "jane")
}
