package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"billing-service/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := logger.ContextWithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", logger.RequestIDFromContext(ctx))
	assert.Equal(t, "", logger.RequestIDFromContext(context.Background()))
}

func TestForContext_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	base := zap.New(zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.InfoLevel))

	ctx := logger.ContextWithRequestID(context.Background(), "req-7")
	logger.ForContext(ctx, base).Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-7", line[logger.RequestIDField])
}

func TestForContext_NilBase(t *testing.T) {
	assert.NotNil(t, logger.ForContext(context.Background(), nil))
}

func TestBuild_TeesIntoWriter(t *testing.T) {
	var buf bytes.Buffer
	l := logger.Build("production", &buf)
	l.Info("shipped", zap.String("k", "v"))
	_ = l.Sync()

	assert.Contains(t, buf.String(), `"msg":"shipped"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}
