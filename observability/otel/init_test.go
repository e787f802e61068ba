package otel

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization=Bearer abc , x-tenant=lockbox,broken,=skip, ")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "lockbox",
	}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitWithoutExporters(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)

	shutdown, err := Init(context.Background(), Config{ServiceName: "lockboxd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	require.True(t, strings.Contains(Sampler(0).Description(), "AlwaysOnSampler"))
	require.True(t, strings.Contains(Sampler(0.25).Description(), "TraceIDRatioBased"))
}
