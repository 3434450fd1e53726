package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointInstallsNoopProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	tr := Tracer("test")
	_, span := tr.Start(context.Background(), "op")
	require.False(t, span.SpanContext().IsValid())
	span.End()
}
