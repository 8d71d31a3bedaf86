package monitor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/LeonardoBeccarini/hydro_monitor/pkg/wsconn"
)

type probe bool

func (p probe) IsConnected() bool { return bool(p) }

type errAge time.Duration

func (a errAge) LastErrorAge() time.Duration { return time.Duration(a) }

func healthStatus(t *testing.T, h http.Handler) map[string]any {
	t.Helper()
	rec := serve(t, h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthStatus(t *testing.T) {
	st := healthStatus(t, NewHealthHandler(probe(true), probe(true), errAge(time.Hour)))
	assert.Equal(t, "ok", st["status"])

	st = healthStatus(t, NewHealthHandler(probe(true), nil, nil))
	assert.Equal(t, "ok", st["status"])
	assert.NotContains(t, st, "mqtt_connected")

	st = healthStatus(t, NewHealthHandler(probe(true), probe(true), errAge(time.Second)))
	assert.Equal(t, "degraded", st["status"], "recent write error")

	st = healthStatus(t, NewHealthHandler(probe(false), probe(false), nil))
	assert.Equal(t, "down", st["status"])
}

func TestReadyz(t *testing.T) {
	rec := serve(t, NewReadyHandler(probe(false)), http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ready":false}`, rec.Body.String())

	rec = serve(t, NewReadyHandler(probe(true)), http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGRPCHealthFollowsStreamState(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	g := NewGRPCHealth(nil)
	go func() { _ = g.Serve(lis) }()
	defer g.Stop()

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer cc.Close()
	client := healthpb.NewHealthClient(cc)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthServiceName})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
	g.OnState(wsconn.StateConnected)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())
	g.OnState(wsconn.StateError)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}
