package monitoring

import (
	"context"
	"testing"
)

type pingableClient struct{}

func (p *pingableClient) Ping(context.Context) error { return nil }

func TestHealthChecker_Basic(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: "healthy"} })
	status := hc.CheckHealth()
	if status.Status != "healthy" {
		t.Fatalf("expected healthy")
	}
}

func TestClickHouseNativeHealthCheck(t *testing.T) {
	// Use dummy pingable client
	res := ClickHouseNativeHealthCheck(&pingableClient{})()
	if res.Status != "healthy" {
		t.Fatalf("expected healthy")
	}
}
