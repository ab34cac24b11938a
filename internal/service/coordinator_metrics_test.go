package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/clawguard/clawguard/internal/domain/grant"
)

// gaugeValue scrapes reg for name and returns its current value, walking
// the prometheus.Registry.Gather() result as client_model metrics.
func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		metrics := mf.GetMetric()
		if len(metrics) != 1 {
			t.Fatalf("expected exactly one metric for %s, got %d", name, len(metrics))
		}
		var m *dto.Metric = metrics[0]
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestCoordinatorLiveGrantsGaugeTracksInstallAndRevoke(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := &fakeAuditStore{}
	c := NewCoordinator(store, &fakeNotifier{}, time.Second, nil, reg)

	if v := gaugeValue(t, reg, "clawguard_live_grants"); v != 0 {
		t.Fatalf("initial gauge = %v, want 0", v)
	}

	c.registry.InstallGrant(grant.Grant{Service: "github", GrantedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)})
	c.updateLiveGrantsMetric()
	if v := gaugeValue(t, reg, "clawguard_live_grants"); v != 1 {
		t.Fatalf("gauge after install = %v, want 1", v)
	}

	if !c.Revoke(context.Background(), "github") {
		t.Fatal("expected github grant to exist")
	}
	if v := gaugeValue(t, reg, "clawguard_live_grants"); v != 0 {
		t.Fatalf("gauge after revoke = %v, want 0", v)
	}
}
