package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("operation", "activate"),
		attribute.String("domain", "example.com"),
		attribute.String("license_key", "ABCD1234"),
		attribute.String("outcome", "ok"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "domain" || attr.Key == "license_key" {
			t.Fatalf("high-cardinality label %q leaked", attr.Key)
		}
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.RecordLicenseOperation(context.Background(), "validate", "ok")
	m.RecordGuardDecision(context.Background(), "denied")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "licensor"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordActivation(context.Background(), "created")
	m.RecordUpload(context.Background(), "uploaded")
}
