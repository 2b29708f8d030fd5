package otel

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "marketd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if Tracer() == nil {
		t.Fatalf("tracer should never be nil")
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer abc , ,bad, =x,team=data")
	if len(headers) != 2 {
		t.Fatalf("unexpected headers: %v", headers)
	}
	if headers["authorization"] != "Bearer abc" || headers["team"] != "data" {
		t.Fatalf("unexpected headers: %v", headers)
	}
}

func TestResourceDescribesNode(t *testing.T) {
	res, err := Resource(Config{
		ServiceName:    "marketd",
		ServiceVersion: "1.2.0",
		Environment:    "staging",
		InstanceID:     "node-a",
		StorageBackend: "leveldb",
		IndexDriver:    "postgres",
	})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	set := res.Set()
	want := map[string]string{
		"service.name":               "marketd",
		"service.version":            "1.2.0",
		"service.instance.id":        "node-a",
		"deployment.environment":     "staging",
		"datamarket.storage.backend": "leveldb",
		"datamarket.index.driver":    "postgres",
	}
	for key, value := range want {
		got, ok := set.Value(attribute.Key(key))
		if !ok || got.AsString() != value {
			t.Fatalf("attribute %s: got %q (present %v), want %q", key, got.AsString(), ok, value)
		}
	}
}

func TestResourceGeneratesInstanceID(t *testing.T) {
	first, err := Resource(Config{ServiceName: "marketd"})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	second, err := Resource(Config{ServiceName: "marketd"})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	a, _ := first.Set().Value("service.instance.id")
	b, _ := second.Set().Value("service.instance.id")
	if a.AsString() == "" || a.AsString() == b.AsString() {
		t.Fatalf("expected distinct instance ids, got %q and %q", a.AsString(), b.AsString())
	}
	if _, ok := first.Set().Value(AttrStorageBackend); ok {
		t.Fatalf("storage backend should be omitted when unset")
	}
}

func TestSamplerRatio(t *testing.T) {
	if desc := sampler(0).Description(); !strings.Contains(desc, "AlwaysOnSampler") {
		t.Fatalf("zero ratio should keep every span: %s", desc)
	}
	if desc := sampler(1.5).Description(); !strings.Contains(desc, "AlwaysOnSampler") {
		t.Fatalf("ratio above one should keep every span: %s", desc)
	}
	if desc := sampler(0.25).Description(); !strings.Contains(desc, "TraceIDRatioBased{0.25}") {
		t.Fatalf("unexpected sampler: %s", desc)
	}
}
