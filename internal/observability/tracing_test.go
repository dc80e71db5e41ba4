package observability

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseAttributes(t *testing.T) {
	got := parseAttributes(" deployment = lab , =skipped, colony=north,flag")
	want := map[string]string{"deployment": "lab", "colony": "north", "flag": ""}
	if len(got) != len(want) {
		t.Fatalf("parseAttributes = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("parseAttributes[%q] = %q, want %q", k, got[k], v)
		}
	}
	if parseAttributes("  ") != nil {
		t.Fatalf("blank attributes should parse to nil")
	}
}

func TestResourceAttributesDescribeInstance(t *testing.T) {
	cfg := TracingConfig{
		ServiceName:  "pawnbridge",
		ListenAddr:   ":5000",
		WorldPawns:   3,
		TickInterval: 16 * time.Millisecond,
		Attributes: map[string]string{
			"zone":                   "b",
			"colony":                 "north",
			"pawnbridge.listen_addr": "spoofed",
		},
	}
	attrs := resourceAttributes(cfg, "instance-1")
	set := attribute.NewSet(attrs...)

	checks := map[attribute.Key]string{
		"service.name":        "pawnbridge",
		"service.namespace":   "pawnbridge",
		"service.instance.id": "instance-1",
		AttrListenAddr:        ":5000",
		"colony":              "north",
	}
	for key, want := range checks {
		v, ok := set.Value(key)
		if !ok || v.Emit() != want {
			t.Fatalf("%s = %q (present=%v), want %q", key, v.Emit(), ok, want)
		}
	}
	if v, _ := set.Value(AttrWorldPawns); v.AsInt64() != 3 {
		t.Fatalf("%s = %v, want 3", AttrWorldPawns, v.Emit())
	}
	if v, _ := set.Value(AttrTickPeriod); v.AsInt64() != 16 {
		t.Fatalf("%s = %v, want 16", AttrTickPeriod, v.Emit())
	}
	if n := len(attrs); n != 8 {
		t.Fatalf("len(attrs) = %d, want 8 (override dropped)", n)
	}
	if attrs[6].Key != "colony" || attrs[7].Key != "zone" {
		t.Fatalf("extra attributes not sorted: %v", attrs[6:])
	}
}

func TestTracerProviderStampsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	cfg := TracingConfig{ServiceName: "pawnbridge", SampleRatio: 1, ListenAddr: "127.0.0.1:5000"}
	tp, err := newTracerProvider(context.Background(), cfg, exp)
	if err != nil {
		t.Fatalf("newTracerProvider: %v", err)
	}

	_, span := tp.Tracer("test").Start(context.Background(), "pawnbridge.request")
	span.End()
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "pawnbridge.request" {
		t.Fatalf("spans = %v", spans)
	}
	v, ok := spans[0].Resource.Set().Value(AttrListenAddr)
	if !ok || v.AsString() != "127.0.0.1:5000" {
		t.Fatalf("span resource %s = %q, want listen address", AttrListenAddr, v.AsString())
	}
}
