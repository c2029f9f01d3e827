package main

import (
	"context"
	"net/http"
	"testing"

	"github.com/wms-platform/fulfillment-engine/pkg/kafka"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
	"github.com/wms-platform/fulfillment-engine/pkg/metrics"
)

type fakeProducer struct{}

func (fakeProducer) PublishEvent(ctx context.Context, topic string, event *kafka.Event) error {
	return nil
}

func (fakeProducer) Close() error { return nil }

type fakeServer struct{}

func (fakeServer) ListenAndServe() error              { return http.ErrServerClosed }
func (fakeServer) Shutdown(ctx context.Context) error { return nil }

func TestWithDefaultsFillsMissingDependencies(t *testing.T) {
	deps := appDependencies{}.withDefaults()

	if deps.newMetrics == nil {
		t.Fatal("newMetrics not defaulted")
	}
	if deps.newProducer == nil {
		t.Fatal("newProducer not defaulted")
	}
	if deps.newHTTPServer == nil {
		t.Fatal("newHTTPServer not defaulted")
	}

	srv := deps.newHTTPServer(":0", http.NewServeMux())
	if _, ok := srv.(*http.Server); !ok {
		t.Fatalf("default http server type = %T", srv)
	}
}

func TestWithDefaultsKeepsProvidedDependencies(t *testing.T) {
	var metricsCalls, producerCalls, serverCalls int
	deps := appDependencies{
		newMetrics: func(cfg *metrics.Config) *metrics.Metrics {
			metricsCalls++
			return metrics.New(cfg)
		},
		newProducer: func(cfg *kafka.Config, logger *logging.Logger) eventProducer {
			producerCalls++
			return fakeProducer{}
		},
		newHTTPServer: func(addr string, handler http.Handler) httpServer {
			serverCalls++
			return fakeServer{}
		},
	}.withDefaults()

	deps.newMetrics(metrics.DefaultConfig("test"))
	deps.newProducer(&kafka.Config{}, logging.New(logging.DefaultConfig("test")))
	deps.newHTTPServer(":0", nil)

	if metricsCalls != 1 || producerCalls != 1 || serverCalls != 1 {
		t.Fatalf("provided dependencies replaced: %d/%d/%d", metricsCalls, producerCalls, serverCalls)
	}
}
