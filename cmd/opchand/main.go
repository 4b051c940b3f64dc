// Command opchand is an example composition root for the core library: it
// loads a yaml config, opens the durable stores, selects a transport, and
// wires everything through client.Open. It mirrors the teacher's cmd/api and
// cmd/gateway entry points (env-var-overridable config path, otel trace
// provider setup, prometheus /metrics endpoint) but has no HTTP API surface
// of its own — the library's operations are a direct Go API, not a wire
// protocol, so this binary's only job is process lifecycle.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"

	"github.com/opchan/core/client"
	opconfig "github.com/opchan/core/config"
	"github.com/opchan/core/delegation"
	"github.com/opchan/core/replica"
	"github.com/opchan/core/transport"
	"github.com/opchan/core/transport/memtransport"
	"github.com/opchan/core/transport/redispubsub"
)

func main() {
	cfg := opconfig.Config{}
	cfgPath := os.Getenv("OPCHAN_CONFIG")
	if cfgPath == "" {
		cfgPath = "/etc/opchan/config.yaml"
	}
	if err := cfg.Load(cfgPath); err != nil {
		log.Fatal(err)
	}

	log.Print("opchan starting! node: ", cfg.Node.Name)

	if cfg.Node.TraceEndpoint != "" {
		cleanup, err := setupTraceProvider(cfg.Node.TraceEndpoint, cfg.Node.Name)
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()
	}

	durable, err := replica.OpenBoltStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("failed to open durable store: ", err)
	}
	defer durable.Close()

	delegationStore, err := delegation.NewBoltStore(durable.DB())
	if err != nil {
		log.Fatal("failed to open delegation store: ", err)
	}

	tport := buildTransport(cfg.Transport)

	c, err := client.Open(context.Background(), client.Config{
		DurableStore: durable,
		DelegationDB: delegationStore,
		Transport:    tport,
	})
	if err != nil {
		log.Fatal("failed to open client: ", err)
	}
	defer c.Close()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		log.Print(http.ListenAndServe(":8090", nil))
	}()

	log.Print("opchan ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Print("shutting down")
}

// buildTransport selects the reference transport named in config. An empty
// or unrecognized mode falls back to the in-memory bus, which is always
// usable and needs no external service.
func buildTransport(cfg opconfig.Transport) transport.Transport {
	switch cfg.Mode {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})
		channel := cfg.Channel
		if channel == "" {
			channel = "opchan"
		}
		return redispubsub.New(rdb, channel)
	default:
		return memtransport.New(memtransport.NewBus())
	}
}

// setupTraceProvider wires an OTLP HTTP exporter, matching the teacher's
// cmd/gateway.setupTraceProvider.
func setupTraceProvider(endpoint, serviceName string) (func(), error) {
	exporter, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func() {
		_ = tp.Shutdown(context.Background())
	}, nil
}
