// The gateway serves the taxonomy HTTP API: selector queries over
// services and channels, value fetch/send with JSON/binary payload
// negotiation, tag mutation, and a websocket event stream.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/nathan8299/foxbox/pkg/adapters/clock"
	"github.com/nathan8299/foxbox/pkg/auth"
	"github.com/nathan8299/foxbox/pkg/eventbus"
	"github.com/nathan8299/foxbox/pkg/hardening"
	"github.com/nathan8299/foxbox/pkg/httpx"
	"github.com/nathan8299/foxbox/pkg/metrics"
	"github.com/nathan8299/foxbox/pkg/ratelimit"
	"github.com/nathan8299/foxbox/pkg/router"
	"github.com/nathan8299/foxbox/pkg/store"
	"github.com/nathan8299/foxbox/pkg/stream"
	"github.com/nathan8299/foxbox/pkg/taxonomy"
	"github.com/nathan8299/foxbox/pkg/telemetry"
)

type Server struct {
	Manager             *taxonomy.Manager
	Metrics             *metrics.Registry
	Events              *stream.Hub
	Cache               store.Cache
	Limiter             ratelimit.Limiter
	RateLimitPerMin     int
	MaxRequestBodyBytes int64
}

type tagDBCloser interface {
	store.TagDB
	Close()
}

type initTelemetryFunc func(ctx context.Context, service string) (func(context.Context) error, error)
type openDBFunc func(ctx context.Context) (tagDBCloser, error)
type openRedisFunc func(ctx context.Context) (*redis.Client, error)
type listenFunc func(server *http.Server) error

// Testable variables for main()
var (
	logFatalf       = log.Fatalf
	initTelemetryFn = telemetry.Init
	openDBFn        = func(ctx context.Context) (tagDBCloser, error) { return store.NewPostgresPool(ctx) }
	openRedisFn     = store.NewRedis
	listenFn        = func(server *http.Server) error { return server.ListenAndServe() }
)

func main() {
	if err := runGateway(initTelemetryFn, openDBFn, openRedisFn, listenFn); err != nil {
		logFatalf("gateway: %v", err)
	}
}

func runGateway(initTelemetry initTelemetryFunc, openDB openDBFunc, openRedis openRedisFunc, listen listenFunc) error {
	ctx := context.Background()
	if err := hardening.ValidateProduction(hardening.Options{
		Service:            "gateway",
		Environment:        env("APP_ENV", ""),
		StrictProdSecurity: env("STRICT_PROD_SECURITY", ""),
		AuthSecret:         env("AUTH_SECRET", ""),
		RedisAddr:          env("REDIS_ADDR", ""),
		RedisRequireTLS:    env("REDIS_REQUIRE_TLS", ""),
		RedisTLSInsecure:   env("REDIS_TLS_INSECURE", ""),
		CORSAllowedOrigins: env("CORS_ALLOWED_ORIGINS", ""),
	}); err != nil {
		return err
	}
	shutdown, err := initTelemetry(ctx, "gateway")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	hub := stream.NewHub()
	managerOpts := []taxonomy.Option{taxonomy.WithEvents(hub)}

	if env("TAG_PERSISTENCE", "false") == "true" {
		pool, err := openDB(ctx)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer pool.Close()
		tagStore := store.NewPostgresTagStore(pool)
		if err := tagStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("tag schema: %w", err)
		}
		managerOpts = append(managerOpts, taxonomy.WithTagStore(tagStore))
	}

	redisClient, err := openRedis(ctx)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory cache: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := store.NewCache(ctx, redisClient)

	mgr := taxonomy.NewManager(managerOpts...)
	if err := clock.Register(mgr, nil); err != nil {
		return fmt.Errorf("clock adapter: %w", err)
	}
	if err := mgr.RestoreTags(ctx); err != nil {
		log.Printf("tag restore failed, continuing with registered tags only: %v", err)
	}

	var verifier router.Verifier
	if secret := env("AUTH_SECRET", ""); secret != "" {
		verifier = &auth.HS256Verifier{Secret: secret, Revoked: cache}
	}

	if brokers := env("EVENTS_KAFKA_BROKERS", ""); brokers != "" {
		pub, err := eventbus.NewPublisher(eventbus.Config{
			Brokers: strings.Split(brokers, ","),
			Topic:   env("EVENTS_KAFKA_TOPIC", "foxbox.taxonomy.events"),
		})
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer pub.Close()
		sub := hub.Subscribe(256)
		go pub.Forward(ctx, sub, func(err error) {
			log.Printf("kafka publish: %v", err)
		})
	}

	s := &Server{
		Manager:             mgr,
		Metrics:             metrics.NewRegistry(),
		Events:              hub,
		Cache:               cache,
		Limiter:             ratelimit.NewRedis(redisClient, time.Minute),
		RateLimitPerMin:     envInt("RATE_LIMIT_PER_MIN", 0),
		MaxRequestBodyBytes: int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
	}

	addr := env("ADDR", ":8080")
	log.Printf("gateway listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.routes(verifier),
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

func (s *Server) routes(verifier router.Verifier) http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.RequestIDMiddleware)
	r.Use(httpx.CORSMiddleware(env("CORS_ALLOWED_ORIGINS", "")))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(telemetry.HTTPMiddleware("gateway"))
	r.Use(s.rateLimitMiddleware)
	r.Use(s.limitRequestBodyMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Get("/metrics", s.Metrics.Handler())
	r.Get("/metrics/prometheus", s.Metrics.PrometheusHandler())
	r.Get("/events", s.streamEvents)

	api := router.New(s.Manager, verifier, router.WithObserver(s.Metrics))
	r.Mount("/api/v1", http.StripPrefix("/api/v1", api))
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.code = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

// Hijack keeps the websocket upgrade on /events working behind the
// recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := s.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next.ServeHTTP(rec, r)
		s.Metrics.Observe(r.Method+" "+r.URL.Path, rec.code, time.Since(start))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Limiter == nil || s.RateLimitPerMin <= 0 || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			key = host
		}
		d := s.Limiter.Allow(r.Context(), key, s.RateLimitPerMin)
		if !d.Allowed {
			retry := time.Until(d.ResetAt).Seconds()
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(retry)))
			httpx.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitRequestBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.MaxRequestBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "stream unavailable")
		return
	}
	opts := &websocket.AcceptOptions{}
	if origins := splitList(env("WS_ALLOWED_ORIGINS", "")); len(origins) > 0 {
		opts.OriginPatterns = origins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := s.Events.Subscribe(64)
	s.observeSubscribers()
	defer func() {
		s.Events.Unsubscribe(sub)
		s.observeSubscribers()
	}()

	_ = wsjson.Write(ctx, conn, stream.NewEvent("ready", nil))
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

func (s *Server) observeSubscribers() {
	if s.Metrics != nil {
		s.Metrics.SetGauge("event_subscribers", float64(s.Events.Subscribers()))
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}
