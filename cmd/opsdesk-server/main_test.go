package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carewise/opsdesk/internal/config"
	"github.com/carewise/opsdesk/internal/domain/complaint"
	"github.com/carewise/opsdesk/internal/platform/db"
	"github.com/carewise/opsdesk/internal/platform/notification"
)

func TestLoadRouter_Defaults(t *testing.T) {
	r, err := loadRouter("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := r.Resolve(complaint.LevelCEO); !ok || got != "ceo" {
		t.Errorf("expected built-in CEO route, got %q", got)
	}
}

func TestLoadRouter_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	if err := os.WriteFile(path, []byte("escalation:\n  GM: gm-office\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := loadRouter(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := r.Resolve(complaint.LevelGM); got != "gm-office" {
		t.Errorf("expected gm-office, got %q", got)
	}
	if _, ok := r.Resolve(complaint.LevelCEO); ok {
		t.Error("expected CEO to be unrouted when the file omits it")
	}
}

func TestRoutesFileInRepoLoads(t *testing.T) {
	if _, err := loadRouter(filepath.Join("..", "..", "config", "escalation_routes.yaml")); err != nil {
		t.Fatalf("shipped routing table does not load: %v", err)
	}
}

func TestPrintRoutes(t *testing.T) {
	r, _ := loadRouter("")
	var buf bytes.Buffer
	printRoutes(&buf, "", r)

	out := buf.String()
	if !strings.Contains(out, "built-in defaults") {
		t.Errorf("expected source in output, got %q", out)
	}
	if !strings.Contains(out, "(log only)") {
		t.Errorf("expected PGRO to be marked log only, got %q", out)
	}
}

func TestBuildGateway(t *testing.T) {
	checks := map[string]db.PingFunc{}

	gw, err := buildGateway(&config.Config{PushGateway: config.GatewayNone}, nil, checks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := gw.(notification.NopGateway); !ok {
		t.Errorf("expected NopGateway, got %T", gw)
	}

	gw, err = buildGateway(&config.Config{PushGateway: config.GatewayHTTP, PushGatewayURL: "http://push.local", NotifyTimeout: time.Second}, nil, checks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := gw.(*notification.HTTPGateway); !ok {
		t.Errorf("expected HTTPGateway, got %T", gw)
	}
	if _, ok := checks["push_gateway"]; !ok {
		t.Error("expected a readiness check for the HTTP gateway")
	}

	if _, err := buildGateway(&config.Config{PushGateway: config.GatewayRedis}, nil, checks); err == nil {
		t.Error("expected error for redis gateway without a client")
	}
	if _, err := buildGateway(&config.Config{PushGateway: "fcm"}, nil, checks); err == nil {
		t.Error("expected error for unknown gateway")
	}
}

func TestOpenStore_Memory(t *testing.T) {
	checks := map[string]db.PingFunc{}
	st, err := openStore(context.Background(), &config.Config{StoreDriver: config.StoreMemory}, zerolog.Nop(), checks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer st.close()
	if _, ok := st.repo.(*complaint.MemoryRepository); !ok {
		t.Errorf("expected MemoryRepository, got %T", st.repo)
	}
	if st.pool != nil {
		t.Error("memory store has no pool")
	}
	if len(checks) != 0 {
		t.Errorf("memory store needs no readiness check, got %v", checks)
	}

	if _, err := openStore(context.Background(), &config.Config{StoreDriver: "sqlite"}, zerolog.Nop(), checks); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestRunServer_ReturnsStartupErrors(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("STORE_DRIVER", config.StoreMemory)
	t.Setenv("REDIS_URL", "")
	t.Setenv("PUSH_GATEWAY", config.GatewayNone)
	t.Setenv("AUTH_SIGNING_KEY", "")
	t.Setenv("ESCALATION_ROUTES_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	err := runServer()
	if err == nil {
		t.Fatal("expected an error for a missing routes file")
	}
	if !strings.Contains(err.Error(), "load escalation routes") {
		t.Errorf("unexpected error %v", err)
	}
}
