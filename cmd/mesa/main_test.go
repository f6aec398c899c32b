package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/baiirun/mesa/internal/api"
	"github.com/baiirun/mesa/internal/auth"
	"github.com/baiirun/mesa/internal/client"
	"github.com/baiirun/mesa/internal/db"
	"github.com/baiirun/mesa/internal/logging"
	"github.com/baiirun/mesa/internal/model"
	"github.com/baiirun/mesa/internal/service"
)

// run executes the root command with args, resetting the flag variables a
// previous run may have set.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	flagDB, flagServer = "", ""
	flagUsername, flagPassword, flagFullName, flagPosition = "", "", "", ""
	flagRole = string(model.RoleEmployee)
	flagLoginUser, flagLoginPassword = "", ""
	flagStatus, flagDepartment, flagType, flagQuery, flagOut = "", "", "", "", ""
	flagMongoURL, flagMongoDB = "", ""
	flagDescription, flagPriority, flagKind, flagChannel, flagTitle, flagSetDepartment = "", "", "", "", "", ""
	flagAssignee, flagNote, flagPeriod = "", "", ""
	flagLevel, flagHours = 0, 0
	flagExtended, flagYes = false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "silent")
	t.Setenv("MESA_TOKEN_PATH", filepath.Join(t.TempDir(), "token"))
}

func TestLocalCommands(t *testing.T) {
	quietEnv(t)
	path := filepath.Join(t.TempDir(), "mesa.db")

	out, err := run(t, "", "init", "--db", path)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(out, "Initialized database at "+path) {
		t.Errorf("unexpected init output: %q", out)
	}

	out, err = run(t, "", "seed", "--db", path)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if !strings.Contains(out, "Seeded demo data") {
		t.Errorf("unexpected seed output: %q", out)
	}
	out, _ = run(t, "", "seed", "--db", path)
	if !strings.Contains(out, "nothing seeded") {
		t.Errorf("expected second seed to be a no-op, got %q", out)
	}

	out, err = run(t, "", "user", "add", "--db", path, "--username", "ops", "--password", "secret1", "--role", "support")
	if err != nil {
		t.Fatalf("user add failed: %v", err)
	}
	if !strings.HasPrefix(out, "Created ops (support)") {
		t.Errorf("unexpected user add output: %q", out)
	}
	if _, err := run(t, "", "user", "add", "--db", path, "--username", "ops", "--password", "secret1"); err == nil {
		t.Error("expected duplicate username to fail")
	}

	out, err = run(t, "", "trash", "sweep", "--db", path)
	if err != nil {
		t.Fatalf("trash sweep failed: %v", err)
	}
	if !strings.Contains(out, "Purged 0 expired entries") {
		t.Errorf("unexpected sweep output: %q", out)
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := store.Init(); err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	issuer, err := auth.NewIssuer(auth.TokenOptions{Secret: []byte("test-secret"), TTL: time.Hour})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	log := logging.Discard()
	svc := service.New(store, issuer, log, nil, service.Options{})
	if _, err := svc.Seed(context.Background()); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}
	srv, err := api.New(svc, log, nil, api.Options{LoginRate: "100-M"})
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestRemoteCommands(t *testing.T) {
	quietEnv(t)
	url := startServer(t)

	if _, err := run(t, "", "list", "--server", url); !errors.Is(err, client.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized before login, got %v", err)
	}

	// Username from the flag, password from the prompt
	out, err := run(t, "admin123\n", "login", "--server", url, "-u", "admin")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !strings.Contains(out, "Logged in as Administrador Sistema (admin)") {
		t.Errorf("unexpected login output: %q", out)
	}

	out, err = run(t, "", "list", "--server", url)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, title := range []string{"Automatizar facturación mensual", "Alertas de stock bajo", "Reporte de ventas diarias"} {
		if !strings.Contains(out, title) {
			t.Errorf("expected %q in list output:\n%s", title, out)
		}
	}

	out, err = run(t, "", "list", "--server", url, "--status", string(model.StatusFinished))
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if !strings.Contains(out, "Reporte de ventas diarias") || strings.Contains(out, "Alertas de stock bajo") {
		t.Errorf("expected only the finished request, got:\n%s", out)
	}

	file := filepath.Join(t.TempDir(), "out.xlsx")
	if _, err := run(t, "", "export", "--server", url, "-o", file); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("expected an xlsx (zip) file")
	}

	if _, err := run(t, "", "logout"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := run(t, "", "list", "--server", url); !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized after logout, got %v", err)
	}
}

// login runs "mesa login" as the seeded admin against url.
func login(t *testing.T, url string) {
	t.Helper()
	if _, err := run(t, "", "login", "--server", url, "-u", "admin", "-p", "admin123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func TestRequestCommands(t *testing.T) {
	quietEnv(t)
	url := startServer(t)
	login(t, url)

	out, err := run(t, "", "new", "--server", url, "Impresora sin tóner", "--priority", "Alta", "-d", "Piso 2")
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	if !strings.HasPrefix(out, "Created ") {
		t.Fatalf("unexpected new output: %q", out)
	}
	id := strings.Fields(out)[1]
	// The list is refetched after the create
	for _, title := range []string{"Impresora sin tóner", "Alertas de stock bajo"} {
		if !strings.Contains(out, title) {
			t.Errorf("expected %q in the refreshed list:\n%s", title, out)
		}
	}

	out, err = run(t, "", "classify", "--server", url, id, "--level", "2", "--priority", "Baja")
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if out != "Classified "+id+": level 2, Baja\n" {
		t.Errorf("unexpected classify output: %q", out)
	}

	out, err = run(t, "", "assign", "--server", url, id, "--to", "soporte1", "--hours", "3")
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if out != "Assigned "+id+" to Juan Pérez\n" {
		t.Errorf("unexpected assign output: %q", out)
	}
	if _, err := run(t, "", "assign", "--server", url, id, "--to", "nadie"); err == nil || !strings.Contains(err.Error(), `no user named "nadie"`) {
		t.Errorf("expected unknown assignee error, got %v", err)
	}

	if _, err := run(t, "", "edit", "--server", url, id); err == nil || err.Error() != "nothing to change" {
		t.Errorf("expected nothing to change, got %v", err)
	}
	out, err = run(t, "", "edit", "--server", url, id, "--title", "Impresora del piso 2")
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if !strings.Contains(out, `"Impresora del piso 2"`) {
		t.Errorf("unexpected edit output: %q", out)
	}

	out, err = run(t, "", "worklog", "--server", url, id, "--hours", "1.5", "--note", "cambio de tóner")
	if err != nil {
		t.Fatalf("worklog failed: %v", err)
	}
	if out != "Logged 1.50h on "+id+" (total 1.50h)\n" {
		t.Errorf("unexpected worklog output: %q", out)
	}

	out, err = run(t, "", "report", "--server", url, "--period", "weekly")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if !strings.HasPrefix(out, "Period weekly: ") || !strings.Contains(out, "Total 4 ") {
		t.Errorf("unexpected report output:\n%s", out)
	}
}

func TestTrashCommands(t *testing.T) {
	quietEnv(t)
	url := startServer(t)
	login(t, url)

	out, _ := run(t, "", "new", "--server", url, "Borrar luego")
	id := strings.Fields(out)[1]

	if _, err := run(t, "", "delete", "--server", url, id); err == nil {
		t.Error("expected delete without --yes to fail")
	}
	if out, err := run(t, "", "delete", "--server", url, id, "--yes"); err != nil || out != "Moved "+id+" to trash\n" {
		t.Fatalf("delete: out=%q err=%v", out, err)
	}

	out, err := run(t, "", "trash", "list", "--server", url)
	if err != nil {
		t.Fatalf("trash list failed: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "Borrar luego") || !strings.Contains(out, "Administrador Sistema") {
		t.Errorf("unexpected trash listing:\n%s", out)
	}

	if out, err := run(t, "", "trash", "restore", "--server", url, id); err != nil || !strings.HasPrefix(out, "Restored "+id) {
		t.Fatalf("restore: out=%q err=%v", out, err)
	}
	if out, _ := run(t, "", "trash", "list", "--server", url); out != "Trash is empty\n" {
		t.Errorf("expected an empty trash after restore, got %q", out)
	}

	_, _ = run(t, "", "delete", "--server", url, id, "--yes")
	if _, err := run(t, "", "trash", "purge", "--server", url, id); err == nil {
		t.Error("expected purge without --yes to fail")
	}
	if out, err := run(t, "", "trash", "purge", "--server", url, id, "--yes"); err != nil || out != "Purged "+id+"\n" {
		t.Fatalf("purge: out=%q err=%v", out, err)
	}
	var apiErr *client.APIError
	if _, err := run(t, "", "trash", "restore", "--server", url, id); !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Errorf("expected 404 restoring a purged request, got %v", err)
	}

	if out, err := run(t, "", "trash", "empty", "--server", url, "--yes"); err != nil || out != "Purged 0 entries\n" {
		t.Errorf("empty: out=%q err=%v", out, err)
	}
}

func TestUserCommands(t *testing.T) {
	quietEnv(t)
	url := startServer(t)
	login(t, url)

	out, err := run(t, "", "user", "list", "--server", url)
	if err != nil {
		t.Fatalf("user list failed: %v", err)
	}
	if !strings.Contains(out, "soporte2") || !strings.Contains(out, "María González") {
		t.Errorf("unexpected user list:\n%s", out)
	}

	if out, err := run(t, "", "user", "role", "--server", url, "soporte2", "employee"); err != nil || out != "soporte2 is now employee\n" {
		t.Errorf("role: out=%q err=%v", out, err)
	}
	if out, err := run(t, "", "user", "delete", "--server", url, "soporte2"); err != nil || out != "Deleted soporte2\n" {
		t.Errorf("delete: out=%q err=%v", out, err)
	}
	if _, err := run(t, "", "user", "delete", "--server", url, "soporte2"); err == nil || !strings.Contains(err.Error(), "no user named") {
		t.Errorf("expected a missing user error, got %v", err)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	quietEnv(t)
	url := startServer(t)

	_, err := run(t, "", "login", "--server", url, "-u", "admin", "-p", "wrong")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Fatalf("expected a 401 APIError, got %v", err)
	}

	_, err = run(t, "", "login", "--server", url, "-u", "admin")
	if err == nil || !strings.Contains(err.Error(), "password is required") {
		t.Errorf("expected missing password error, got %v", err)
	}
}

func TestPrintRequests(t *testing.T) {
	now := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	name := "Juan Pérez"
	reqs := []model.Request{
		{ID: "a1", Title: "Factura", Status: model.StatusPending, Priority: model.PriorityHigh,
			RequesterName: "Carlos", CreatedAt: now.Add(-30 * time.Minute)},
		{ID: "b2", Title: "Stock", Status: model.StatusInProgress, Priority: model.PriorityLow,
			RequesterName: "Ana", AssignedToName: &name, CreatedAt: now.Add(-72 * time.Hour)},
	}

	var buf bytes.Buffer
	printRequests(&buf, reqs, now)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasSuffix(lines[1], "30m") || !strings.Contains(lines[1], " - ") {
		t.Errorf("unexpected first row: %q", lines[1])
	}
	if !strings.Contains(lines[2], "Juan Pérez") || !strings.HasSuffix(lines[2], "3d") {
		t.Errorf("unexpected second row: %q", lines[2])
	}

	buf.Reset()
	printRequests(&buf, nil, now)
	if buf.String() != "No requests\n" {
		t.Errorf("unexpected empty output: %q", buf.String())
	}
}

func TestAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{47 * time.Hour, "47h"},
		{49 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := age(tt.d); got != tt.want {
			t.Errorf("age(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
