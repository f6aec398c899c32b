package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/baiirun/mesa/internal/model"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}

	if err := db.Init(); err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	db.SetClock(func() time.Time { return testNow })

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, username string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		ID:           model.GenerateID(),
		Username:     username,
		FullName:     strings.ToUpper(username[:1]) + username[1:],
		Departments:  []string{"Facturación"},
		Role:         role,
		PasswordHash: "hash",
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return u
}

func createTestRequest(t *testing.T, db *DB, title string, requester *model.User, createdAt time.Time) *model.Request {
	t.Helper()
	r := &model.Request{
		ID:            model.GenerateID(),
		Title:         title,
		Description:   "description of " + title,
		Priority:      model.PriorityMedium,
		Type:          model.TypeSupport,
		Channel:       model.ChannelSystem,
		Department:    requester.PrimaryDepartment(),
		Status:        model.StatusPending,
		RequesterID:   requester.ID,
		RequesterName: requester.FullName,
		RequestedAt:   createdAt,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		StateHistory: []model.StateEvent{{
			To: model.StatusPending, At: createdAt, ByUserID: requester.ID, ByUserName: requester.FullName,
		}},
	}
	if err := db.CreateRequest(context.Background(), r); err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	return r
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	// Should create parent directories
	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		t.Error("expected directory to be created")
	}
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("failed to get default path: %v", err)
	}

	if !filepath.IsAbs(path) {
		t.Errorf("expected absolute path, got %q", path)
	}

	if !strings.HasSuffix(path, filepath.Join(".mesa", "mesa.db")) {
		t.Errorf("expected path to end with .mesa/mesa.db, got %q", path)
	}
}

func TestInit_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Init(); err != nil {
		t.Fatalf("second init failed: %v", err)
	}
}

func TestUsers_CRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	u := createTestUser(t, db, "carlos", model.RoleEmployee)

	got, err := db.GetUserByUsername(ctx, "carlos")
	if err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	if got.ID != u.ID || got.Role != model.RoleEmployee {
		t.Errorf("unexpected user: %+v", got)
	}
	if len(got.Departments) != 1 || got.Departments[0] != "Facturación" {
		t.Errorf("expected departments to round-trip, got %v", got.Departments)
	}

	got.FullName = "Carlos López"
	got.Departments = []string{"Inventario", "Comerciales"}
	if err := db.UpdateUser(ctx, got); err != nil {
		t.Fatalf("failed to update user: %v", err)
	}
	got, _ = db.GetUser(ctx, u.ID)
	if got.FullName != "Carlos López" || len(got.Departments) != 2 {
		t.Errorf("update not persisted: %+v", got)
	}

	if err := db.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("failed to delete user: %v", err)
	}
	if _, err := db.GetUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "ana", model.RoleEmployee)

	dup := &model.User{ID: model.GenerateID(), Username: "ana", FullName: "Other", Role: model.RoleSupport,
		CreatedAt: testNow, UpdatedAt: testNow}
	if err := db.CreateUser(context.Background(), dup); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestCountOpenAssigned(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	emp := createTestUser(t, db, "emp", model.RoleEmployee)
	tech := createTestUser(t, db, "tech", model.RoleSupport)
	admin := createTestUser(t, db, "boss", model.RoleAdmin)

	r := createTestRequest(t, db, "printer", emp, testNow)
	if err := db.Assign(ctx, r.ID, Assignment{AssigneeID: tech.ID, AssigneeName: tech.FullName,
		AssignerID: admin.ID, AssignerName: admin.FullName}); err != nil {
		t.Fatalf("failed to assign: %v", err)
	}

	n, err := db.CountOpenAssigned(ctx, tech.ID)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 open assigned, got %d", n)
	}

	admins, _ := db.CountUsersByRole(ctx, model.RoleAdmin)
	if admins != 1 {
		t.Errorf("expected 1 admin, got %d", admins)
	}
}

func TestDepartments(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.EnsureDepartment(ctx, model.Department{Name: "Inventario", Active: true}); err != nil {
		t.Fatalf("failed to ensure: %v", err)
	}
	// Second ensure is a no-op
	if err := db.EnsureDepartment(ctx, model.Department{Name: "Inventario", Description: "x", Active: false}); err != nil {
		t.Fatalf("failed to ensure twice: %v", err)
	}
	depts, _ := db.ListDepartments(ctx)
	if len(depts) != 1 || !depts[0].Active {
		t.Errorf("unexpected departments: %+v", depts)
	}

	err := db.ReplaceDepartments(ctx, []model.Department{
		{Name: "Directivos", Active: true},
		{Name: "Comerciales", Active: false},
	})
	if err != nil {
		t.Fatalf("failed to replace: %v", err)
	}
	depts, _ = db.ListDepartments(ctx)
	if len(depts) != 2 || depts[0].Name != "Comerciales" || depts[0].Active {
		t.Errorf("unexpected departments after replace: %+v", depts)
	}
}

func TestSettings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var opts model.RequestOptions
	if err := db.GetSetting(ctx, "request_options", &opts); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	want := model.RequestOptions{Categories: []string{"Hardware"}, SLAHoursByPriority: map[string]int{"Alta": 8}}
	if err := db.PutSetting(ctx, "request_options", want); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	want.Categories = []string{"Software"}
	if err := db.PutSetting(ctx, "request_options", want); err != nil {
		t.Fatalf("failed to overwrite: %v", err)
	}
	if err := db.GetSetting(ctx, "request_options", &opts); err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if len(opts.Categories) != 1 || opts.Categories[0] != "Software" || opts.SLAHoursByPriority["Alta"] != 8 {
		t.Errorf("unexpected options: %+v", opts)
	}
}

func TestFailedLogins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := db.RecordFailedLogin(ctx, "admin|127.0.0.1", 15*time.Minute); err != nil {
			t.Fatalf("failed to record: %v", err)
		}
	}
	n, err := db.CountFailedLogins(ctx, "admin|127.0.0.1", testNow.Add(-time.Minute))
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 failures, got %d", n)
	}
	if n, _ := db.CountFailedLogins(ctx, "other|127.0.0.1", testNow.Add(-time.Minute)); n != 0 {
		t.Errorf("expected keys to be independent, got %d", n)
	}

	db.SetClock(func() time.Time { return testNow.Add(16 * time.Minute) })
	pruned, err := db.PruneFailedLogins(ctx)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if pruned != 3 {
		t.Errorf("expected 3 pruned, got %d", pruned)
	}
}
