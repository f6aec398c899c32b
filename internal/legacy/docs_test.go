package legacy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/baiirun/mesa/internal/model"
)

var now = time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)

func decodeDoc[T any](t *testing.T, doc bson.M) T {
	t.Helper()
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var out T
	require.NoError(t, bson.Unmarshal(raw, &out))
	return out
}

func TestToUser_DepartmentShapes(t *testing.T) {
	single := toUser(decodeDoc[userDoc](t, bson.M{
		"id": "u1", "username": " carlos ", "full_name": "Carlos López",
		"department": "Facturación", "role": "employee", "password_hash": "$2b$12$abc",
	}), now)
	assert.Equal(t, "carlos", single.Username)
	assert.Equal(t, model.Departments{"Facturación"}, single.Departments)
	assert.Equal(t, now, single.CreatedAt)

	multi := toUser(decodeDoc[userDoc](t, bson.M{
		"id": "u2", "username": "ana", "department": bson.A{"Inventario", " ", "Comerciales"}, "role": "Support",
	}), now)
	assert.Equal(t, model.Departments{"Inventario", "Comerciales"}, multi.Departments)
	assert.Equal(t, model.RoleSupport, multi.Role)

	unknown := toUser(decodeDoc[userDoc](t, bson.M{"id": "u3", "username": "x", "role": "root"}), now)
	assert.Equal(t, model.RoleEmployee, unknown.Role)
	assert.Empty(t, unknown.Departments)
}

func TestToRequest_NormalizesLegacyValues(t *testing.T) {
	created := now.Add(-48 * time.Hour)
	d := decodeDoc[requestDoc](t, bson.M{
		"id": "r1", "title": "Alertas", "priority": "Urgente", "type": "Mejora",
		"channel": "Correo Electrónico", "level": 2, "status": "Completada",
		"requester_id": "u1", "requester_name": "Carlos", "department": "Inventario",
		"assigned_to": "", "estimated_hours": 4, "created_at": created,
		"state_history": bson.A{
			bson.M{"to_status": "Pendiente", "at": created, "by_user_id": "u1"},
			bson.M{"from_status": "Pendiente", "to_status": "En Progreso", "at": created.Add(time.Hour)},
		},
		"feedback":        bson.M{"rating": "up", "at": now},
		"review_evidence": bson.M{"url": "https://docs.example.com", "by": "Juan"},
	})
	r := toRequest(d, now)

	assert.Equal(t, model.StatusFinished, r.Status)
	assert.Equal(t, model.PriorityMedium, r.Priority)
	assert.Equal(t, model.TypeImprovement, r.Type)
	assert.Equal(t, model.ChannelEmail, r.Channel)
	require.NotNil(t, r.Level)
	assert.Equal(t, 2, *r.Level)
	require.NotNil(t, r.EstimatedHours)
	assert.Equal(t, 4.0, *r.EstimatedHours)
	assert.Nil(t, r.AssignedTo, "empty assignee is cleared")
	assert.Equal(t, created, r.RequestedAt)
	assert.Equal(t, created, r.UpdatedAt)

	require.Len(t, r.StateHistory, 2)
	assert.Nil(t, r.StateHistory[0].From)
	require.NotNil(t, r.StateHistory[1].From)
	assert.Equal(t, model.StatusInProgress, r.StateHistory[1].To)

	require.NotNil(t, r.Feedback)
	assert.Equal(t, model.RatingUp, r.Feedback.Rating)
	require.NotNil(t, r.ReviewEvidence)
	assert.Equal(t, "link", r.ReviewEvidence.Type)
}

func TestToRequest_SynthesizesHistory(t *testing.T) {
	r := toRequest(decodeDoc[requestDoc](t, bson.M{
		"id": "r2", "title": "x", "status": "Cancelada", "requester_id": "u1", "level": 7,
	}), now)
	assert.Equal(t, model.StatusRejected, r.Status)
	assert.Nil(t, r.Level)
	require.Len(t, r.StateHistory, 1)
	assert.Equal(t, model.StatusRejected, r.StateHistory[0].To)
	assert.Equal(t, now, r.StateHistory[0].At)
}

func TestToTrashEntry(t *testing.T) {
	deleted := now.Add(-time.Hour)
	e := toTrashEntry(decodeDoc[trashDoc](t, bson.M{
		"request_doc": bson.M{"id": "r3", "title": "Borrada", "status": "Pendiente"},
		"deleted_at":  deleted, "deleted_by_name": "Admin",
	}), now, 14*24*time.Hour)

	assert.Equal(t, "r3", e.ID)
	assert.Equal(t, "r3", e.Request.ID)
	assert.Equal(t, deleted.Add(14*24*time.Hour), e.ExpiresAt)
}

func TestToWorklog(t *testing.T) {
	names := map[string]string{"u5": "Juan Pérez"}
	w := toWorklog(decodeDoc[worklogDoc](t, bson.M{
		"id": "w1", "ticket_id": "r1", "user_id": "u5", "fecha": "2025-03-10",
		"horas": 1.5, "nota": "  ", "created_at": now,
	}), names, now)
	assert.Equal(t, "Juan Pérez", w.UserName)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), w.LoggedAt)
	assert.Nil(t, w.Note)

	logged := now.Add(-24 * time.Hour)
	w = toWorklog(decodeDoc[worklogDoc](t, bson.M{"ticket_id": "r1", "fecha": logged, "horas": 2}), names, now)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, logged, w.LoggedAt)
}

func TestToDepartment(t *testing.T) {
	d := toDepartment(decodeDoc[departmentDoc](t, bson.M{"name": " Inventario "}))
	assert.Equal(t, model.Department{Name: "Inventario", Active: true}, d)

	d = toDepartment(decodeDoc[departmentDoc](t, bson.M{"name": "Old", "is_active": false}))
	assert.False(t, d.Active)
}
