package service

import (
	"context"
	"time"

	"github.com/baiirun/mesa/internal/model"
)

var seedDepartments = []model.Department{
	{Name: "Facturación", Description: "Gestión de facturación y cobros", Active: true},
	{Name: "Inventario", Description: "Control y gestión de inventarios", Active: true},
	{Name: "Inteligencia comercial", Description: "Análisis y estrategias comerciales", Active: true},
	{Name: "Comerciales", Description: "Equipo de ventas y comercial", Active: true},
	{Name: "Recursos Humanos", Description: "Gestión del personal", Active: true},
	{Name: "Directivos", Description: "Dirección y gerencia", Active: true},
	{Name: "Atención al Cliente", Description: "Servicio y soporte al cliente", Active: true},
	{Name: "Creación de Anuncios", Description: "Marketing y publicidad", Active: true},
}

var seedUsers = []UserInput{
	{Username: "admin", Password: "admin123", FullName: "Administrador Sistema",
		Departments: model.Departments{"Directivos"}, Position: "Jefe de departamento", Role: model.RoleAdmin},
	{Username: "soporte1", Password: "soporte123", FullName: "Juan Pérez",
		Departments: model.Departments{"Directivos"}, Position: "Especialista", Role: model.RoleSupport},
	{Username: "soporte2", Password: "soporte123", FullName: "María González",
		Departments: model.Departments{"Directivos"}, Position: "Especialista", Role: model.RoleSupport},
	{Username: "facturacion1", Password: "user123", FullName: "Carlos López",
		Departments: model.Departments{"Facturación"}, Position: "Jefe de departamento", Role: model.RoleEmployee},
	{Username: "inventario1", Password: "user123", FullName: "Ana Martínez",
		Departments: model.Departments{"Inventario"}, Position: "Especialista", Role: model.RoleEmployee},
	{Username: "comercial1", Password: "user123", FullName: "Pedro Sánchez",
		Departments: model.Departments{"Comerciales"}, Position: "Especialista", Role: model.RoleEmployee},
	{Username: "rrhh1", Password: "user123", FullName: "Laura Torres",
		Departments: model.Departments{"Recursos Humanos"}, Position: "Jefe de departamento", Role: model.RoleEmployee},
}

type seedRequest struct {
	title, description string
	priority           model.Priority
	status             model.Status
	typ                model.RequestType
	channel            model.Channel
	level              int
	requester          string
	assignee           string
	completedAgo       time.Duration
}

var seedRequests = []seedRequest{
	{"Automatizar facturación mensual", "Generar facturas recurrentes para contratos mensuales",
		model.PriorityHigh, model.StatusPending, model.TypeDevelopment, model.ChannelSystem, 3,
		"facturacion1", "", 0},
	{"Alertas de stock bajo", "Notificaciones cuando el inventario esté por debajo del mínimo",
		model.PriorityMedium, model.StatusInProgress, model.TypeImprovement, model.ChannelSystem, 2,
		"inventario1", "soporte1", 0},
	{"Reporte de ventas diarias", "Enviar reporte automático diario por email",
		model.PriorityMedium, model.StatusFinished, model.TypeImprovement, model.ChannelEmail, 2,
		"comercial1", "soporte2", 5 * 24 * time.Hour},
}

// Seed loads the demo departments, users and requests into an empty
// database. It does nothing and returns false once any admin exists.
func (s *Service) Seed(ctx context.Context) (bool, error) {
	admins, err := s.db.CountUsersByRole(ctx, model.RoleAdmin)
	if err != nil {
		return false, storeErr(err, "User")
	}
	if admins > 0 {
		return false, nil
	}

	for _, d := range seedDepartments {
		if err := s.db.EnsureDepartment(ctx, d); err != nil {
			return false, storeErr(err, "Department")
		}
	}

	users := map[string]*model.User{}
	for _, in := range seedUsers {
		u, err := s.createUser(ctx, in)
		if err != nil {
			return false, err
		}
		users[u.Username] = u
	}

	admin := users["admin"]
	now := s.now()
	for _, sr := range seedRequests {
		requester := users[sr.requester]
		level := sr.level
		created := now
		if sr.completedAgo > 0 {
			created = now.Add(-sr.completedAgo - 48*time.Hour)
		}
		r := &model.Request{
			ID:            model.GenerateID(),
			Title:         sr.title,
			Description:   sr.description,
			Priority:      sr.priority,
			Type:          sr.typ,
			Channel:       sr.channel,
			Department:    requester.PrimaryDepartment(),
			Level:         &level,
			Status:        sr.status,
			RequesterID:   requester.ID,
			RequesterName: requester.FullName,
			RequestedAt:   created,
			CreatedAt:     created,
			UpdatedAt:     now,
			StateHistory: []model.StateEvent{{
				To: sr.status, At: created, ByUserID: admin.ID, ByUserName: admin.FullName,
			}},
		}
		if sr.assignee != "" {
			a := users[sr.assignee]
			r.AssignedTo, r.AssignedToName = &a.ID, &a.FullName
			r.AssignedByID, r.AssignedByName = &admin.ID, &admin.FullName
		}
		if sr.completedAgo > 0 {
			done := now.Add(-sr.completedAgo)
			r.CompletionDate = &done
		}
		if err := s.db.CreateRequest(ctx, r); err != nil {
			return false, storeErr(err, "Request")
		}
	}
	s.log.WithField("users", len(users)).Info("Seeded demo data")
	return true, nil
}
