package main

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/modulith/modulith/internal/audit"
	"github.com/modulith/modulith/internal/auth"
	"github.com/modulith/modulith/internal/config"
	"github.com/modulith/modulith/internal/db"
	"github.com/modulith/modulith/internal/domain"
	"github.com/modulith/modulith/internal/records"
	"github.com/modulith/modulith/internal/repository"
	"github.com/modulith/modulith/internal/schema"
)

// Seeds a demo tenant with the lifecycle modules (lead, client, quotation,
// order, invoice), activates them, and registers a sample follow-up workflow.
func main() {
	ctx := context.Background()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	tenantRepo := repository.NewTenantRepository(conn.Pool)
	moduleConfigRepo := repository.NewModuleConfigRepository(conn.Pool)
	recordRepo := repository.NewRecordRepository(conn.Pool)
	activityRepo := repository.NewActivityRepository(conn.Pool)
	workflowRepo := repository.NewWorkflowRepository(conn.Pool)

	tenant, err := tenantRepo.GetByName(ctx, "demo")
	if err != nil {
		tenant, err = tenantRepo.Create(ctx, domain.NewTenant("demo", "trial"))
		if err != nil {
			log.Fatalf("Failed to create demo tenant: %v", err)
		}
		log.Printf("Created demo tenant %s", tenant.ID)
	} else {
		log.Printf("Reusing demo tenant %s", tenant.ID)
	}

	admin := auth.Actor{TenantID: tenant.ID, ID: uuid.New(), Role: auth.RoleAdmin}
	registry := schema.NewRegistry(moduleConfigRepo)
	recordService := records.NewService(registry, recordRepo, activityRepo, audit.NewLogEmitter())

	for _, module := range demoModules(tenant.ID) {
		saved, err := registry.Save(ctx, admin, module)
		if err != nil {
			log.Fatalf("Failed to save module %s: %v", module.Name, err)
		}
		if _, err := registry.Transition(ctx, admin, tenant.ID, saved.ID, domain.ModuleStatusReview); err != nil {
			log.Fatalf("Failed to move module %s to review: %v", module.Name, err)
		}
		if _, err := registry.Transition(ctx, admin, tenant.ID, saved.ID, domain.ModuleStatusActive); err != nil {
			log.Fatalf("Failed to activate module %s: %v", module.Name, err)
		}
		log.Printf("Activated module %s version %s", saved.Name, saved.Version)
	}

	workflow := domain.NewWorkflow(tenant.ID, "lead", "Notify on qualified lead",
		domain.Trigger{Type: domain.TriggerOnStatusChange},
		[]domain.WorkflowAction{
			{Type: domain.ActionNotification, Config: map[string]any{
				"target":  "sales-team",
				"message": "A lead moved to Qualified",
			}},
		}).
		WithConditions(&domain.ConditionGroup{
			Logic: domain.LogicAnd,
			Rules: []domain.WorkflowRule{
				{Field: "status", Operator: domain.OperatorEquals, Value: "Qualified"},
			},
		}).
		WithPriority(10)
	if _, err := workflowRepo.Create(ctx, workflow); err != nil {
		log.Fatalf("Failed to create sample workflow: %v", err)
	}

	lead, err := recordService.Create(ctx, admin, "lead", map[string]any{
		"name":   "Acme Industries",
		"email":  "hello@acme.example",
		"phone":  "+44 20 7946 0000",
		"source": "referral",
	})
	if err != nil {
		log.Fatalf("Failed to create sample lead: %v", err)
	}
	log.Printf("Created sample lead %s", lead.ID)

	log.Println("Seed complete")
}

func demoModules(tenantID uuid.UUID) []domain.ModuleConfig {
	maxDiscount := 40.0

	lead := domain.NewModuleConfig(tenantID, "lead", "Leads", []domain.FieldDefinition{
		{Name: "name", Label: "Company Name", DataType: domain.FieldTypeText, Required: true},
		{Name: "email", Label: "Email", DataType: domain.FieldTypeText, UIType: "email", Unique: true},
		{Name: "phone", Label: "Phone", DataType: domain.FieldTypeText, UIType: "phone"},
		{Name: "source", Label: "Lead Source", DataType: domain.FieldTypePicklist, UIType: "select",
			Config: &domain.FieldConfig{Options: []string{"web", "referral", "event", "cold-call"}}},
	})
	lead.Statuses = []string{"New", "Contacted", "Qualified", "Converted", "Lost"}
	lead.InitialStatus = "New"

	client := domain.NewModuleConfig(tenantID, "client", "Clients", []domain.FieldDefinition{
		{Name: "companyName", Label: "Company Name", DataType: domain.FieldTypeText, Required: true},
		{Name: "email", Label: "Email", DataType: domain.FieldTypeText, UIType: "email"},
		{Name: "phone", Label: "Phone", DataType: domain.FieldTypeText, UIType: "phone"},
		{Name: "leadSource", Label: "Lead Source", DataType: domain.FieldTypeText},
	})
	client.Statuses = []string{"Active", "Dormant"}
	client.InitialStatus = "Active"

	quotation := domain.NewModuleConfig(tenantID, "quotation", "Quotations", []domain.FieldDefinition{
		{Name: "clientName", Label: "Client", DataType: domain.FieldTypeText, Required: true},
		{Name: "total", Label: "Total", DataType: domain.FieldTypeCurrency, Required: true},
		{Name: "currency", Label: "Currency", DataType: domain.FieldTypePicklist, UIType: "select",
			Config: &domain.FieldConfig{Options: []string{"GBP", "EUR", "USD"}}},
		{Name: "discountPercent", Label: "Discount %", DataType: domain.FieldTypeNumber,
			Config: &domain.FieldConfig{MaxValue: &maxDiscount}},
	})
	quotation.Statuses = []string{"Draft", "Sent", "Accepted", "Ordered", "Rejected"}
	quotation.InitialStatus = "Draft"

	order := domain.NewModuleConfig(tenantID, "order", "Orders", []domain.FieldDefinition{
		{Name: "clientName", Label: "Client", DataType: domain.FieldTypeText, Required: true},
		{Name: "total", Label: "Total", DataType: domain.FieldTypeCurrency, Required: true},
		{Name: "currency", Label: "Currency", DataType: domain.FieldTypeText},
	})
	order.Statuses = []string{"New", "Fulfilled", "Invoiced", "Cancelled"}
	order.InitialStatus = "New"

	invoice := domain.NewModuleConfig(tenantID, "invoice", "Invoices", []domain.FieldDefinition{
		{Name: "clientName", Label: "Client", DataType: domain.FieldTypeText, Required: true},
		{Name: "amount", Label: "Amount", DataType: domain.FieldTypeCurrency, Required: true},
		{Name: "currency", Label: "Currency", DataType: domain.FieldTypeText},
		{Name: "dueDate", Label: "Due Date", DataType: domain.FieldTypeDate},
	})
	invoice.Statuses = []string{"Draft", "Issued", "Paid", "Overdue"}
	invoice.InitialStatus = "Draft"

	return []domain.ModuleConfig{lead, client, quotation, order, invoice}
}
