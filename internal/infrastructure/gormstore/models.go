package gormstore

import (
	"time"

	domhold "github.com/flashmart/reservation/internal/domain/hold"
	dominv "github.com/flashmart/reservation/internal/domain/inventory"
	domorder "github.com/flashmart/reservation/internal/domain/order"
	domwebhook "github.com/flashmart/reservation/internal/domain/webhook"
)

type ProductModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255"`
	Price     int64
	Available int
	UpdatedAt time.Time
}

func (ProductModel) TableName() string { return "products" }

type HoldModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	ProductID string `gorm:"size:64;index"`
	Quantity  int
	Consumed  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (HoldModel) TableName() string { return "holds" }

type OrderModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	HoldID    string `gorm:"size:64;uniqueIndex"`
	Status    string `gorm:"size:32"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (OrderModel) TableName() string { return "orders" }

type WebhookModel struct {
	IdempotencyKey string `gorm:"primaryKey;size:128"`
	OrderID        string `gorm:"size:64;index"`
	Outcome        string `gorm:"size:16"`
	Processed      string `gorm:"size:16;index"`
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
}

func (WebhookModel) TableName() string { return "payment_webhooks" }

func toProductModel(p *dominv.Product) *ProductModel {
	return &ProductModel{ID: p.ID, Name: p.Name, Price: p.Price, Available: p.Available, UpdatedAt: p.UpdatedAt}
}

func toDomainProduct(m *ProductModel) *dominv.Product {
	return &dominv.Product{ID: m.ID, Name: m.Name, Price: m.Price, Available: m.Available, UpdatedAt: m.UpdatedAt}
}

func toHoldModel(h *domhold.Hold) *HoldModel {
	return &HoldModel{ID: h.ID, ProductID: h.ProductID, Quantity: h.Quantity, Consumed: h.Consumed, CreatedAt: h.CreatedAt, ExpiresAt: h.ExpiresAt}
}

func toDomainHold(m *HoldModel) *domhold.Hold {
	return &domhold.Hold{ID: m.ID, ProductID: m.ProductID, Quantity: m.Quantity, Consumed: m.Consumed, CreatedAt: m.CreatedAt, ExpiresAt: m.ExpiresAt}
}

func toOrderModel(o *domorder.Order) *OrderModel {
	return &OrderModel{ID: o.ID, HoldID: o.HoldID, Status: string(o.Status), CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt}
}

func toDomainOrder(m *OrderModel) *domorder.Order {
	return &domorder.Order{ID: m.ID, HoldID: m.HoldID, Status: domorder.Status(m.Status), CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func toWebhookModel(n *domwebhook.Notification) *WebhookModel {
	return &WebhookModel{
		IdempotencyKey: n.IdempotencyKey,
		OrderID:        n.OrderID,
		Outcome:        string(n.Outcome),
		Processed:      string(n.Processed),
		ReceivedAt:     n.ReceivedAt,
		ProcessedAt:    n.ProcessedAt,
	}
}

func toDomainWebhook(m *WebhookModel) *domwebhook.Notification {
	return &domwebhook.Notification{
		IdempotencyKey: m.IdempotencyKey,
		OrderID:        m.OrderID,
		Outcome:        domwebhook.Outcome(m.Outcome),
		Processed:      domwebhook.ProcessedState(m.Processed),
		ReceivedAt:     m.ReceivedAt,
		ProcessedAt:    m.ProcessedAt,
	}
}
