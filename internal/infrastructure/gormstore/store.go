// Package gormstore is the MySQL persistence adapter, selected by
// STORE=mysql. It implements the same repository interfaces as the
// in-memory adapter; the keyed locks in the application layer remain the
// serialization point, so every method here is a plain row operation. The
// unique index on payment_webhooks.idempotency_key backs the
// first-write-wins insert.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	domhold "github.com/flashmart/reservation/internal/domain/hold"
	dominv "github.com/flashmart/reservation/internal/domain/inventory"
	domorder "github.com/flashmart/reservation/internal/domain/order"
	domwebhook "github.com/flashmart/reservation/internal/domain/webhook"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Open connects, migrates the schema, and returns the handle.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}
	if err := db.AutoMigrate(&ProductModel{}, &HoldModel{}, &OrderModel{}, &WebhookModel{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return db, nil
}

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Get(ctx context.Context, productID string) (*dominv.Product, error) {
	var m ProductModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dominv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomainProduct(&m), nil
}

func (r *ProductRepository) Save(ctx context.Context, product *dominv.Product) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(toProductModel(product)).Error
}

type HoldRepository struct {
	db *gorm.DB
}

func NewHoldRepository(db *gorm.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

func (r *HoldRepository) Insert(ctx context.Context, h *domhold.Hold) error {
	return r.db.WithContext(ctx).Create(toHoldModel(h)).Error
}

func (r *HoldRepository) Get(ctx context.Context, id string) (*domhold.Hold, error) {
	var m HoldModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domhold.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomainHold(&m), nil
}

func (r *HoldRepository) Update(ctx context.Context, h *domhold.Hold) error {
	res := r.db.WithContext(ctx).Model(&HoldModel{}).
		Where("id = ?", h.ID).
		Updates(map[string]any{"consumed": h.Consumed, "expires_at": h.ExpiresAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domhold.ErrNotFound
	}
	return nil
}

func (r *HoldRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&HoldModel{}, "id = ?", id).Error
}

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Insert(ctx context.Context, order *domorder.Order) error {
	err := r.db.WithContext(ctx).Create(toOrderModel(order)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domorder.ErrConflict
	}
	return err
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domorder.Order, error) {
	var m OrderModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domorder.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomainOrder(&m), nil
}

func (r *OrderRepository) Update(ctx context.Context, order *domorder.Order) error {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{"status": string(order.Status), "updated_at": order.UpdatedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domorder.ErrNotFound
	}
	return nil
}

type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) InsertIfAbsent(ctx context.Context, n *domwebhook.Notification) (*domwebhook.Notification, bool, error) {
	err := r.db.WithContext(ctx).Create(toWebhookModel(n)).Error
	if err == nil {
		return n.Clone(), true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}
	existing, err := r.Get(ctx, n.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *WebhookRepository) Get(ctx context.Context, idempotencyKey string) (*domwebhook.Notification, error) {
	var m WebhookModel
	err := r.db.WithContext(ctx).First(&m, "idempotency_key = ?", idempotencyKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domwebhook.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomainWebhook(&m), nil
}

func (r *WebhookRepository) Update(ctx context.Context, n *domwebhook.Notification) error {
	res := r.db.WithContext(ctx).Model(&WebhookModel{}).
		Where("idempotency_key = ?", n.IdempotencyKey).
		Updates(map[string]any{"processed": string(n.Processed), "processed_at": n.ProcessedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domwebhook.ErrNotFound
	}
	return nil
}

func (r *WebhookRepository) ListPendingByOrder(ctx context.Context, orderID string) ([]*domwebhook.Notification, error) {
	var models []WebhookModel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND processed = ?", orderID, string(domwebhook.StatePending)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domwebhook.Notification, 0, len(models))
	for i := range models {
		out = append(out, toDomainWebhook(&models[i]))
	}
	return out, nil
}
