package product

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	appinv "github.com/flashmart/reservation/internal/application/inventory"
	"github.com/flashmart/reservation/internal/pkg/logging"
	"go.uber.org/zap"
)

const component = "product_service"

// Cache is a TTL byte cache. Implementations: in-process map, Redis.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// View is the display shape of a product. Stock here is a cached snapshot;
// reservation decisions never read it.
type View struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}

// Service answers read queries through short-TTL caches over the
// authoritative inventory store, and refreshes the stock snapshot whenever
// the store mutates it.
type Service struct {
	inventory *appinv.Store
	cache     Cache
	infoTTL   time.Duration
	stockTTL  time.Duration
}

func NewService(inv *appinv.Store, cache Cache, infoTTL, stockTTL time.Duration) *Service {
	if infoTTL <= 0 {
		infoTTL = 60 * time.Second
	}
	if stockTTL <= 0 {
		stockTTL = 10 * time.Second
	}
	return &Service{
		inventory: inv,
		cache:     cache,
		infoTTL:   infoTTL,
		stockTTL:  stockTTL,
	}
}

func infoKey(productID string) string  { return "product_info_" + productID }
func stockKey(productID string) string { return "product_stock_" + productID }

// GetProduct returns the product view, reading info and stock through their
// respective caches and falling back to the store on a miss.
func (s *Service) GetProduct(ctx context.Context, productID string) (*View, error) {
	logger := logging.WithComponent(ctx, component)

	view, ok := s.cachedInfo(ctx, productID)
	if !ok {
		p, err := s.inventory.Get(ctx, productID)
		if err != nil {
			return nil, err
		}
		view = &View{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Available}
		s.storeInfo(ctx, view)
		s.storeStock(ctx, productID, p.Available)
		return view, nil
	}

	stock, ok := s.cachedStock(ctx, productID)
	if !ok {
		p, err := s.inventory.Get(ctx, productID)
		if err != nil {
			return nil, err
		}
		stock = p.Available
		s.storeStock(ctx, productID, stock)
	}
	view.Stock = stock

	logger.Debug("product_read",
		zap.String("product_id", productID),
		zap.Int("stock", view.Stock),
	)
	return view, nil
}

// RefreshStock implements inventory.CacheRefresher: every successful
// reserve/release overwrites the cached snapshot with the authoritative
// value.
func (s *Service) RefreshStock(ctx context.Context, productID string, available int) {
	s.storeStock(ctx, productID, available)
}

func (s *Service) cachedInfo(ctx context.Context, productID string) (*View, bool) {
	raw, ok, err := s.cache.Get(ctx, infoKey(productID))
	if err != nil {
		s.logCacheError(ctx, "get", infoKey(productID), err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var v View
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logCacheError(ctx, "decode", infoKey(productID), err)
		return nil, false
	}
	return &v, true
}

func (s *Service) storeInfo(ctx context.Context, v *View) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logCacheError(ctx, "encode", infoKey(v.ID), err)
		return
	}
	if err := s.cache.Set(ctx, infoKey(v.ID), raw, s.infoTTL); err != nil {
		s.logCacheError(ctx, "set", infoKey(v.ID), err)
	}
}

func (s *Service) cachedStock(ctx context.Context, productID string) (int, bool) {
	raw, ok, err := s.cache.Get(ctx, stockKey(productID))
	if err != nil {
		s.logCacheError(ctx, "get", stockKey(productID), err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		s.logCacheError(ctx, "decode", stockKey(productID), err)
		return 0, false
	}
	return n, true
}

func (s *Service) storeStock(ctx context.Context, productID string, available int) {
	key := stockKey(productID)
	if err := s.cache.Set(ctx, key, []byte(strconv.Itoa(available)), s.stockTTL); err != nil {
		s.logCacheError(ctx, "set", key, err)
	}
}

// Cache failures never fail a request; the store remains the source of
// truth and the next read repopulates.
func (s *Service) logCacheError(ctx context.Context, op, key string, err error) {
	logging.WithComponent(ctx, component).Warn("cache_error",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

var _ appinv.CacheRefresher = (*Service)(nil)
