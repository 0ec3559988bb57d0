package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/catalog"
	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/job"
	"github.com/channelsync/backend/internal/domain/store"
	"github.com/channelsync/backend/internal/domain/trade"
	"github.com/channelsync/backend/internal/infrastructure/logger"
)

// Result summarizes one sync pass for one store
type Result struct {
	// Fetched counts candidate rows returned by the connector
	Fetched int
	// Written counts rows that passed delta detection and were upserted
	Written int
	// Skipped counts rows suppressed by delta detection
	Skipped int
	// Dropped counts rows discarded for unresolvable foreign keys
	Dropped int
}

// Service runs the fetch, map, delta, upsert pipeline for one store at a
// time. All marketplace specifics live behind the connector port; all
// persistence specifics behind the repository ports.
type Service struct {
	registry  connector.Registry
	stores    store.Repository
	products  catalog.ProductRepository
	inventory catalog.InventoryRepository
	orders    trade.OrderRepository
	returns   trade.ReturnRepository
	logger    *zap.Logger
}

// NewService creates a sync service
func NewService(
	registry connector.Registry,
	stores store.Repository,
	products catalog.ProductRepository,
	inventory catalog.InventoryRepository,
	orders trade.OrderRepository,
	returns trade.ReturnRepository,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		registry:  registry,
		stores:    stores,
		products:  products,
		inventory: inventory,
		orders:    orders,
		returns:   returns,
		logger:    log,
	}
}

// Run dispatches one job type for one store. The watermark semantics are the
// caller's: since is the store's last successful sync start, nil for a full
// historical walk.
func (s *Service) Run(ctx context.Context, st *store.Store, jobType job.Type, since *time.Time) (*Result, error) {
	conn, err := s.connectorFor(ctx, st)
	if err != nil {
		return nil, err
	}

	switch jobType {
	case job.TypeProductSync:
		return s.syncProducts(ctx, st, conn, since)
	case job.TypeInventorySync:
		return s.syncInventory(ctx, st, conn, since)
	case job.TypeOrderSync:
		return s.syncOrders(ctx, st, conn, since)
	case job.TypeFulfillmentSync:
		return s.syncFulfillments(ctx, st, conn, since)
	case job.TypeReturnSync:
		return s.syncReturns(ctx, st, conn, since)
	default:
		return nil, fmt.Errorf("sync: job type %s has no pipeline", jobType)
	}
}

// connectorFor builds a fresh initialized connector for the store
func (s *Service) connectorFor(ctx context.Context, st *store.Store) (connector.Connector, error) {
	conn, err := s.registry.New(st.Platform)
	if err != nil {
		return nil, err
	}
	creds, err := s.stores.GetCredentials(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", connector.ErrConfiguration, err)
	}
	if err := conn.Initialize(creds); err != nil {
		return nil, err
	}
	return conn, nil
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func (s *Service) syncProducts(ctx context.Context, st *store.Store, conn connector.Connector, since *time.Time) (*Result, error) {
	log := logger.L(ctx)

	candidates, err := conn.FetchProducts(ctx, since)
	if err != nil {
		return nil, err
	}
	result := &Result{Fetched: len(candidates)}
	if len(candidates) == 0 {
		return result, nil
	}

	skus := make([]string, 0, len(candidates))
	for i := range candidates {
		candidates[i].StoreID = st.ID
		skus = append(skus, candidates[i].SKU)
	}
	existing, err := s.products.FindBySKUs(ctx, st.ID, skus)
	if err != nil {
		return nil, err
	}

	// Products are upserted unconditionally so a re-sync with identical
	// values stays an idempotent overwrite; delta suppression applies to
	// inventory, orders, and returns only. The lookup just pins existing
	// internal ids and creation times.
	for i := range candidates {
		if prior, known := existing[candidates[i].SKU]; known {
			candidates[i].ID = prior.ID
			candidates[i].CreatedAt = prior.CreatedAt
		}
	}

	written, err := s.products.Upsert(ctx, candidates)
	result.Written = written
	if err != nil {
		return result, err
	}

	log.Info("product sync finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("written", result.Written),
	)
	return result, nil
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

func (s *Service) syncInventory(ctx context.Context, st *store.Store, conn connector.Connector, since *time.Time) (*Result, error) {
	log := logger.L(ctx)

	products, err := conn.FetchProducts(ctx, since)
	if err != nil {
		return nil, err
	}
	levels, err := conn.FetchInventory(ctx, products)
	if err != nil {
		return nil, err
	}
	result := &Result{Fetched: len(levels)}
	if len(levels) == 0 {
		return result, nil
	}

	skus := make([]string, 0, len(levels))
	for sku := range levels {
		skus = append(skus, sku)
	}
	productIDs, err := s.products.ResolveSKUs(ctx, st.ID, skus)
	if err != nil {
		return nil, err
	}
	existing, err := s.inventory.FindBySKUs(ctx, st.ID, skus)
	if err != nil {
		return nil, err
	}

	changed := make([]catalog.InventoryLevel, 0, len(levels))
	for sku, level := range levels {
		productID, resolved := productIDs[sku]
		if !resolved {
			result.Dropped++
			log.Warn("dropping inventory level for unknown product",
				zap.String("sku", sku),
			)
			continue
		}
		level.StoreID = st.ID
		level.ProductID = productID

		prior, known := existing[sku]
		if known {
			if !prior.NeedsUpdate(&level) {
				result.Skipped++
				continue
			}
			level.ID = prior.ID
		}
		changed = append(changed, level)
	}
	if len(changed) == 0 {
		return result, nil
	}

	written, err := s.inventory.Upsert(ctx, changed)
	result.Written = written
	if err != nil {
		return result, err
	}

	log.Info("inventory sync finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("written", result.Written),
		zap.Int("skipped", result.Skipped),
		zap.Int("dropped", result.Dropped),
	)
	return result, nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func (s *Service) syncOrders(ctx context.Context, st *store.Store, conn connector.Connector, since *time.Time) (*Result, error) {
	log := logger.L(ctx)

	candidates, err := conn.FetchOrders(ctx, since)
	if err != nil {
		return nil, err
	}
	result := &Result{Fetched: len(candidates)}
	if len(candidates) == 0 {
		return result, nil
	}

	externalIDs := make([]string, 0, len(candidates))
	skuSet := make(map[string]struct{})
	for i := range candidates {
		candidates[i].StoreID = st.ID
		externalIDs = append(externalIDs, candidates[i].ExternalID)
		for j := range candidates[i].Items {
			skuSet[candidates[i].Items[j].SKU] = struct{}{}
		}
	}
	existing, err := s.orders.FindByExternalIDs(ctx, st.ID, externalIDs)
	if err != nil {
		return nil, err
	}
	skus := make([]string, 0, len(skuSet))
	for sku := range skuSet {
		skus = append(skus, sku)
	}
	productIDs, err := s.products.ResolveSKUs(ctx, st.ID, skus)
	if err != nil {
		return nil, err
	}

	changed := make([]trade.Order, 0, len(candidates))
	for i := range candidates {
		prior, known := existing[candidates[i].ExternalID]
		if known {
			if !prior.NeedsUpdate(&candidates[i]) {
				result.Skipped++
				continue
			}
			candidates[i].ID = prior.ID
			candidates[i].CreatedAt = prior.CreatedAt
		}
		// Line items referencing unsynced listings keep a nil product id
		for j := range candidates[i].Items {
			if id, resolved := productIDs[candidates[i].Items[j].SKU]; resolved {
				productID := id
				candidates[i].Items[j].ProductID = &productID
			}
		}
		changed = append(changed, candidates[i])
	}
	if len(changed) == 0 {
		return result, nil
	}

	written, err := s.orders.UpsertBundles(ctx, changed)
	result.Written = written
	if err != nil {
		return result, err
	}

	log.Info("order sync finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("written", result.Written),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// ---------------------------------------------------------------------------
// Fulfillments
// ---------------------------------------------------------------------------

func (s *Service) syncFulfillments(ctx context.Context, st *store.Store, conn connector.Connector, since *time.Time) (*Result, error) {
	log := logger.L(ctx)

	orders, err := conn.FetchOrders(ctx, since)
	if err != nil {
		return nil, err
	}

	externalIDs := make([]string, 0, len(orders))
	for i := range orders {
		if len(orders[i].Fulfillments) > 0 {
			externalIDs = append(externalIDs, orders[i].ExternalID)
		}
	}
	result := &Result{}
	if len(externalIDs) == 0 {
		return result, nil
	}
	orderIDs, err := s.orders.ResolveExternalIDs(ctx, st.ID, externalIDs)
	if err != nil {
		return nil, err
	}

	var candidates []trade.Fulfillment
	for i := range orders {
		orderID, resolved := orderIDs[orders[i].ExternalID]
		for j := range orders[i].Fulfillments {
			result.Fetched++
			if !resolved {
				result.Dropped++
				log.Warn("dropping fulfillment for unknown order",
					zap.String("external_order_id", orders[i].ExternalID),
					zap.String("external_id", orders[i].Fulfillments[j].ExternalID),
				)
				continue
			}
			f := orders[i].Fulfillments[j]
			f.OrderID = orderID
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return result, nil
	}

	written, err := s.orders.UpsertFulfillments(ctx, candidates)
	result.Written = written
	if err != nil {
		return result, err
	}

	log.Info("fulfillment sync finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("written", result.Written),
		zap.Int("dropped", result.Dropped),
	)
	return result, nil
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

func (s *Service) syncReturns(ctx context.Context, st *store.Store, conn connector.Connector, since *time.Time) (*Result, error) {
	log := logger.L(ctx)

	// The allow-list is checked again here so a scheduler bug cannot push
	// return jobs through for platforms outside it
	if !s.registry.SupportsReturns(st.Platform) {
		return nil, fmt.Errorf("%w: returns on %s", connector.ErrNotSupported, st.Platform)
	}

	candidates, err := conn.FetchReturns(ctx, since)
	if err != nil {
		return nil, err
	}
	result := &Result{Fetched: len(candidates)}
	if len(candidates) == 0 {
		return result, nil
	}

	orderExternalIDs := make([]string, 0, len(candidates))
	returnExternalIDs := make([]string, 0, len(candidates))
	for i := range candidates {
		candidates[i].StoreID = st.ID
		orderExternalIDs = append(orderExternalIDs, candidates[i].ExternalOrderID)
		returnExternalIDs = append(returnExternalIDs, candidates[i].ExternalID)
	}
	orderIDs, err := s.orders.ResolveExternalIDs(ctx, st.ID, orderExternalIDs)
	if err != nil {
		return nil, err
	}
	existing, err := s.returns.FindByExternalIDs(ctx, st.ID, returnExternalIDs)
	if err != nil {
		return nil, err
	}

	changed := make([]trade.Return, 0, len(candidates))
	for i := range candidates {
		orderID, resolved := orderIDs[candidates[i].ExternalOrderID]
		if !resolved {
			result.Dropped++
			log.Warn("dropping return for unknown order",
				zap.String("external_id", candidates[i].ExternalID),
				zap.String("external_order_id", candidates[i].ExternalOrderID),
			)
			continue
		}
		candidates[i].OrderID = orderID

		prior, known := existing[candidates[i].ExternalID]
		if known {
			if !prior.NeedsUpdate(&candidates[i]) {
				result.Skipped++
				continue
			}
			candidates[i].ID = prior.ID
			candidates[i].CreatedAt = prior.CreatedAt
		}
		changed = append(changed, candidates[i])
	}
	if len(changed) == 0 {
		return result, nil
	}

	written, err := s.returns.Upsert(ctx, changed)
	result.Written = written
	if err != nil {
		return result, err
	}

	log.Info("return sync finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("written", result.Written),
		zap.Int("skipped", result.Skipped),
		zap.Int("dropped", result.Dropped),
	)
	return result, nil
}
