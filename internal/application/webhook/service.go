package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/domain/catalog"
	"github.com/channelsync/backend/internal/domain/connector"
	"github.com/channelsync/backend/internal/domain/store"
	"github.com/channelsync/backend/internal/domain/trade"
	"github.com/channelsync/backend/internal/infrastructure/logger"
)

var (
	// ErrWrongPlatform means the delivery targeted a store registered on a
	// different marketplace
	ErrWrongPlatform = errors.New("webhook: platform does not match store")
	// ErrUndecodable means the connector cannot map this event synchronously
	ErrUndecodable = errors.New("webhook: event cannot be decoded")
)

// Result summarizes one processed delivery
type Result struct {
	Entity  string
	Written int
	Skipped int
}

// Service authenticates inbound webhook deliveries and pushes their payloads
// through the same delta and upsert path the scheduled sync uses
type Service struct {
	registry connector.Registry
	stores   store.Repository
	alerts   store.AlertSink
	products catalog.ProductRepository
	orders   trade.OrderRepository
	verifier *Verifier
	logger   *zap.Logger
}

// NewService creates a webhook processing service
func NewService(
	registry connector.Registry,
	stores store.Repository,
	alerts store.AlertSink,
	products catalog.ProductRepository,
	orders trade.OrderRepository,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		registry: registry,
		stores:   stores,
		alerts:   alerts,
		products: products,
		orders:   orders,
		verifier: NewVerifier(),
		logger:   log,
	}
}

// Process verifies and applies one delivery. Verification failures raise a
// webhook_invalid alert; the caller maps them to 401.
func (s *Service) Process(ctx context.Context, platform connector.Platform, storeID uuid.UUID, header func(string) string, body []byte) (*Result, error) {
	log := logger.L(ctx)

	st, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if st.Platform != platform {
		s.raiseAlert(ctx, st.ID, "delivery for "+platform.String()+" hit a "+st.Platform.String()+" store")
		return nil, ErrWrongPlatform
	}

	conn, err := s.registry.New(platform)
	if err != nil {
		return nil, err
	}
	scheme := conn.WebhookScheme()

	secret := ""
	if creds, err := s.stores.GetCredentials(ctx, st.ID); err == nil {
		secret = creds.Get("webhook_secret")
	}
	if err := s.verifier.Verify(scheme, secret, header, body, st.Domain); err != nil {
		s.raiseAlert(ctx, st.ID, err.Error())
		return nil, err
	}

	decoder, ok := conn.(connector.OrderEventDecoder)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndecodable, platform)
	}

	topic := header(scheme.TopicHeader)
	if isProductTopic(topic) {
		return s.applyProductEvent(ctx, st, decoder, body)
	}
	result, err := s.applyOrderEvent(ctx, st, decoder, body)
	if err != nil {
		return nil, err
	}

	log.Info("webhook processed",
		zap.String("platform", platform.String()),
		zap.String("topic", topic),
		zap.String("entity", result.Entity),
		zap.Int("written", result.Written),
	)
	return result, nil
}

// isProductTopic routes by topic name; anything not recognizably a catalog
// event is treated as an order event, the overwhelmingly common case
func isProductTopic(topic string) bool {
	t := strings.ToLower(topic)
	return strings.Contains(t, "product") || strings.Contains(t, "listing")
}

func (s *Service) applyProductEvent(ctx context.Context, st *store.Store, decoder connector.OrderEventDecoder, body []byte) (*Result, error) {
	candidates, err := decoder.DecodeProductEvent(st.ID, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	result := &Result{Entity: "product"}
	if len(candidates) == 0 {
		return result, nil
	}

	skus := make([]string, 0, len(candidates))
	for i := range candidates {
		skus = append(skus, candidates[i].SKU)
	}
	existing, err := s.products.FindBySKUs(ctx, st.ID, skus)
	if err != nil {
		return nil, err
	}

	changed := make([]catalog.Product, 0, len(candidates))
	for i := range candidates {
		prior, known := existing[candidates[i].SKU]
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

	written, err := s.products.Upsert(ctx, changed)
	result.Written = written
	return result, err
}

func (s *Service) applyOrderEvent(ctx context.Context, st *store.Store, decoder connector.OrderEventDecoder, body []byte) (*Result, error) {
	candidate, err := decoder.DecodeOrderEvent(st.ID, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	result := &Result{Entity: "order"}

	existing, err := s.orders.FindByExternalIDs(ctx, st.ID, []string{candidate.ExternalID})
	if err != nil {
		return nil, err
	}
	if prior, known := existing[candidate.ExternalID]; known {
		if !prior.NeedsUpdate(candidate) {
			result.Skipped = 1
			return result, nil
		}
		candidate.ID = prior.ID
		candidate.CreatedAt = prior.CreatedAt
	}

	skus := make([]string, 0, len(candidate.Items))
	for i := range candidate.Items {
		skus = append(skus, candidate.Items[i].SKU)
	}
	productIDs, err := s.products.ResolveSKUs(ctx, st.ID, skus)
	if err != nil {
		return nil, err
	}
	for i := range candidate.Items {
		if id, resolved := productIDs[candidate.Items[i].SKU]; resolved {
			productID := id
			candidate.Items[i].ProductID = &productID
		}
	}

	written, err := s.orders.UpsertBundles(ctx, []trade.Order{*candidate})
	result.Written = written
	return result, err
}

// raiseAlert records a webhook_invalid alert; sink failures are logged and
// never escalated
func (s *Service) raiseAlert(ctx context.Context, storeID uuid.UUID, message string) {
	alert := store.Alert{
		StoreID:  &storeID,
		Type:     store.AlertTypeWebhookInvalid,
		Severity: store.AlertSeverityWarning,
		Message:  message,
	}
	if err := s.alerts.CreateAlert(ctx, alert); err != nil {
		s.logger.Warn("failed to record webhook alert", zap.Error(err))
	}
}
