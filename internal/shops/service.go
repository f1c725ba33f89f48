package shops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/currency"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

const tenantCacheTTL = 5 * time.Minute

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Insert(ctx context.Context, shop Shop, apiKeyHash string) (Shop, error)
	Get(ctx context.Context, shopID int64) (Shop, error)
	GetWithKeyHash(ctx context.Context, shopID int64) (Shop, string, error)
	List(ctx context.Context) ([]Shop, error)
	SetStatus(ctx context.Context, shopID int64, status Status) error
	SetSubscriptionExpiry(ctx context.Context, shopID int64, expiresAt time.Time) error
	SetAPIKeyHash(ctx context.Context, shopID int64, hash string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages tenant lifecycle and API key authentication. Resolved
// tenants are cached in Redis so the bcrypt comparison runs only on cache
// misses.
type Service struct {
	repo  RepositoryPort
	cache *redis.Client
	audit AuditPort
}

// NewService builds Service. cache may be nil, disabling the tenant cache.
func NewService(repo RepositoryPort, cache *redis.Client, audit AuditPort) *Service {
	return &Service{repo: repo, cache: cache, audit: audit}
}

// Create registers a shop and mints its API key. The raw key is returned
// exactly once.
func (s *Service) Create(ctx context.Context, input CreateInput) (Credentials, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Credentials{}, shared.NewValidationError("name", "is required")
	}
	code := strings.ToUpper(strings.TrimSpace(input.Currency))
	if code == "" {
		code = "IDR"
	}
	if _, err := currency.ParseISO(code); err != nil {
		return Credentials{}, ErrInvalidCurrency
	}

	secret, err := randomSecret()
	if err != nil {
		return Credentials{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return Credentials{}, err
	}
	shop, err := s.repo.Insert(ctx, Shop{Name: input.Name, Currency: code, Status: StatusActive}, string(hash))
	if err != nil {
		return Credentials{}, err
	}

	s.auditRecord(ctx, shop.ID, "shops:create")
	return Credentials{Shop: shop, APIKey: formatAPIKey(shop.ID, secret)}, nil
}

// RotateAPIKey mints a new API key for the shop and invalidates the cache.
func (s *Service) RotateAPIKey(ctx context.Context, shopID int64) (string, error) {
	shop, err := s.repo.Get(ctx, shopID)
	if err != nil {
		return "", err
	}
	secret, err := randomSecret()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetAPIKeyHash(ctx, shop.ID, string(hash)); err != nil {
		return "", err
	}
	s.invalidate(ctx, shop.ID)
	s.auditRecord(ctx, shop.ID, "shops:rotate-key")
	return formatAPIKey(shop.ID, secret), nil
}

// Authenticate resolves an API key to a tenant. Suspended shops and expired
// subscriptions are rejected even when the key itself is valid.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (shared.Tenant, error) {
	shopID, secret, err := parseAPIKey(apiKey)
	if err != nil {
		return shared.Tenant{}, err
	}

	if tenant, ok := s.cachedTenant(ctx, shopID, secret); ok {
		return tenant, nil
	}

	shop, hash, err := s.repo.GetWithKeyHash(ctx, shopID)
	if err != nil {
		return shared.Tenant{}, shared.ErrInvalidAPIKey
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return shared.Tenant{}, shared.ErrInvalidAPIKey
	}
	if !shop.Subscribed(time.Now()) {
		return shared.Tenant{}, shared.ErrShopSuspended
	}

	tenant := shared.Tenant{ShopID: shop.ID, ShopName: shop.Name, Currency: shop.Currency}
	s.storeTenant(ctx, shopID, secret, tenant)
	return tenant, nil
}

// Suspend blocks a shop from serving requests.
func (s *Service) Suspend(ctx context.Context, shopID int64) error {
	if err := s.repo.SetStatus(ctx, shopID, StatusSuspended); err != nil {
		return err
	}
	s.invalidate(ctx, shopID)
	s.auditRecord(ctx, shopID, "shops:suspend")
	return nil
}

// Activate re-enables a suspended shop.
func (s *Service) Activate(ctx context.Context, shopID int64) error {
	if err := s.repo.SetStatus(ctx, shopID, StatusActive); err != nil {
		return err
	}
	s.invalidate(ctx, shopID)
	s.auditRecord(ctx, shopID, "shops:activate")
	return nil
}

// RenewSubscription moves the expiry forward.
func (s *Service) RenewSubscription(ctx context.Context, shopID int64, expiresAt time.Time) error {
	if expiresAt.Before(time.Now()) {
		return shared.NewValidationError("expires_at", "must be in the future")
	}
	if err := s.repo.SetSubscriptionExpiry(ctx, shopID, expiresAt); err != nil {
		return err
	}
	s.invalidate(ctx, shopID)
	s.auditRecord(ctx, shopID, "shops:renew")
	return nil
}

// Get fetches one shop.
func (s *Service) Get(ctx context.Context, shopID int64) (Shop, error) {
	return s.repo.Get(ctx, shopID)
}

// List lists all shops.
func (s *Service) List(ctx context.Context) ([]Shop, error) {
	return s.repo.List(ctx)
}

func (s *Service) cachedTenant(ctx context.Context, shopID int64, secret string) (shared.Tenant, bool) {
	if s.cache == nil {
		return shared.Tenant{}, false
	}
	raw, err := s.cache.Get(ctx, tenantCacheKey(shopID)).Result()
	if err != nil {
		return shared.Tenant{}, false
	}
	var entry cachedEntry
	if json.Unmarshal([]byte(raw), &entry) != nil {
		return shared.Tenant{}, false
	}
	// The cache stores the secret alongside the tenant so a rotated or wrong
	// key never authenticates off a stale entry.
	if entry.Secret != secret {
		return shared.Tenant{}, false
	}
	return entry.Tenant, true
}

func (s *Service) storeTenant(ctx context.Context, shopID int64, secret string, tenant shared.Tenant) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(cachedEntry{Secret: secret, Tenant: tenant})
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, tenantCacheKey(shopID), raw, tenantCacheTTL).Err()
}

func (s *Service) invalidate(ctx context.Context, shopID int64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, tenantCacheKey(shopID)).Err()
}

func (s *Service) auditRecord(ctx context.Context, shopID int64, action string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ShopID:   shopID,
		Action:   action,
		Entity:   "shop",
		EntityID: strconv.FormatInt(shopID, 10),
	})
}

type cachedEntry struct {
	Secret string        `json:"secret"`
	Tenant shared.Tenant `json:"tenant"`
}

func tenantCacheKey(shopID int64) string {
	return fmt.Sprintf("tenant:%d", shopID)
}

func formatAPIKey(shopID int64, secret string) string {
	return fmt.Sprintf("tk_%d_%s", shopID, secret)
}

func parseAPIKey(apiKey string) (int64, string, error) {
	parts := strings.SplitN(apiKey, "_", 3)
	if len(parts) != 3 || parts[0] != "tk" {
		return 0, "", shared.ErrInvalidAPIKey
	}
	shopID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || shopID <= 0 || parts[2] == "" {
		return 0, "", shared.ErrInvalidAPIKey
	}
	return shopID, parts[2], nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
