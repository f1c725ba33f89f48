package shops

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

type memoryRepo struct {
	shops  map[int64]Shop
	hashes map[int64]string
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{shops: map[int64]Shop{}, hashes: map[int64]string{}, nextID: 1}
}

func (m *memoryRepo) Insert(ctx context.Context, shop Shop, apiKeyHash string) (Shop, error) {
	shop.ID = m.nextID
	m.nextID++
	shop.CreatedAt = time.Now()
	m.shops[shop.ID] = shop
	m.hashes[shop.ID] = apiKeyHash
	return shop, nil
}

func (m *memoryRepo) Get(ctx context.Context, shopID int64) (Shop, error) {
	shop, ok := m.shops[shopID]
	if !ok {
		return Shop{}, shared.ErrNotFound
	}
	return shop, nil
}

func (m *memoryRepo) GetWithKeyHash(ctx context.Context, shopID int64) (Shop, string, error) {
	shop, ok := m.shops[shopID]
	if !ok {
		return Shop{}, "", shared.ErrNotFound
	}
	return shop, m.hashes[shopID], nil
}

func (m *memoryRepo) List(ctx context.Context) ([]Shop, error) {
	out := []Shop{}
	for _, shop := range m.shops {
		out = append(out, shop)
	}
	return out, nil
}

func (m *memoryRepo) SetStatus(ctx context.Context, shopID int64, status Status) error {
	shop, ok := m.shops[shopID]
	if !ok {
		return shared.ErrNotFound
	}
	shop.Status = status
	m.shops[shopID] = shop
	return nil
}

func (m *memoryRepo) SetSubscriptionExpiry(ctx context.Context, shopID int64, expiresAt time.Time) error {
	shop, ok := m.shops[shopID]
	if !ok {
		return shared.ErrNotFound
	}
	shop.SubscriptionExpiresAt = &expiresAt
	m.shops[shopID] = shop
	return nil
}

func (m *memoryRepo) SetAPIKeyHash(ctx context.Context, shopID int64, hash string) error {
	if _, ok := m.shops[shopID]; !ok {
		return shared.ErrNotFound
	}
	m.hashes[shopID] = hash
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })
	repo := newMemoryRepo()
	return NewService(repo, cache, nil), repo, cache
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	creds, err := svc.Create(ctx, CreateInput{Name: "Warung Bu Sari", Currency: "idr"})
	require.NoError(t, err)
	require.Equal(t, "IDR", creds.Shop.Currency)
	require.Equal(t, StatusActive, creds.Shop.Status)
	require.NotEmpty(t, creds.APIKey)

	tenant, err := svc.Authenticate(ctx, creds.APIKey)
	require.NoError(t, err)
	require.Equal(t, creds.Shop.ID, tenant.ShopID)
	require.Equal(t, "Warung Bu Sari", tenant.ShopName)
	require.Equal(t, "IDR", tenant.Currency)
}

func TestAuthenticateRejectsBadKeys(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	creds, err := svc.Create(ctx, CreateInput{Name: "Toko Maju"})
	require.NoError(t, err)

	for _, key := range []string{
		"",
		"garbage",
		"tk_1_",
		"tk_abc_secret",
		creds.APIKey + "x",
	} {
		_, err := svc.Authenticate(ctx, key)
		require.ErrorIs(t, err, shared.ErrInvalidAPIKey, "key %q", key)
	}
}

func TestAuthenticateUsesCache(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	creds, err := svc.Create(ctx, CreateInput{Name: "Kios Cepat"})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, creds.APIKey)
	require.NoError(t, err)

	// With the row gone, only the cache can satisfy the second call.
	delete(repo.shops, creds.Shop.ID)
	tenant, err := svc.Authenticate(ctx, creds.APIKey)
	require.NoError(t, err)
	require.Equal(t, creds.Shop.ID, tenant.ShopID)
}

func TestSuspendedShopRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	creds, err := svc.Create(ctx, CreateInput{Name: "Toko Nakal"})
	require.NoError(t, err)
	require.NoError(t, svc.Suspend(ctx, creds.Shop.ID))

	_, err = svc.Authenticate(ctx, creds.APIKey)
	require.ErrorIs(t, err, shared.ErrShopSuspended)

	// Reactivation restores access.
	require.NoError(t, svc.Activate(ctx, creds.Shop.ID))
	_, err = svc.Authenticate(ctx, creds.APIKey)
	require.NoError(t, err)
}

func TestExpiredSubscriptionRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	creds, err := svc.Create(ctx, CreateInput{Name: "Toko Telat"})
	require.NoError(t, err)

	expired := time.Now().Add(-time.Hour)
	shop := repo.shops[creds.Shop.ID]
	shop.SubscriptionExpiresAt = &expired
	repo.shops[creds.Shop.ID] = shop

	_, err = svc.Authenticate(ctx, creds.APIKey)
	require.ErrorIs(t, err, shared.ErrShopSuspended)

	// Renewal restores access.
	require.NoError(t, svc.RenewSubscription(ctx, creds.Shop.ID, time.Now().Add(30*24*time.Hour)))
	_, err = svc.Authenticate(ctx, creds.APIKey)
	require.NoError(t, err)
}

func TestRotateAPIKeyInvalidatesOldKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	creds, err := svc.Create(ctx, CreateInput{Name: "Toko Aman"})
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, creds.APIKey)
	require.NoError(t, err)

	newKey, err := svc.RotateAPIKey(ctx, creds.Shop.ID)
	require.NoError(t, err)
	require.NotEqual(t, creds.APIKey, newKey)

	_, err = svc.Authenticate(ctx, creds.APIKey)
	require.ErrorIs(t, err, shared.ErrInvalidAPIKey)
	_, err = svc.Authenticate(ctx, newKey)
	require.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "  "})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = svc.Create(ctx, CreateInput{Name: "Toko", Currency: "ZZZ"})
	require.ErrorIs(t, err, ErrInvalidCurrency)
}
