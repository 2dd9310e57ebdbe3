package huolala

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenClient is the OAuth surface CachingTokenProvider needs. *Client implements it.
type TokenClient interface {
	Config() Config
	ExchangeCode(ctx context.Context, code string, grantType GrantType) (json.RawMessage, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (json.RawMessage, error)
}

// DefaultLockTimeout bounds the wait for a store lock during refresh.
const DefaultLockTimeout = 30 * time.Second

// CachingTokenProvider serves tokens from a TokenStore, refreshing expired
// ones through the refresh-token flow. Concurrent refreshes for the same
// key share a single in-flight request. When the store is a TokenLocker,
// refreshes are also serialized across every provider sharing the store.
type CachingTokenProvider struct {
	client   TokenClient
	store    TokenStore
	logger   *otelzap.Logger
	metrics  Metrics
	leeway   time.Duration
	lockWait time.Duration
	now      func() time.Time

	flight singleflight.Group
}

// ProviderOption customizes a CachingTokenProvider.
type ProviderOption func(*CachingTokenProvider)

// WithProviderLogger sets the provider logger.
func WithProviderLogger(logger *otelzap.Logger) ProviderOption {
	return func(p *CachingTokenProvider) {
		p.logger = logger
	}
}

// WithProviderMetrics records refresh outcomes.
func WithProviderMetrics(m Metrics) ProviderOption {
	return func(p *CachingTokenProvider) {
		p.metrics = m
	}
}

// WithExpiryLeeway treats tokens as expired this long before ExpiresAt.
func WithExpiryLeeway(d time.Duration) ProviderOption {
	return func(p *CachingTokenProvider) {
		p.leeway = d
	}
}

// WithLockTimeout bounds how long a refresh waits for the store's per-key lock.
func WithLockTimeout(d time.Duration) ProviderOption {
	return func(p *CachingTokenProvider) {
		p.lockWait = d
	}
}

// WithProviderClock overrides the provider time source.
func WithProviderClock(now func() time.Time) ProviderOption {
	return func(p *CachingTokenProvider) {
		p.now = now
	}
}

// NewCachingTokenProvider creates a provider for the client's (appKey, sandbox) key.
func NewCachingTokenProvider(client TokenClient, store TokenStore, opts ...ProviderOption) *CachingTokenProvider {
	p := &CachingTokenProvider{
		client:   client,
		store:    store,
		logger:   otelzap.New(zap.NewNop()),
		lockWait: DefaultLockTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns the cache key this provider serves.
func (p *CachingTokenProvider) Key() TokenKey {
	return KeyFor(p.client.Config())
}

// Get returns a valid access token, refreshing an expired one.
// It fails with ErrAuth when nothing is cached or the refresh fails.
func (p *CachingTokenProvider) Get(ctx context.Context) (string, error) {
	key := p.Key()

	record, err := p.lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if !p.expired(record) {
		return record.AccessToken, nil
	}

	// the refresh outlives a cancelled first caller so waiters still get its result
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := p.flight.Do(key.String(), func() (any, error) {
		return p.refresh(flightCtx, key)
	})
	if err != nil {
		return "", err
	}
	if shared {
		p.logger.Ctx(ctx).Debug("Reused in-flight Huolala token refresh", zap.String("app_key", key.AppKey))
	}
	return v.(string), nil
}

// Set parses a token payload and persists it under (appKey, sandbox).
func (p *CachingTokenProvider) Set(ctx context.Context, appKey string, data map[string]any, sandbox bool) error {
	record, err := TokenRecordFromMap(data, p.now())
	if err != nil {
		return err
	}
	return p.save(ctx, TokenKey{AppKey: appKey, Sandbox: sandbox}, record)
}

// Exchange performs a code exchange and persists the resulting token.
func (p *CachingTokenProvider) Exchange(ctx context.Context, code string, grantType GrantType) (*TokenRecord, error) {
	raw, err := p.client.ExchangeCode(ctx, code, grantType)
	if err != nil {
		return nil, annotate(err, KindAuth, StageOAuth, "EXCHANGE_FAILED", "code exchange failed")
	}
	record, err := ParseTokenPayload(raw, p.now())
	if err != nil {
		return nil, err
	}
	if err := p.save(ctx, p.Key(), record); err != nil {
		return nil, err
	}
	p.logger.Ctx(ctx).Info("Stored Huolala access token",
		zap.String("app_key", p.Key().AppKey),
		zap.Time("expires_at", record.ExpiresAt),
	)
	return record, nil
}

// Invalidate drops the cached token for this provider's key.
func (p *CachingTokenProvider) Invalidate(ctx context.Context) error {
	if err := p.store.Delete(ctx, p.Key()); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return NewAuthError(StageToken, "STORE_DELETE_FAILED", "failed to delete cached token").WithCause(err)
	}
	return nil
}

func (p *CachingTokenProvider) lookup(ctx context.Context, key TokenKey) (*TokenRecord, error) {
	record, err := p.store.Get(ctx, key)
	if errors.Is(err, ErrTokenNotFound) || (err == nil && record == nil) {
		return nil, NewAuthError(StageToken, "TOKEN_NOT_ISSUED", "no access token cached; exchange an authorization code first")
	}
	if err != nil {
		return nil, NewAuthError(StageToken, "STORE_READ_FAILED", "failed to read cached token").WithCause(err)
	}
	return record, nil
}

// refresh runs inside the single flight for key.
func (p *CachingTokenProvider) refresh(ctx context.Context, key TokenKey) (string, error) {
	if locker, ok := p.store.(TokenLocker); ok {
		lockCtx, cancel := context.WithTimeout(ctx, p.lockWait)
		unlock, err := locker.Lock(lockCtx, key)
		cancel()
		if err != nil {
			p.recordRefresh("error")
			return "", NewAuthError(StageToken, "LOCK_FAILED", "failed to acquire token refresh lock").WithCause(err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				p.logger.Ctx(ctx).Warn("Failed to release token refresh lock",
					zap.String("app_key", key.AppKey),
					zap.Error(err),
				)
			}
		}()
	}

	// another holder may have refreshed while this caller waited
	record, err := p.lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if !p.expired(record) {
		return record.AccessToken, nil
	}

	if record.RefreshToken == "" {
		p.recordRefresh("error")
		return "", NewAuthError(StageToken, "NO_REFRESH_TOKEN", "access token expired and no refresh token is cached")
	}

	p.logger.Ctx(ctx).Info("Refreshing Huolala access token",
		zap.String("app_key", key.AppKey),
		zap.Bool("sandbox", key.Sandbox),
	)

	raw, err := p.client.RefreshAccessToken(ctx, record.RefreshToken)
	if err != nil {
		p.recordRefresh("error")
		return "", NewAuthError(StageToken, "REFRESH_FAILED", "refresh token request failed").WithCause(err)
	}

	fresh, err := ParseTokenPayload(raw, p.now())
	if err != nil {
		p.recordRefresh("error")
		return "", err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = record.RefreshToken
	}

	if err := p.save(ctx, key, fresh); err != nil {
		p.recordRefresh("error")
		return "", err
	}
	p.recordRefresh("success")
	return fresh.AccessToken, nil
}

func (p *CachingTokenProvider) save(ctx context.Context, key TokenKey, record *TokenRecord) error {
	if err := p.store.Set(ctx, key, record); err != nil {
		return NewAuthError(StageToken, "STORE_WRITE_FAILED", "failed to persist token").WithCause(err)
	}
	return nil
}

func (p *CachingTokenProvider) expired(record *TokenRecord) bool {
	return record.Expired(p.now().Add(p.leeway))
}

func (p *CachingTokenProvider) recordRefresh(status string) {
	if p.metrics != nil {
		p.metrics.RecordTokenRefresh(status)
	}
}

var (
	_ AccessTokenProvider = (*CachingTokenProvider)(nil)
	_ TokenClient         = (*Client)(nil)
)
