package huolala

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// TokenRecord is a persisted access/refresh token pair.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether now is at or past the expiry.
func (r *TokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// TokenKey identifies a cached token.
type TokenKey struct {
	AppKey  string
	Sandbox bool
}

// String returns "<appKey>:<sandbox>".
func (k TokenKey) String() string {
	return k.AppKey + ":" + strconv.FormatBool(k.Sandbox)
}

// KeyFor returns the token key for a config.
func KeyFor(cfg Config) TokenKey {
	return TokenKey{AppKey: cfg.AppKey(), Sandbox: cfg.Sandbox()}
}

// TokenStore persists token records by key.
// Get returns ErrTokenNotFound when nothing is stored for key.
type TokenStore interface {
	Get(ctx context.Context, key TokenKey) (*TokenRecord, error)
	Set(ctx context.Context, key TokenKey, record *TokenRecord) error
	Delete(ctx context.Context, key TokenKey) error
}

// TokenLocker is implemented by stores that can exclude concurrent refreshes
// of the same key across every provider sharing the store. Lock blocks until
// the key is held or ctx is done; the returned func releases it.
type TokenLocker interface {
	Lock(ctx context.Context, key TokenKey) (unlock func(context.Context) error, err error)
}

// KeyedMutex is an in-process TokenLocker holding one lock per key.
// The zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// Lock acquires the lock for key.
func (m *KeyedMutex) Lock(ctx context.Context, key TokenKey) (func(context.Context) error, error) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]chan struct{})
	}
	ch, ok := m.locks[key.String()]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key.String()] = ch
	}
	m.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func(context.Context) error {
			<-ch
			return nil
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AccessTokenProvider supplies access tokens for authenticated calls.
type AccessTokenProvider interface {
	// Get returns a usable access token. It never exchanges an
	// authorization code; an empty cache is an ErrAuth failure.
	Get(ctx context.Context) (string, error)

	// Set persists a freshly obtained token payload.
	Set(ctx context.Context, appKey string, data map[string]any, sandbox bool) error
}

// ParseTokenPayload decodes a raw OAuth token response into a record.
func ParseTokenPayload(raw []byte, now time.Time) (*TokenRecord, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, NewAuthError(StageToken, "MALFORMED_TOKEN_PAYLOAD", "token payload is not a JSON object").WithCause(err)
	}
	return TokenRecordFromMap(data, now)
}

// TokenRecordFromMap reads access_token, refresh_token and expires_in
// (or expires_at) from a token payload. The payload may be flat or wrapped
// as {"ret":0,"msg":"","data":{...}}.
func TokenRecordFromMap(data map[string]any, now time.Time) (*TokenRecord, error) {
	if data == nil {
		return nil, NewAuthError(StageToken, "EMPTY_TOKEN_PAYLOAD", "token payload is empty")
	}

	if ret, ok := data["ret"]; ok {
		if code, _ := toInt64(ret); code != 0 {
			msg, _ := data["msg"].(string)
			return nil, NewAuthError(StageToken, fmt.Sprintf("RET_%d", code), msg)
		}
	}
	if inner, ok := data["data"].(map[string]any); ok {
		data = inner
	}

	access, _ := data["access_token"].(string)
	if access == "" {
		return nil, NewAuthError(StageToken, "MISSING_ACCESS_TOKEN", "token payload has no access_token")
	}
	refresh, _ := data["refresh_token"].(string)

	record := &TokenRecord{AccessToken: access, RefreshToken: refresh}
	switch {
	case data["expires_in"] != nil:
		secs, ok := toInt64(data["expires_in"])
		if !ok {
			return nil, NewAuthError(StageToken, "INVALID_EXPIRY", fmt.Sprintf("expires_in is not numeric: %v", data["expires_in"]))
		}
		record.ExpiresAt = now.Add(time.Duration(secs) * time.Second)
	case data["expires_at"] != nil:
		ts, ok := toInt64(data["expires_at"])
		if !ok {
			return nil, NewAuthError(StageToken, "INVALID_EXPIRY", fmt.Sprintf("expires_at is not numeric: %v", data["expires_at"]))
		}
		record.ExpiresAt = time.Unix(ts, 0)
	default:
		// no expiry given: treat as already expired so the next Get refreshes
		record.ExpiresAt = now
	}
	return record, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
