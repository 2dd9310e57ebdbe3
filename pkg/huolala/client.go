package huolala

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// API entry points.
const (
	APIProductionServer = "https://openapi.huolala.cn/v1"
	APISandboxServer    = "https://openapi-pre.huolala.cn/v1"
)

// Result is a generically decoded API response.
type Result map[string]any

// Metrics receives pipeline measurements.
type Metrics interface {
	RecordCall(method, status string, duration time.Duration)
	RecordTokenRefresh(status string)
}

// Client is the Huolala open-platform client.
// It is safe for concurrent use.
type Client struct {
	config    Config
	transport Transport
	logger    *otelzap.Logger
	tracer    trace.Tracer
	metrics   Metrics
	now       func() time.Time
	nonce     func() string

	mu     sync.RWMutex
	tokens AccessTokenProvider
}

// Option customizes a Client.
type Option func(*Client)

// WithAccessTokenProvider attaches the provider used for authenticated calls.
func WithAccessTokenProvider(p AccessTokenProvider) Option {
	return func(c *Client) {
		c.tokens = p
	}
}

// WithMetrics records call and refresh metrics.
func WithMetrics(m Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock overrides the time source used for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithNonceFunc overrides nonce generation.
func WithNonceFunc(fn func() string) Option {
	return func(c *Client) {
		c.nonce = fn
	}
}

// New creates a new client sending over HTTPS with the default timeout.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer, opts ...Option) *Client {
	return NewWithTransport(cfg, NewHTTPTransport(HTTPTransportConfig{}), logger, tracer, opts...)
}

// NewWithTransport creates a new client with a custom transport.
// This is useful for injecting mock transports in tests.
func NewWithTransport(cfg Config, transport Transport, logger *otelzap.Logger, tracer trace.Tracer, opts ...Option) *Client {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("huolala")
	}

	c := &Client{
		config:    cfg,
		transport: transport,
		logger:    logger,
		tracer:    tracer,
		now:       time.Now,
		nonce:     NewNonce,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// AccessTokenProvider returns the attached provider, or nil.
func (c *Client) AccessTokenProvider() AccessTokenProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// SetAccessTokenProvider attaches the provider used for authenticated calls.
func (c *Client) SetAccessTokenProvider(p AccessTokenProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = p
}

// APIServer returns the API entry point for the configured environment.
func (c *Client) APIServer() string {
	if c.config.Sandbox() {
		return APISandboxServer
	}
	return APIProductionServer
}

// BuildEnvelope assembles and signs the envelope for an API call.
func (c *Client) BuildEnvelope(ctx context.Context, apiMethod string, needsToken bool, apiData map[string]any) (*Envelope, error) {
	timestamp := c.now().Unix()
	nonce := c.nonce()

	env := NewEnvelope()
	env.Set(FieldAppKey, c.config.AppKey())
	env.SetNumber(FieldTimestamp, strconv.FormatInt(timestamp, 10))
	env.Set(FieldNonce, nonce)
	env.Set(FieldAPIMethod, apiMethod)
	env.Set(FieldAPIVersion, c.config.APIVersion())

	if len(apiData) > 0 {
		encoded, err := encodeAPIData(apiData)
		if err != nil {
			return nil, NewSignatureError(StageEnvelope, "INVALID_API_DATA", "api_data is not JSON encodable").WithCause(err)
		}
		env.Set(FieldAPIData, encoded)
	}

	if needsToken {
		tokens := c.AccessTokenProvider()
		if tokens == nil {
			return nil, NewConfigurationError(StageToken, "NO_TOKEN_PROVIDER", "api method requires an access token but no provider is attached")
		}
		token, err := tokens.Get(ctx)
		if err != nil {
			return nil, annotate(err, KindAuth, StageToken, "TOKEN_UNAVAILABLE", "access token provider failed")
		}
		env.Set(FieldAccessToken, token)
	}

	env.Sign(c.config.AppSecret())
	return env, nil
}

// Call signs and sends an API call and decodes the JSON response.
func (c *Client) Call(ctx context.Context, apiMethod string, needsToken bool, apiData map[string]any) (result Result, err error) {
	ctx, span := c.tracer.Start(ctx, "huolala.Call", trace.WithAttributes(
		attribute.String("huolala.api_method", apiMethod),
		attribute.Bool("huolala.needs_token", needsToken),
		attribute.Bool("huolala.sandbox", c.config.Sandbox()),
	))
	start := c.now()
	defer func() {
		c.finishCall(ctx, span, apiMethod, start, err)
	}()

	env, err := c.BuildEnvelope(ctx, apiMethod, needsToken, apiData)
	if err != nil {
		return nil, err
	}

	body, err := env.MarshalJSON()
	if err != nil {
		return nil, NewSignatureError(StageEnvelope, "ENCODE_FAILED", "failed to encode envelope").WithCause(err)
	}

	c.logger.Ctx(ctx).Debug("Calling Huolala API",
		zap.String("api_method", apiMethod),
		zap.Bool("needs_token", needsToken),
		zap.String("server", c.APIServer()),
	)

	raw, err := c.transport.Send(ctx, c.APIServer(), body)
	if err != nil {
		return nil, annotate(err, KindTransport, StageSend, "REQUEST_FAILED", "api request failed")
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, NewTransportError(StageDecode, "MALFORMED_RESPONSE", "response body is not a JSON object").WithCause(err)
	}
	if result == nil {
		return nil, NewTransportError(StageDecode, "MALFORMED_RESPONSE", "response body is not a JSON object")
	}
	return result, nil
}

func (c *Client) finishCall(ctx context.Context, span trace.Span, apiMethod string, start time.Time, err error) {
	defer span.End()

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Ctx(ctx).Error("Huolala API error",
			zap.String("api_method", apiMethod),
			zap.Error(err),
		)
	}
	if c.metrics != nil {
		c.metrics.RecordCall(apiMethod, status, c.now().Sub(start))
	}
}
