package cloudobjects

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
)

// DefaultRequestTimeout bounds every outbound call at the transport level,
// independently of any retry policy. A timeout surfaces as a transport
// failure and is not retried.
const DefaultRequestTimeout = 30 * time.Second

// Config holds the client options. ProjectID is the only required field.
type Config struct {
	ProjectID      string
	Region         Region
	URL            string
	Culture        string
	Platform       string
	RequestTimeout time.Duration
	RetryPolicy    *RetryPolicy
}

// Validate checks config invariants before the client is built.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ProjectID, validation.Required, validation.Length(1, 64)),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid client config")
	}
	return nil
}

// Option customizes a Client at construction.
type Option func(*Client)

// WithLogger injects a logger; the default prints to stdout.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTransport replaces the default net/http transport.
func WithTransport(transport Transport) Option {
	return func(c *Client) {
		if transport != nil {
			c.transport = transport
		}
	}
}

// WithStorage replaces the default in-memory storage. Use a durable backend
// (BunStorage, or your own) so sessions survive process restarts.
func WithStorage(storage Storage) Option {
	return func(c *Client) {
		if storage != nil {
			c.storage = storage
		}
	}
}

// WithPushProvider wires the realtime push subsystem. Without one, realtime
// subscriptions fail and everything else works.
func WithPushProvider(push PushProvider) Option {
	return func(c *Client) {
		if push != nil {
			c.push = push
		}
	}
}

// WithTokenDecoder replaces the default JWT decoder.
func WithTokenDecoder(decoder TokenDecoder) Option {
	return func(c *Client) {
		if decoder != nil {
			c.decoder = decoder
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// Client is one owned session with a cloud-object project. Construct with
// New, bootstrap with Initialize. Callers that need the one-instance-per
// account invariant enforce it by holding exactly one Client.
type Client struct {
	cfg       Config
	logger    Logger
	transport Transport
	storage   Storage
	push      PushProvider
	decoder   TokenDecoder
	now       func() time.Time

	resolver    *endpointResolver
	store       *tokenStore
	tokens      *tokenLifecycle
	caller      *retryableCaller
	broadcaster *statusBroadcaster
	realtime    *realtimeManager
	registry    *objectRegistry

	mu          sync.Mutex
	initialized bool
}

// New builds a Client from config and options. The client owns no global
// state; multiple clients for different projects coexist freely.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	client := &Client{
		cfg:     cfg,
		logger:  defLogger{},
		storage: NewMemoryStorage(),
		decoder: NewTokenDecoder(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.transport == nil {
		client.transport = NewHTTPTransport(cfg.RequestTimeout)
	}

	client.resolver = newEndpointResolver(cfg)
	client.store = newTokenStore(client.storage, cfg.ProjectID)
	client.tokens = newTokenLifecycle(client.store, client.decoder, client.transport,
		client.resolver, client.logger, client.now)
	client.caller = newRetryableCaller(client.transport, client.tokens, client.logger)
	client.broadcaster = newStatusBroadcaster(client.logger)
	client.realtime = newRealtimeManager(client.push, client.tokens, cfg.ProjectID, client.logger)
	client.registry = newObjectRegistry(client.realtime, client.logger)

	client.tokens.onState = client.broadcaster.Publish

	return client, nil
}

// Initialize bootstraps the session: loads the stored credential, derives
// the initial session state, and activates the status broadcaster. It is
// the explicit counterpart of subscribe-triggers-setup designs; nothing
// starts implicitly. Idempotent.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}

	cred, err := c.store.Load(ctx)
	if err != nil {
		return err
	}

	c.broadcaster.activate(deriveSessionState(cred, c.decoder, c.now()))
	c.initialized = true
	c.logger.Debug("client initialized for project %s", c.cfg.ProjectID)
	return nil
}

func (c *Client) ensureInitialized() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

// AuthStatus returns the current session state.
func (c *Client) AuthStatus() (SessionState, error) {
	return c.broadcaster.Current()
}

// SubscribeAuthStatus registers a consumer of session transitions. The
// current state is delivered first. Cancel detaches the subscriber.
func (c *Client) SubscribeAuthStatus(buffer int) (<-chan SessionState, func(), error) {
	return c.broadcaster.Subscribe(buffer)
}

// AuthenticateWithCustomToken exchanges a custom token for a session
// credential. Re-authenticating as a different subject releases every live
// object and realtime channel first: the new identity starts from a clean
// slate.
func (c *Client) AuthenticateWithCustomToken(ctx context.Context, customToken string) (*Credential, error) {
	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}

	incoming, err := c.decoder.Decode(customToken)
	if err != nil {
		return nil, err
	}

	current, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil {
		claims, err := current.AccessClaims(c.decoder)
		if err != nil || claims.Subject != incoming.Subject {
			c.registry.releaseAll()
		}
	}

	return c.tokens.SignInWithCustomToken(ctx, customToken)
}

// SignOut tears the session down: best-effort remote notification, local
// credential cleared, every object and realtime listener released, and the
// signed-out transition announced.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.ensureInitialized(); err != nil {
		return err
	}

	c.registry.releaseAll()
	return c.tokens.SignOut(ctx)
}

// GetCloudObject resolves an object handle. Without an instance id or key
// the server assigns a fresh instance. Resolving a (class, instance) pair
// that is already registered returns the existing handle unchanged.
func (c *Client) GetCloudObject(ctx context.Context, opts CloudObjectOptions) (*CloudObject, error) {
	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}
	if opts.ClassID == "" {
		return nil, errors.New("cloud object requires a class id", errors.CategoryBadInput)
	}

	if opts.InstanceID != "" {
		if existing, ok := c.registry.lookup(opts.ClassID, opts.InstanceID); ok {
			return existing, nil
		}
	}

	resolved, err := c.resolveInstance(ctx, opts)
	if err != nil {
		return nil, err
	}

	candidate := &CloudObject{
		ClassID:       opts.ClassID,
		InstanceID:    resolved.InstanceID,
		IsNewInstance: resolved.IsNewInstance,
		Methods:       resolved.Methods,
		resolver:      c.resolver,
		caller:        c.caller,
		realtime:      c.realtime,
		policy:        c.defaultPolicy(),
	}
	return c.registry.adopt(candidate), nil
}

type instanceResolveResponse struct {
	InstanceID    string             `json:"instanceId"`
	IsNewInstance bool               `json:"newInstance"`
	Methods       []MethodDefinition `json:"methods"`
}

func (c *Client) resolveInstance(ctx context.Context, opts CloudObjectOptions) (*instanceResolveResponse, error) {
	target, err := c.resolver.Resolve(OpInstanceResolve, EndpointParams{
		ClassID:    opts.ClassID,
		InstanceID: opts.InstanceID,
		KeyName:    opts.KeyName,
		KeyValue:   opts.KeyValue,
		HTTPMethod: http.MethodGet,
		Query:      opts.Query,
		Body:       opts.Body,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.caller.Execute(ctx, target.String(),
		RequestSpec{Method: http.MethodGet, Headers: opts.Headers},
		c.defaultPolicy().merged(opts.RetryPolicy))
	if err != nil {
		return nil, err
	}

	resolved := &instanceResolveResponse{}
	if err := json.Unmarshal(resp.Body, resolved); err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "instance resolution returned an unreadable body")
	}
	if resolved.InstanceID == "" {
		resolved.InstanceID = opts.InstanceID
	}
	if resolved.InstanceID == "" {
		return nil, errors.New("instance resolution returned no instance id", errors.CategoryExternal)
	}
	return resolved, nil
}

// MakeStaticCall invokes a class-level method with no instance.
func (c *Client) MakeStaticCall(ctx context.Context, classID string, opts CallOptions) (*Response, error) {
	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}
	if classID == "" || opts.Method == "" {
		return nil, errors.New("static call requires a class id and method", errors.CategoryBadInput)
	}

	target, err := c.resolver.Resolve(OpStaticCall, EndpointParams{
		ClassID:    classID,
		Method:     opts.Method,
		PathParams: opts.PathParams,
		HTTPMethod: opts.HTTPMethod,
		Query:      opts.Query,
		Body:       opts.Body,
	})
	if err != nil {
		return nil, err
	}

	spec, err := buildRequestSpec(opts)
	if err != nil {
		return nil, err
	}
	return c.caller.Execute(ctx, target.String(), spec, c.defaultPolicy().merged(opts.RetryPolicy))
}

// ListInstances returns the known instance ids of a class.
func (c *Client) ListInstances(ctx context.Context, classID string) ([]string, error) {
	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}
	if classID == "" {
		return nil, errors.New("list requires a class id", errors.CategoryBadInput)
	}

	target, err := c.resolver.Resolve(OpListInstances, EndpointParams{ClassID: classID})
	if err != nil {
		return nil, err
	}

	resp, err := c.caller.Execute(ctx, target.String(),
		RequestSpec{Method: http.MethodGet}, c.defaultPolicy())
	if err != nil {
		return nil, err
	}

	listing := struct {
		InstanceIDs []string `json:"instanceIds"`
	}{}
	if err := json.Unmarshal(resp.Body, &listing); err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "instance listing returned an unreadable body")
	}
	return listing.InstanceIDs, nil
}

// ReleaseAll closes every live object handle and realtime listener without
// touching the session credential.
func (c *Client) ReleaseAll() {
	c.registry.releaseAll()
}

// Close releases all objects and completes the status stream. The client
// is unusable afterwards.
func (c *Client) Close() {
	c.registry.releaseAll()
	c.broadcaster.Close()
}

func (c *Client) defaultPolicy() RetryPolicy {
	return DefaultRetryPolicy.merged(c.cfg.RetryPolicy)
}
