package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/slush-dev/pushbridge"
)

// ErrMisconfigured is returned by Configure when required settings are missing.
var ErrMisconfigured = errors.New("fcm: misconfigured")

var (
	errNotConfigured    = errors.New("fcm: not configured: call Configure() first")
	errEmptyDeviceToken = errors.New("fcm: empty device token")
	errClosed           = errors.New("fcm: client closed")
)

// defaultRegisterTimeout bounds a registration started by SetDeviceToken.
const defaultRegisterTimeout = 60 * time.Second

// Config identifies the Firebase project and app.
type Config struct {
	SenderID string
	AppID    string

	// Sandbox marks device tokens issued by the development APNs environment.
	Sandbox bool

	CheckinURL  string
	RegisterURL string
}

// Credentials is the persisted registration state.
type Credentials struct {
	Raw         json.RawMessage `json:"raw"` // GCM credentials (androidId, securityToken)
	Token       string          `json:"token"`
	DeviceToken string          `json:"device_token"`
	SenderID    string          `json:"sender_id"`
}

// Option configures Client.
type Option func(*Client)

// WithLogger sets a custom logger for Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client for FCM registration.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithDevice overrides the device profile presented to GCM.
func WithDevice(device DeviceProfile) Option {
	return func(c *Client) {
		c.device = device
	}
}

// WithRegisterTimeout bounds registrations started by SetDeviceToken.
func WithRegisterTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.registerTimeout = d
	}
}

// WithRetry sets the backoff policy for registrations started by
// SetDeviceToken. newBackOff is called once per registration.
func WithRetry(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = newBackOff
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 15 * time.Second
	return b
}

// Client is a pushbridge.MessagingBackend backed by FCM.
type Client struct {
	cfg             Config
	store           credentialStore
	logger          *slog.Logger
	httpClient      *http.Client
	device          DeviceProfile
	registerTimeout time.Duration
	newBackOff      func() backoff.BackOff

	mu          sync.Mutex
	configured  bool
	closed      bool
	credentials *Credentials
	delegate    pushbridge.TokenDelegate

	// base parents background registrations; Close cancels it.
	base     context.Context
	stop     context.CancelFunc
	inflight sync.WaitGroup
}

var _ pushbridge.MessagingBackend = (*Client)(nil)

// NewClient creates a new Client. Call Configure before use.
func NewClient(sessionDir string, cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:             cfg,
		store:           newCredentialStore(sessionDir),
		logger:          slog.Default(),
		httpClient:      http.DefaultClient,
		device:          DefaultDeviceProfile(),
		registerTimeout: defaultRegisterTimeout,
		newBackOff:      defaultBackOff,
	}
	c.base, c.stop = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure validates the configuration and loads persisted credentials.
// Calling it again after success is a no-op.
func (c *Client) Configure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.configured {
		return nil
	}
	if c.cfg.SenderID == "" {
		return fmt.Errorf("%w: sender ID is required", ErrMisconfigured)
	}
	if c.cfg.AppID == "" {
		return fmt.Errorf("%w: app ID is required", ErrMisconfigured)
	}

	creds, err := c.store.load()
	switch {
	case err == nil:
		c.credentials = creds
	case errors.Is(err, os.ErrNotExist):
	default:
		c.logger.Warn("Ignoring persisted FCM credentials; will register from scratch", "error", err)
	}

	c.configured = true
	c.logger.Debug("FCM configured", "sender_id", c.cfg.SenderID, "app_id", c.cfg.AppID)
	return nil
}

// SetTokenDelegate installs the receiver of FCM tokens, replacing any previous one.
func (c *Client) SetTokenDelegate(d pushbridge.TokenDelegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

// SetDeviceToken starts registration of the device token in the background.
// Transient failures are retried until the register timeout; the delegate
// only hears about successes.
func (c *Client) SetDeviceToken(token pushbridge.DeviceToken) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Error("FCM registration failed", "error", errClosed)
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(c.base, c.registerTimeout)
		defer cancel()

		op := func() error {
			_, err := c.Register(ctx, token)
			if errors.Is(err, errNotConfigured) || errors.Is(err, errEmptyDeviceToken) || isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		notify := func(err error, next time.Duration) {
			c.logger.Warn("FCM registration attempt failed, retrying", "error", err, "retry_in", next)
		}
		if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
			c.logger.Error("FCM registration failed", "error", err)
		}
	}()
}

// Wait blocks until registrations started by SetDeviceToken have finished.
func (c *Client) Wait() {
	c.inflight.Wait()
}

// Close cancels registrations started by SetDeviceToken and waits for them
// to return. Later SetDeviceToken calls fail immediately.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop()
	c.inflight.Wait()
}

// Register obtains an FCM token for the device token and reports it to the
// delegate. A persisted token issued for the same device token and sender is
// reused without network calls.
func (c *Client) Register(ctx context.Context, deviceToken pushbridge.DeviceToken) (string, error) {
	token, err := c.register(ctx, deviceToken)
	if err != nil {
		return "", err
	}
	c.notify(token)
	return token, nil
}

func (c *Client) register(ctx context.Context, deviceToken pushbridge.DeviceToken) (string, error) {
	if len(deviceToken) == 0 {
		return "", errEmptyDeviceToken
	}
	hexToken := deviceToken.String()

	c.mu.Lock()
	if !c.configured {
		c.mu.Unlock()
		return "", errNotConfigured
	}
	if creds := c.credentials; creds != nil && creds.Token != "" &&
		creds.DeviceToken == hexToken && creds.SenderID == c.cfg.SenderID {
		c.mu.Unlock()
		c.logger.Debug("FCM credentials already exist for device token, reusing token")
		return creds.Token, nil
	}
	var priorRaw json.RawMessage
	if c.credentials != nil {
		priorRaw = c.credentials.Raw
	}
	c.mu.Unlock()

	var prior gcmCredentials
	if len(priorRaw) > 0 {
		if err := json.Unmarshal(priorRaw, &prior); err != nil {
			c.logger.Warn("ignoring unreadable GCM credentials", "error", err)
			prior = gcmCredentials{}
		}
	}

	c.logger.Debug("Starting FCM registration", "sender_id", c.cfg.SenderID, "recheckin", prior.AndroidID != 0)
	httpClient := c.transport()

	// Step 1: GCM check-in
	androidID, securityToken, err := gcmCheckin(ctx, httpClient, c.checkinURL(), prior.AndroidID, prior.SecurityToken, c.device)
	if err != nil {
		return "", fmt.Errorf("FCM registration failed (checkin): %w", err)
	}
	c.logger.Debug("GCM checkin complete", "androidId", androidID)

	// Step 2: register the device token
	fcmToken, err := gcmRegister(ctx, httpClient, c.registerURL(), registration{
		AndroidID:     androidID,
		SecurityToken: securityToken,
		SenderID:      c.cfg.SenderID,
		AppID:         c.cfg.AppID,
		APNSToken:     hexToken,
		Sandbox:       c.cfg.Sandbox,
		Device:        c.device,
	})
	if err != nil {
		return "", fmt.Errorf("FCM registration failed (register): %w", err)
	}
	if fcmToken == "" {
		return "", fmt.Errorf("FCM registration returned empty token")
	}

	// Step 3: commit and persist
	rawCreds, err := json.Marshal(gcmCredentials{AndroidID: androidID, SecurityToken: securityToken})
	if err != nil {
		return "", fmt.Errorf("serializing GCM credentials: %w", err)
	}
	creds := &Credentials{
		Raw:         rawCreds,
		Token:       fcmToken,
		DeviceToken: hexToken,
		SenderID:    c.cfg.SenderID,
	}
	c.mu.Lock()
	c.credentials = creds
	c.mu.Unlock()
	if err := c.store.save(creds); err != nil {
		c.logger.Error("Failed to save FCM credentials", "error", err)
	}

	c.logger.Info("FCM registration complete", "token_prefix", truncate(fcmToken, 20))
	return fcmToken, nil
}

func (c *Client) notify(token string) {
	c.mu.Lock()
	d := c.delegate
	c.mu.Unlock()
	if d != nil {
		d.HandleBackendToken(&token)
	}
}

// Token returns the current FCM token (empty if not registered).
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.credentials == nil {
		return ""
	}
	return c.credentials.Token
}

// Credentials returns a copy of the current credentials (nil if not registered).
func (c *Client) Credentials() *Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.credentials == nil {
		return nil
	}
	cpy := *c.credentials
	cpy.Raw = make(json.RawMessage, len(c.credentials.Raw))
	copy(cpy.Raw, c.credentials.Raw)
	return &cpy
}

func (c *Client) checkinURL() string {
	if c.cfg.CheckinURL != "" {
		return c.cfg.CheckinURL
	}
	return DefaultCheckinURL
}

func (c *Client) registerURL() string {
	if c.cfg.RegisterURL != "" {
		return c.cfg.RegisterURL
	}
	return DefaultRegisterURL
}

// transport returns the HTTP client for one registration, logging traffic
// when debug logging is enabled.
func (c *Client) transport() *http.Client {
	if c.logger.Enabled(context.Background(), slog.LevelDebug) {
		return newDebugClient(c.httpClient, c.logger)
	}
	return c.httpClient
}
