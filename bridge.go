package pushbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the registration progress of a Bridge within one process lifetime.
type State int

const (
	StateUninitialized State = iota
	StatePermissionRequested
	StateRegistered
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePermissionRequested:
		return "permission_requested"
	case StateRegistered:
		return "registered"
	case StateDenied:
		return "denied"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RemoteNotificationDelegate receives the outcome of remote-notification registration.
type RemoteNotificationDelegate interface {
	HandleDeviceToken(token DeviceToken)
	HandleRegistrationError(err error)
}

// NotificationPermissionHost is the OS notification surface the Bridge depends on.
type NotificationPermissionHost interface {
	// SetNotificationDelegate installs the receiver of registration callbacks.
	SetNotificationDelegate(d RemoteNotificationDelegate)

	// RequestAuthorization asks the user for the given capabilities. The
	// completion may be invoked on any goroutine.
	RequestAuthorization(opts PermissionOptions, completion func(granted bool, err error))

	// RegisterForRemoteNotifications starts device token acquisition. It must be
	// called from the main execution context.
	RegisterForRemoteNotifications()
}

// TokenDelegate receives backend tokens. A nil token means the backend has none.
type TokenDelegate interface {
	HandleBackendToken(token *string)
}

// MessagingBackend is the messaging SDK the device token is handed to.
type MessagingBackend interface {
	Configure(ctx context.Context) error
	SetTokenDelegate(d TokenDelegate)
	SetDeviceToken(token DeviceToken)
}

// Executor runs functions on a specific execution context.
type Executor interface {
	Post(fn func())
}

// Publisher delivers registration events to the rest of the application.
type Publisher interface {
	Publish(ev RegistrationEvent)
}

// Option configures Bridge.
type Option func(*Bridge)

// WithLogger sets a custom logger for Bridge.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithPermissionOptions overrides the capabilities requested at launch.
func WithPermissionOptions(opts PermissionOptions) Option {
	return func(b *Bridge) {
		b.permission = opts
	}
}

// WithClock sets the time source used to stamp registration events.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		b.now = now
	}
}

// Bridge sequences OS and backend registration calls and publishes backend tokens.
type Bridge struct {
	host       NotificationPermissionHost
	backend    MessagingBackend
	main       Executor
	publisher  Publisher
	permission PermissionOptions
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	launched bool
	state    State
	done     chan struct{}
}

// New creates a Bridge. Nothing happens until Launch is called.
func New(host NotificationPermissionHost, backend MessagingBackend, main Executor, publisher Publisher, opts ...Option) *Bridge {
	b := &Bridge{
		host:       host,
		backend:    backend,
		main:       main,
		publisher:  publisher,
		permission: DefaultPermissionOptions(),
		logger:     slog.Default(),
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current registration state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Done is closed once the permission outcome is known.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Launch runs the startup sequence. It returns as soon as permission has been
// requested; the outcome arrives asynchronously. Only the first call has any
// effect. A backend configuration failure is returned wrapped in ErrBackendInit
// and leaves the Bridge uninitialized.
func (b *Bridge) Launch(ctx context.Context) error {
	b.mu.Lock()
	if b.launched {
		b.mu.Unlock()
		b.logger.Debug("Bridge already launched, ignoring")
		return nil
	}
	b.launched = true
	b.mu.Unlock()

	if err := b.backend.Configure(ctx); err != nil {
		b.logger.Error("Messaging backend configuration failed", "error", err)
		return fmt.Errorf("%w: %w", ErrBackendInit, err)
	}
	b.logger.Info("Messaging backend configured")

	b.host.SetNotificationDelegate(b)
	b.backend.SetTokenDelegate(b)
	b.logger.Debug("Delegates installed")

	b.setState(StatePermissionRequested)
	b.host.RequestAuthorization(b.permission, b.handleAuthorization)
	return nil
}

// handleAuthorization is the permission completion. It may run on any goroutine.
func (b *Bridge) handleAuthorization(granted bool, err error) {
	if !granted {
		attrs := []any{"error", ErrPermissionDenied}
		if err != nil {
			attrs = []any{"error", fmt.Errorf("%w: %w", ErrPermissionDenied, err)}
		}
		if b.finish(StateDenied) {
			b.logger.Warn("Notification permission denied", attrs...)
		}
		return
	}

	if !b.finish(StateRegistered) {
		return
	}
	b.logger.Info("Notification permission granted")
	b.main.Post(b.host.RegisterForRemoteNotifications)
}

// HandleDeviceToken forwards the OS device token to the messaging backend.
func (b *Bridge) HandleDeviceToken(token DeviceToken) {
	b.logger.Info("Registered for remote notifications")
	b.logger.Debug("Device token", "token", token.String())
	b.backend.SetDeviceToken(token)
}

// HandleRegistrationError logs an OS registration failure. There is no retry.
func (b *Bridge) HandleRegistrationError(err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	b.logger.Error("Failed to register for remote notifications", "error", fmt.Errorf("%w: %w", ErrRegistrationFailed, err))
}

// HandleBackendToken publishes one RegistrationEvent per call.
func (b *Bridge) HandleBackendToken(token *string) {
	value := ""
	if token != nil {
		value = *token
	}
	b.logger.Info("Backend registration token received", "token_prefix", truncate(value, 20))
	b.publisher.Publish(RegistrationEvent{
		ID:       uuid.New(),
		Token:    value,
		IssuedAt: b.now(),
	})
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// finish records a terminal permission outcome and releases Done. It reports
// false when an outcome was already recorded.
func (b *Bridge) finish(s State) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StatePermissionRequested {
		return false
	}
	b.state = s
	close(b.done)
	return true
}

// truncate returns the first maxLen characters of s, or s itself if shorter.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
