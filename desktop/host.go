// Package desktop is a pushbridge.NotificationPermissionHost for processes
// without a platform notification center, such as the pushbridge CLI.
//
// Permission is answered by a Policy and the device token is either supplied
// up front or generated per launch.
package desktop

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/slush-dev/pushbridge"
)

// Policy decides how permission requests are answered.
type Policy string

const (
	PolicyGrant  Policy = "grant"
	PolicyDeny   Policy = "deny"
	PolicyPrompt Policy = "prompt"
)

// deviceTokenSize matches an APNs device token.
const deviceTokenSize = 32

// ErrNoDelegate is reported when registration starts before a delegate is installed.
var ErrNoDelegate = errors.New("desktop: no notification delegate installed")

// ParsePolicy parses grant, deny or prompt (case-insensitive). Empty means prompt.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyPrompt, nil
	case PolicyGrant, PolicyDeny, PolicyPrompt:
		return p, nil
	default:
		return "", fmt.Errorf("unknown permission policy %q (want grant, deny or prompt)", s)
	}
}

// Option configures Host.
type Option func(*Host)

// WithLogger sets a custom logger for Host.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithPrompt sets where PolicyPrompt reads the answer and writes the question.
func WithPrompt(in io.Reader, out io.Writer) Option {
	return func(h *Host) {
		h.in = in
		h.out = out
	}
}

// WithDeviceToken makes registration report token instead of a random one.
func WithDeviceToken(token pushbridge.DeviceToken) Option {
	return func(h *Host) {
		h.deviceToken = token
	}
}

// WithEntropy sets the random source for generated device tokens.
func WithEntropy(r io.Reader) Option {
	return func(h *Host) {
		h.entropy = r
	}
}

// Host answers permission requests and issues device tokens.
type Host struct {
	policy      Policy
	logger      *slog.Logger
	in          io.Reader
	out         io.Writer
	deviceToken pushbridge.DeviceToken
	entropy     io.Reader

	mu       sync.Mutex
	delegate pushbridge.RemoteNotificationDelegate
	wg       sync.WaitGroup
}

var _ pushbridge.NotificationPermissionHost = (*Host)(nil)

// NewHost creates a Host.
func NewHost(policy Policy, opts ...Option) *Host {
	h := &Host{
		policy:  policy,
		logger:  slog.Default(),
		in:      os.Stdin,
		out:     os.Stderr,
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetNotificationDelegate installs the receiver of registration callbacks.
func (h *Host) SetNotificationDelegate(d pushbridge.RemoteNotificationDelegate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delegate = d
}

// RequestAuthorization answers on a separate goroutine.
func (h *Host) RequestAuthorization(opts pushbridge.PermissionOptions, completion func(granted bool, err error)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		granted, err := h.decide(opts)
		completion(granted, err)
	}()
}

func (h *Host) decide(opts pushbridge.PermissionOptions) (bool, error) {
	switch h.policy {
	case PolicyGrant:
		return true, nil
	case PolicyDeny:
		return false, nil
	case PolicyPrompt:
		return h.prompt(opts)
	default:
		return false, fmt.Errorf("desktop: unknown permission policy %q", h.policy)
	}
}

func (h *Host) prompt(opts pushbridge.PermissionOptions) (bool, error) {
	fmt.Fprintf(h.out, "Allow notifications (%s)? [y/N] ", describe(opts))
	line, err := bufio.NewReader(h.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("desktop: reading permission answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func describe(opts pushbridge.PermissionOptions) string {
	var parts []string
	if opts.Alert {
		parts = append(parts, "alert")
	}
	if opts.Sound {
		parts = append(parts, "sound")
	}
	if opts.Badge {
		parts = append(parts, "badge")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// RegisterForRemoteNotifications issues the device token to the delegate on a
// separate goroutine.
func (h *Host) RegisterForRemoteNotifications() {
	h.mu.Lock()
	d := h.delegate
	h.mu.Unlock()
	if d == nil {
		h.logger.Error("Remote notification registration without delegate", "error", ErrNoDelegate)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		token, err := h.issueToken()
		if err != nil {
			d.HandleRegistrationError(err)
			return
		}
		d.HandleDeviceToken(token)
	}()
}

func (h *Host) issueToken() (pushbridge.DeviceToken, error) {
	if len(h.deviceToken) > 0 {
		return append(pushbridge.DeviceToken(nil), h.deviceToken...), nil
	}
	token := make(pushbridge.DeviceToken, deviceTokenSize)
	if _, err := io.ReadFull(h.entropy, token); err != nil {
		return nil, fmt.Errorf("desktop: generating device token: %w", err)
	}
	return token, nil
}

// Wait blocks until pending callbacks have been delivered.
func (h *Host) Wait() {
	h.wg.Wait()
}
