package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/config"
	"github.com/slush-dev/pushbridge/desktop"
	"github.com/slush-dev/pushbridge/fcm"
	"github.com/slush-dev/pushbridge/mainthread"
)

// errFinished stops a session without reporting an error.
var errFinished = errors.New("session finished")

// session is one wired bridge: host, backend, main loop and token bus.
type session struct {
	cfg     *config.Config
	bus     *pushbridge.TokenBus
	loop    *mainthread.Loop
	host    *desktop.Host
	backend *fcm.Client
	bridge  *pushbridge.Bridge
	logger  *slog.Logger

	// exitOnDenial ends run with ErrPermissionDenied once permission is refused.
	exitOnDenial bool
}

type sessionParams struct {
	dir        string
	logger     *slog.Logger
	in         io.Reader
	out        io.Writer
	httpClient *http.Client
}

func newSession(p sessionParams) (*session, error) {
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.in == nil {
		p.in = os.Stdin
	}
	if p.out == nil {
		p.out = os.Stderr
	}

	cfg, err := config.Load(p.dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", config.Path(p.dir), err)
	}

	hostOpts, err := cfg.HostOptions()
	if err != nil {
		return nil, err
	}
	hostOpts = append(hostOpts,
		desktop.WithLogger(p.logger),
		desktop.WithPrompt(p.in, p.out),
	)

	fcmOpts := []fcm.Option{fcm.WithLogger(p.logger)}
	if p.httpClient != nil {
		fcmOpts = append(fcmOpts, fcm.WithHTTPClient(p.httpClient))
	}

	s := &session{
		cfg:     cfg,
		bus:     pushbridge.NewTokenBus(pushbridge.WithBusLogger(p.logger)),
		loop:    mainthread.New(),
		host:    desktop.NewHost(cfg.Policy(), hostOpts...),
		backend: fcm.NewClient(p.dir, cfg.FCM(), fcmOpts...),
		logger:  p.logger,

		exitOnDenial: true,
	}
	s.bridge = pushbridge.New(s.host, s.backend, s.loop, s.bus,
		pushbridge.WithLogger(p.logger),
		pushbridge.WithPermissionOptions(cfg.PermissionOptions()),
	)
	return s, nil
}

// run launches the bridge on the main loop and drives the loop on the calling
// goroutine until ctx is cancelled. handle sees every event published before
// cancellation; the session ends when it returns false. run returns only after
// in-flight registrations have been cancelled and handle has returned. The
// returned error is the cancellation cause, or nil for an interrupt or a
// normal finish.
func (s *session) run(ctx context.Context, handle func(pushbridge.RegistrationEvent) bool) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	handled := make(chan struct{})
	go func() {
		defer close(handled)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok || ctx.Err() != nil {
					return
				}
				if !handle(ev) {
					cancel(errFinished)
					return
				}
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.bridge.Done():
			if s.exitOnDenial && s.bridge.State() == pushbridge.StateDenied {
				cancel(pushbridge.ErrPermissionDenied)
			}
		}
	}()

	s.loop.Post(func() {
		if err := s.bridge.Launch(ctx); err != nil {
			cancel(err)
		}
	})
	s.loop.Run(ctx)

	s.backend.Close()
	s.bus.Close()
	<-handled

	err := context.Cause(ctx)
	if errors.Is(err, errFinished) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
