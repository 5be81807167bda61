package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/slush-dev/pushbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type tokenRecorder struct {
	mu     sync.Mutex
	tokens []*string
	got    chan struct{}
}

func newTokenRecorder() *tokenRecorder {
	return &tokenRecorder{got: make(chan struct{}, 16)}
}

func (r *tokenRecorder) HandleBackendToken(token *string) {
	r.mu.Lock()
	r.tokens = append(r.tokens, token)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *tokenRecorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, tok := range r.tokens {
		if tok == nil {
			out = append(out, "<nil>")
			continue
		}
		out = append(out, *tok)
	}
	return out
}

// fakeGCM serves the check-in and register3 endpoints.
type fakeGCM struct {
	checkin  *httptest.Server
	register *httptest.Server

	checkins      atomic.Int32
	registrations atomic.Int32
	lastCheckin   atomic.Value // []byte
	lastForm      atomic.Value // map[string]string
	token         string
}

func newFakeGCM(t *testing.T, token string) *fakeGCM {
	t.Helper()
	g := &fakeGCM{token: token}
	g.checkin = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.checkins.Add(1)
		body, _ := io.ReadAll(r.Body)
		g.lastCheckin.Store(body)
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.Write(encodeCheckinResponse(999, 888))
	}))
	g.register = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.registrations.Add(1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		g.lastForm.Store(form)
		fmt.Fprintf(w, "token=%s", g.token)
	}))
	t.Cleanup(g.checkin.Close)
	t.Cleanup(g.register.Close)
	return g
}

func (g *fakeGCM) config() Config {
	return Config{
		SenderID:    "1234567890",
		AppID:       "com.example.app",
		CheckinURL:  g.checkin.URL,
		RegisterURL: g.register.URL,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewClient(t *testing.T) {
	dir := t.TempDir()
	client := NewClient(dir, Config{})

	assert.Equal(t, filepath.Join(dir, "fcm_credentials.json"), client.store.path)
	assert.Equal(t, http.DefaultClient, client.httpClient)
	assert.Equal(t, DefaultDeviceProfile(), client.device)
	assert.Equal(t, defaultRegisterTimeout, client.registerTimeout)
	assert.NotNil(t, client.newBackOff)
	assert.NotNil(t, client.logger)
	assert.Nil(t, client.Credentials())
	assert.Empty(t, client.Token())
}

func TestConfigure_Misconfigured(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"no sender", Config{AppID: "com.example.app"}, "sender ID"},
		{"no app", Config{SenderID: "123"}, "app ID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewClient(t.TempDir(), tc.cfg).Configure(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMisconfigured)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfigure_Idempotent(t *testing.T) {
	client := NewClient(t.TempDir(), Config{SenderID: "1", AppID: "a"}, WithLogger(quietLogger()))
	require.NoError(t, client.Configure(context.Background()))
	require.NoError(t, client.Configure(context.Background()))
}

func TestConfigure_CorruptCredentials(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fcm_credentials.json"), []byte("{not json"), 0o600))

	client := NewClient(dir, Config{SenderID: "1", AppID: "a"}, WithLogger(quietLogger()))
	require.NoError(t, client.Configure(context.Background()))
	assert.Nil(t, client.Credentials())
}

func TestRegister_NotConfigured(t *testing.T) {
	client := NewClient(t.TempDir(), Config{SenderID: "1", AppID: "a"})
	_, err := client.Register(context.Background(), pushbridge.DeviceToken{0x01})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestRegister_EmptyDeviceToken(t *testing.T) {
	client := NewClient(t.TempDir(), Config{SenderID: "1", AppID: "a"}, WithLogger(quietLogger()))
	require.NoError(t, client.Configure(context.Background()))
	_, err := client.Register(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty device token")
}

func TestRegister_FreshRegistration(t *testing.T) {
	gcm := newFakeGCM(t, "fcm-token-abc")
	dir := t.TempDir()
	client := NewClient(dir, gcm.config(), WithLogger(quietLogger()))
	require.NoError(t, client.Configure(context.Background()))

	rec := newTokenRecorder()
	client.SetTokenDelegate(rec)

	token, err := client.Register(context.Background(), pushbridge.DeviceToken{0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	assert.Equal(t, "fcm-token-abc", token)
	assert.Equal(t, []string{"fcm-token-abc"}, rec.values())

	form := gcm.lastForm.Load().(map[string]string)
	assert.Equal(t, "aabbcc", form["X-apns_token"])
	assert.Equal(t, "0", form["X-apns_sandbox"])
	assert.Equal(t, "999", form["device"])

	reloaded := NewClient(dir, gcm.config(), WithLogger(quietLogger()))
	require.NoError(t, reloaded.Configure(context.Background()))
	assert.Equal(t, "fcm-token-abc", reloaded.Token())
	creds := reloaded.Credentials()
	require.NotNil(t, creds)
	assert.Equal(t, "aabbcc", creds.DeviceToken)
	assert.Equal(t, "1234567890", creds.SenderID)

	var gcmCreds gcmCredentials
	require.NoError(t, json.Unmarshal(creds.Raw, &gcmCreds))
	assert.Equal(t, uint64(999), gcmCreds.AndroidID)
	assert.Equal(t, uint64(888), gcmCreds.SecurityToken)

	info, err := os.Stat(filepath.Join(dir, "fcm_credentials.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRegister_ReusesPersistedToken(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, newCredentialStore(dir).save(&Credentials{
		Raw:         json.RawMessage(`{"androidId":1,"securityToken":2}`),
		Token:       "existing-token",
		DeviceToken: "aabbcc",
		SenderID:    "1234567890",
	}))

	httpCalls := 0
	client := NewClient(dir, Config{SenderID: "1234567890", AppID: "com.example.app"},
		WithLogger(quietLogger()),
		WithHTTPClient(&http.Client{
			Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
				httpCalls++
				return nil, errors.New("unexpected network call")
			}),
		}))
	require.NoError(t, client.Configure(context.Background()))
	rec := newTokenRecorder()
	client.SetTokenDelegate(rec)

	token, err := client.Register(context.Background(), pushbridge.DeviceToken{0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	assert.Equal(t, "existing-token", token)
	assert.Equal(t, 0, httpCalls)
	// The delegate hears about the token on every launch.
	assert.Equal(t, []string{"existing-token"}, rec.values())
}

func TestRegister_NewDeviceTokenRechecksIn(t *testing.T) {
	gcm := newFakeGCM(t, "fcm-token-new")
	dir := t.TempDir()
	require.NoError(t, newCredentialStore(dir).save(&Credentials{
		Raw:         json.RawMessage(`{"androidId":999,"securityToken":888}`),
		Token:       "old-token",
		DeviceToken: "010203",
		SenderID:    "1234567890",
	}))

	client := NewClient(dir, gcm.config(), WithLogger(quietLogger()))
	require.NoError(t, client.Configure(context.Background()))

	token, err := client.Register(context.Background(), pushbridge.DeviceToken{0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	assert.Equal(t, "fcm-token-new", token)
	assert.Equal(t, int32(1), gcm.checkins.Load())

	fields := decodeWire(t, gcm.lastCheckin.Load().([]byte))
	assert.Equal(t, uint64(999), one(t, fields, reqFieldID).u64)
	assert.Equal(t, uint64(888), one(t, fields, reqFieldSecurityToken).u64)
	assert.Equal(t, "aabbcc", client.Credentials().DeviceToken)
}

func TestRegister_EmptyTokenResponse(t *testing.T) {
	gcm := newFakeGCM(t, "")
	client := NewClient(t.TempDir(), gcm.config(), WithLogger(quietLogger()))
	require.NoError(t, client.Configure(context.Background()))
	rec := newTokenRecorder()
	client.SetTokenDelegate(rec)

	_, err := client.Register(context.Background(), pushbridge.DeviceToken{0x01})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty token")
	assert.Empty(t, rec.values())
	assert.Nil(t, client.Credentials())
}

func TestRegister_CheckinFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(t.TempDir(), Config{SenderID: "1", AppID: "a", CheckinURL: srv.URL}, WithLogger(quietLogger()))
	require.NoError(t, client.Configure(context.Background()))

	_, err := client.Register(context.Background(), pushbridge.DeviceToken{0x01})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkin")
	assert.Contains(t, err.Error(), "403")
}

func TestSetDeviceToken_Async(t *testing.T) {
	gcm := newFakeGCM(t, "tok_123")
	client := NewClient(t.TempDir(), gcm.config(), WithLogger(quietLogger()))
	require.NoError(t, client.Configure(context.Background()))
	rec := newTokenRecorder()
	client.SetTokenDelegate(rec)

	client.SetDeviceToken(pushbridge.DeviceToken{0xAA, 0xBB, 0xCC})

	select {
	case <-rec.got:
	case <-time.After(5 * time.Second):
		t.Fatal("delegate not notified")
	}
	client.Wait()
	assert.Equal(t, []string{"tok_123"}, rec.values())
	assert.Equal(t, int32(1), gcm.registrations.Load())
}

func TestSetDeviceToken_FailureNotReported(t *testing.T) {
	client := NewClient(t.TempDir(), Config{SenderID: "1", AppID: "a"},
		WithLogger(quietLogger()),
		WithRetry(func() backoff.BackOff { return &backoff.StopBackOff{} }),
		WithHTTPClient(&http.Client{
			Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("network down")
			}),
		}))
	require.NoError(t, client.Configure(context.Background()))
	rec := newTokenRecorder()
	client.SetTokenDelegate(rec)

	client.SetDeviceToken(pushbridge.DeviceToken{0x01})
	client.Wait()
	assert.Empty(t, rec.values())
}

func TestSetDeviceToken_RetriesTransientFailure(t *testing.T) {
	gcm := newFakeGCM(t, "tok_retry")
	var attempts atomic.Int32
	client := NewClient(t.TempDir(), gcm.config(),
		WithLogger(quietLogger()),
		WithRetry(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }),
		WithHTTPClient(&http.Client{
			Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
				if attempts.Add(1) == 1 {
					return nil, errors.New("connection reset")
				}
				return http.DefaultTransport.RoundTrip(req)
			}),
		}))
	require.NoError(t, client.Configure(context.Background()))
	rec := newTokenRecorder()
	client.SetTokenDelegate(rec)

	client.SetDeviceToken(pushbridge.DeviceToken{0x0A})
	client.Wait()

	assert.Equal(t, []string{"tok_retry"}, rec.values())
	assert.Equal(t, int32(1), gcm.checkins.Load())
	assert.Equal(t, int32(1), gcm.registrations.Load())
}

func TestSetDeviceToken_EmptyTokenNotRetried(t *testing.T) {
	gcm := newFakeGCM(t, "tok")
	var attempts atomic.Int32
	client := NewClient(t.TempDir(), gcm.config(),
		WithLogger(quietLogger()),
		WithRegisterTimeout(5*time.Second),
		WithRetry(func() backoff.BackOff {
			attempts.Add(1)
			return backoff.NewConstantBackOff(time.Millisecond)
		}),
	)
	require.NoError(t, client.Configure(context.Background()))
	rec := newTokenRecorder()
	client.SetTokenDelegate(rec)

	start := time.Now()
	client.SetDeviceToken(nil)
	client.Wait()

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Empty(t, rec.values())
	assert.Zero(t, gcm.checkins.Load())
}

func TestSetDeviceToken_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(t.TempDir(), Config{
		SenderID:    "1",
		AppID:       "a",
		CheckinURL:  srv.URL,
		RegisterURL: srv.URL,
	},
		WithLogger(quietLogger()),
		WithRetry(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }),
	)
	require.NoError(t, client.Configure(context.Background()))

	client.SetDeviceToken(pushbridge.DeviceToken{0x01})
	client.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestClose_CancelsRetryingRegistration(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(t.TempDir(), Config{
		SenderID:    "1",
		AppID:       "a",
		CheckinURL:  srv.URL,
		RegisterURL: srv.URL,
	},
		WithLogger(quietLogger()),
		WithRetry(func() backoff.BackOff { return backoff.NewConstantBackOff(20 * time.Millisecond) }),
	)
	require.NoError(t, client.Configure(context.Background()))
	rec := newTokenRecorder()
	client.SetTokenDelegate(rec)

	client.SetDeviceToken(pushbridge.DeviceToken{0x01})
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 5*time.Millisecond)

	start := time.Now()
	client.Close()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, rec.values())

	after := calls.Load()
	client.SetDeviceToken(pushbridge.DeviceToken{0x02})
	client.Wait()
	assert.Equal(t, after, calls.Load())
}

func TestRegister_AccessorsDoNotBlockOnNetwork(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(t.TempDir(), Config{
		SenderID:    "1",
		AppID:       "a",
		CheckinURL:  srv.URL,
		RegisterURL: srv.URL,
	}, WithLogger(quietLogger()))
	require.NoError(t, client.Configure(context.Background()))

	go client.Register(context.Background(), pushbridge.DeviceToken{0x01})
	<-entered

	accessed := make(chan struct{})
	go func() {
		defer close(accessed)
		client.Token()
		client.Credentials()
		client.SetTokenDelegate(newTokenRecorder())
	}()
	select {
	case <-accessed:
	case <-time.After(2 * time.Second):
		t.Fatal("accessors blocked while registration was in flight")
	}
}

func TestSetTokenDelegate_Replaces(t *testing.T) {
	gcm := newFakeGCM(t, "tok")
	client := NewClient(t.TempDir(), gcm.config(), WithLogger(quietLogger()))
	require.NoError(t, client.Configure(context.Background()))

	first, second := newTokenRecorder(), newTokenRecorder()
	client.SetTokenDelegate(first)
	client.SetTokenDelegate(second)

	_, err := client.Register(context.Background(), pushbridge.DeviceToken{0x01})
	require.NoError(t, err)
	assert.Empty(t, first.values())
	assert.Equal(t, []string{"tok"}, second.values())
}

func TestCredentialsCopy(t *testing.T) {
	client := NewClient(t.TempDir(), Config{})
	client.credentials = &Credentials{
		Raw:   json.RawMessage(`{"androidId":123}`),
		Token: "original-token",
	}

	creds := client.Credentials()
	require.NotNil(t, creds)
	creds.Token = "mutated"
	creds.Raw[0] = '['

	internal := client.Credentials()
	assert.Equal(t, "original-token", internal.Token)
	assert.JSONEq(t, `{"androidId":123}`, string(internal.Raw))
}
