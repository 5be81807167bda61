package fcm

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Default GCM endpoints. Config.CheckinURL and Config.RegisterURL override them.
const (
	DefaultCheckinURL  = "https://android.clients.google.com/checkin"
	DefaultRegisterURL = "https://android.clients.google.com/c2dm/register3"
)

// gcmCredentials holds the GCM device credentials issued by check-in.
type gcmCredentials struct {
	AndroidID     uint64 `json:"androidId"`
	SecurityToken uint64 `json:"securityToken"`
}

// gcmCheckin performs a GCM check-in. Non-zero androidID and securityToken
// re-check-in an existing device.
func gcmCheckin(ctx context.Context, httpClient *http.Client, endpoint string, androidID, securityToken uint64, device DeviceProfile) (uint64, uint64, error) {
	body := checkinRequest{
		AndroidID:     androidID,
		SecurityToken: securityToken,
		Device:        device,
		Locale:        "en_US",
		TimeZone:      "UTC",
	}.marshal()

	respBody, err := post(ctx, httpClient, endpoint, bytes.NewReader(body), http.Header{
		"Content-Type": {"application/x-protobuf"},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("gcm checkin: %w", err)
	}

	checkinResp, err := unmarshalCheckinResponse(respBody)
	if err != nil {
		return 0, 0, fmt.Errorf("gcm checkin: %w", err)
	}
	if checkinResp.AndroidID == 0 {
		return 0, 0, fmt.Errorf("gcm checkin: response carries no android id")
	}

	return checkinResp.AndroidID, checkinResp.SecurityToken, nil
}

// generateInstanceID returns a random 11-character hex instance ID.
func generateInstanceID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate instance ID: %w", err)
	}
	return hex.EncodeToString(b)[:11], nil
}

// registration is the input of a register3 call.
type registration struct {
	AndroidID     uint64
	SecurityToken uint64
	SenderID      string
	AppID         string
	APNSToken     string
	Sandbox       bool
	Device        DeviceProfile
}

// gcmRegister exchanges the checked-in device and the platform device token
// for an FCM token.
func gcmRegister(ctx context.Context, httpClient *http.Client, endpoint string, r registration) (string, error) {
	instanceID, err := generateInstanceID()
	if err != nil {
		return "", err
	}

	sandbox := "0"
	if r.Sandbox {
		sandbox = "1"
	}

	form := url.Values{
		"app":            {r.AppID},
		"sender":         {r.SenderID},
		"device":         {strconv.FormatUint(r.AndroidID, 10)},
		"gcm_ver":        {strconv.Itoa(r.Device.GMSVersion)},
		"X-subtype":      {r.SenderID},
		"X-scope":        {"*"},
		"X-appid":        {instanceID},
		"X-osv":          {strconv.Itoa(r.Device.SDKVersion)},
		"X-cliv":         {"fiid-" + r.Device.ClientVersion},
		"X-apns_token":   {r.APNSToken},
		"X-apns_sandbox": {sandbox},
	}

	respBody, err := post(ctx, httpClient, endpoint, strings.NewReader(form.Encode()), http.Header{
		"Content-Type":  {"application/x-www-form-urlencoded"},
		"Authorization": {fmt.Sprintf("AidLogin %d:%d", r.AndroidID, r.SecurityToken)},
		"User-Agent":    {fmt.Sprintf("Android-GCM/1.5 (%s %s)", r.Device.Device, r.Device.Model)},
		"App":           {r.AppID},
	})
	if err != nil {
		return "", fmt.Errorf("gcm register: %w", err)
	}

	reply := strings.TrimSpace(string(respBody))
	if token, ok := strings.CutPrefix(reply, "token="); ok {
		return strings.TrimSpace(token), nil
	}
	if reason, ok := strings.CutPrefix(reply, "Error="); ok {
		return "", fmt.Errorf("gcm register: %w", &ServerError{Reason: reason})
	}
	return "", fmt.Errorf("gcm register: unexpected response: %s", reply)
}

// post sends one request and returns the body of a 200 response.
func post(ctx context.Context, httpClient *http.Client, endpoint string, body io.Reader, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{Code: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// httpStatusError is a non-200 reply from a GCM endpoint.
type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// ServerError is an "Error=" reply from register3.
type ServerError struct {
	Reason string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Reason
}

// Register3 reasons that will not change on retry.
var permanentReasons = map[string]bool{
	"INVALID_SENDER":      true,
	"INVALID_PARAMETERS":  true,
	"MISSING_CERTIFICATE": true,
}

// isPermanent reports whether retrying err cannot succeed: client errors
// other than 429, and register3 rejections of the request itself.
func isPermanent(err error) bool {
	var se *ServerError
	if errors.As(err, &se) {
		return permanentReasons[se.Reason]
	}
	var he *httpStatusError
	if errors.As(err, &he) {
		return he.Code >= 400 && he.Code < 500 && he.Code != http.StatusTooManyRequests
	}
	return false
}
