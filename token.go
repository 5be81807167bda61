package pushbridge

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeviceToken is the opaque token the OS issues for push delivery to this installation.
type DeviceToken []byte

// String renders the token as lowercase hex, two digits per byte.
func (t DeviceToken) String() string {
	return hex.EncodeToString(t)
}

// ParseDeviceToken decodes a hex device token. Whitespace, angle brackets and
// spaces between groups (the NSData description format) are ignored.
func ParseDeviceToken(s string) (DeviceToken, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '<', '>', '\n', '\t':
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return nil, fmt.Errorf("parsing device token: empty")
	}
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("parsing device token: %w", err)
	}
	return DeviceToken(b), nil
}

// PermissionOptions is the set of notification capabilities requested from the OS.
type PermissionOptions struct {
	Alert bool `json:"alert" yaml:"alert"`
	Sound bool `json:"sound" yaml:"sound"`
	Badge bool `json:"badge" yaml:"badge"`
}

// DefaultPermissionOptions requests alert, sound and badge.
func DefaultPermissionOptions() PermissionOptions {
	return PermissionOptions{Alert: true, Sound: true, Badge: true}
}

// RegistrationEvent carries a backend token issued for this installation.
// Token is always set; it is empty when the backend reported no token.
type RegistrationEvent struct {
	ID       uuid.UUID `json:"id" yaml:"id"`
	Token    string    `json:"token" yaml:"token"`
	IssuedAt time.Time `json:"issued_at" yaml:"issued_at"`
}
