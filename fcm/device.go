package fcm

// DeviceProfile is the device identity presented during GCM check-in and
// registration.
type DeviceProfile struct {
	// BuildFingerprint follows brand/product/device:version/build_id/build_number:user/release-keys
	BuildFingerprint string

	// SDKVersion is the platform API level.
	SDKVersion int

	// GMSVersion is the Play Services version code.
	GMSVersion int

	Device       string
	Model        string
	Hardware     string
	Brand        string
	Manufacturer string
	Product      string
	Bootloader   string
	Radio        string

	// BuildTime is seconds since epoch.
	BuildTime int64

	// ClientVersion is sent as the instance ID library version.
	ClientVersion string
}

// DefaultDeviceProfile returns the profile used when none is configured.
func DefaultDeviceProfile() DeviceProfile {
	return DeviceProfile{
		BuildFingerprint: "google/panther/panther:13/TQ3A.230805.001/10316531:user/release-keys",
		SDKVersion:       33,
		GMSVersion:       241516037,
		Device:           "panther",
		Model:            "Pixel 7",
		Hardware:         "panther",
		Brand:            "google",
		Manufacturer:     "Google",
		Product:          "panther",
		Bootloader:       "slider-1.2-9819352",
		Radio:            "g5300g-230511-230925-B-10484716",
		BuildTime:        1691193600,
		ClientVersion:    "11.2.0",
	}
}
