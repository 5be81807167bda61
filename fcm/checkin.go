package fcm

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from checkin.proto (AndroidCheckinRequest, AndroidCheckinProto,
// AndroidBuildProto, AndroidCheckinResponse).
const (
	reqFieldID               protowire.Number = 2
	reqFieldCheckin          protowire.Number = 4
	reqFieldLocale           protowire.Number = 6
	reqFieldTimeZone         protowire.Number = 12
	reqFieldSecurityToken    protowire.Number = 13
	reqFieldVersion          protowire.Number = 14
	reqFieldFragment         protowire.Number = 20
	reqFieldUserSerialNumber protowire.Number = 22

	checkinFieldBuild protowire.Number = 1
	checkinFieldType  protowire.Number = 12

	buildFieldFingerprint    protowire.Number = 1
	buildFieldHardware       protowire.Number = 2
	buildFieldBrand          protowire.Number = 3
	buildFieldRadio          protowire.Number = 4
	buildFieldBootloader     protowire.Number = 5
	buildFieldClientID       protowire.Number = 6
	buildFieldTime           protowire.Number = 7
	buildFieldPackageVersion protowire.Number = 8
	buildFieldDevice         protowire.Number = 9
	buildFieldSDKVersion     protowire.Number = 10
	buildFieldModel          protowire.Number = 11
	buildFieldManufacturer   protowire.Number = 12
	buildFieldProduct        protowire.Number = 13
	buildFieldOTAInstalled   protowire.Number = 14

	respFieldStatsOK       protowire.Number = 1
	respFieldAndroidID     protowire.Number = 7
	respFieldSecurityToken protowire.Number = 8
)

// deviceTypeAndroidOS is DeviceType.DEVICE_ANDROID_OS.
const deviceTypeAndroidOS = 1

// checkinRequest is the subset of AndroidCheckinRequest sent by this client.
// A zero AndroidID is a first check-in.
type checkinRequest struct {
	AndroidID     uint64
	SecurityToken uint64
	Device        DeviceProfile
	Locale        string
	TimeZone      string
}

func (r checkinRequest) marshal() []byte {
	var build []byte
	build = appendString(build, buildFieldFingerprint, r.Device.BuildFingerprint)
	build = appendString(build, buildFieldHardware, r.Device.Hardware)
	build = appendString(build, buildFieldBrand, r.Device.Brand)
	build = appendString(build, buildFieldRadio, r.Device.Radio)
	build = appendString(build, buildFieldBootloader, r.Device.Bootloader)
	build = appendString(build, buildFieldClientID, "android-google")
	build = appendVarint(build, buildFieldTime, uint64(r.Device.BuildTime))
	build = appendVarint(build, buildFieldPackageVersion, uint64(r.Device.GMSVersion))
	build = appendString(build, buildFieldDevice, r.Device.Device)
	build = appendVarint(build, buildFieldSDKVersion, uint64(r.Device.SDKVersion))
	build = appendString(build, buildFieldModel, r.Device.Model)
	build = appendString(build, buildFieldManufacturer, r.Device.Manufacturer)
	build = appendString(build, buildFieldProduct, r.Device.Product)
	build = appendVarint(build, buildFieldOTAInstalled, 0)

	var checkin []byte
	checkin = appendBytes(checkin, checkinFieldBuild, build)
	checkin = appendVarint(checkin, checkinFieldType, deviceTypeAndroidOS)

	var b []byte
	if r.AndroidID != 0 {
		b = appendVarint(b, reqFieldID, r.AndroidID)
	}
	b = appendBytes(b, reqFieldCheckin, checkin)
	b = appendString(b, reqFieldLocale, r.Locale)
	b = appendString(b, reqFieldTimeZone, r.TimeZone)
	if r.AndroidID != 0 {
		b = protowire.AppendTag(b, reqFieldSecurityToken, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, r.SecurityToken)
	}
	b = appendVarint(b, reqFieldVersion, 3)
	b = appendVarint(b, reqFieldFragment, 0)
	b = appendVarint(b, reqFieldUserSerialNumber, 0)
	return b
}

// checkinResponse is the subset of AndroidCheckinResponse read by this client.
type checkinResponse struct {
	StatsOK       bool
	AndroidID     uint64
	SecurityToken uint64
}

func unmarshalCheckinResponse(b []byte) (checkinResponse, error) {
	var resp checkinResponse
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return resp, fmt.Errorf("checkin response: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == respFieldStatsOK && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return resp, fmt.Errorf("checkin response: stats_ok: %w", protowire.ParseError(m))
			}
			resp.StatsOK = protowire.DecodeBool(v)
			n = m
		case num == respFieldAndroidID && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return resp, fmt.Errorf("checkin response: android_id: %w", protowire.ParseError(m))
			}
			resp.AndroidID = v
			n = m
		case num == respFieldSecurityToken && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return resp, fmt.Errorf("checkin response: security_token: %w", protowire.ParseError(m))
			}
			resp.SecurityToken = v
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return resp, fmt.Errorf("checkin response: field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return resp, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}
