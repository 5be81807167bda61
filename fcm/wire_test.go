package fcm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// wireField is one decoded protobuf field value.
type wireField struct {
	typ   protowire.Type
	u64   uint64
	bytes []byte
}

// decodeWire splits a protobuf message into its fields by number.
func decodeWire(t *testing.T, b []byte) map[protowire.Number][]wireField {
	t.Helper()
	out := make(map[protowire.Number][]wireField)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.GreaterOrEqual(t, n, 0, "bad tag")
		b = b[n:]

		f := wireField{typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u64, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.u64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		require.GreaterOrEqual(t, n, 0, "bad field %d", num)
		b = b[n:]
		out[num] = append(out[num], f)
	}
	return out
}

// one returns the single value of field num.
func one(t *testing.T, fields map[protowire.Number][]wireField, num protowire.Number) wireField {
	t.Helper()
	vals := fields[num]
	require.Len(t, vals, 1, "field %d", num)
	return vals[0]
}

// encodeCheckinResponse builds an AndroidCheckinResponse.
func encodeCheckinResponse(androidID, securityToken uint64) []byte {
	var b []byte
	b = appendVarint(b, respFieldStatsOK, 1)
	b = appendVarint(b, 3, 1700000000000) // time_msec
	b = protowire.AppendTag(b, respFieldAndroidID, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, androidID)
	b = protowire.AppendTag(b, respFieldSecurityToken, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, securityToken)
	b = appendString(b, 4, "digest")
	return b
}
