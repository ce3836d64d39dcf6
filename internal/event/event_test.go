package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"message_id":"m1","event_type":" share.create.end ","timestamp":"2026-03-01 10:00:00.123456","payload":{"share_id":"r1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "share.create.end", env.EventType)
	assert.Equal(t, "m1", env.MessageID)

	ts, ok := env.Time(time.Time{})
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 123456000, time.UTC), ts)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = DecodeEnvelope([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Contains(t, err.Error(), "event_type required")
}

func TestParseTimestampFallback(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got, ok := ParseTimestamp("yesterday", fallback)
	assert.False(t, ok)
	assert.Equal(t, fallback, got)

	got, ok = ParseTimestamp("2026-03-01T10:00:00+07:00", fallback)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), got)
}

func TestDecodeSharePayload(t *testing.T) {
	decode, ok := DecoderFor("share")
	require.True(t, ok)

	res, err := decode(json.RawMessage(`{"share_id":"r1","display_name":"data","size":10,"user_id":"u1","tenant_id":"p1","status":"suspended"}`), "share")
	require.NoError(t, err)
	assert.Equal(t, Resource{
		ID:        "r1",
		Name:      "data",
		Type:      "share",
		Status:    "suspended",
		Volume:    10,
		UserID:    "u1",
		ProjectID: "p1",
	}, res)
}

func TestDecodePayloadValidation(t *testing.T) {
	_, err := DecodeShare(json.RawMessage(`{"share_id":"r1","user_id":"u1","tenant_id":"p1"}`), "share")
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Contains(t, err.Error(), "size")

	_, err = DecodeVolume(json.RawMessage(`{"volume_id":"v1","size":-1,"user_id":"u1","tenant_id":"p1"}`), "volume")
	assert.ErrorIs(t, err, ErrMalformedEvent)

	res, err := DecodeVolume(json.RawMessage(`{"volume_id":"v1","size":0,"user_id":"u1","tenant_id":"p1"}`), "volume")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Volume)

	_, err = DecodeShare(json.RawMessage(`{"share_id":"   ","size":1,"user_id":"u1","tenant_id":"p1"}`), "share")
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Contains(t, err.Error(), "share_id")

	_, err = DecodeVolume(json.RawMessage(`{"volume_id":"v1","size":1,"user_id":"\t","tenant_id":"p1"}`), "volume")
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, ok := DecoderFor("router")
	assert.False(t, ok)
}
