package qr

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parchi/entity"
)

const testAssetID = "Abc12345XYZq7Lk9mNop3RsTuVwXyZ12345678904444"

func TestEncodeDecode_roundTrip(t *testing.T) {
	issuedAt := time.Unix(1700000000, 0)

	encoded, err := Encode("evt_abc", 7, testAssetID, issuedAt)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, SchemeTag))

	payload, err := Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, SupportedVersion, payload.Version)
	assert.Equal(t, "evt_abc", payload.EventID)
	assert.Equal(t, 7, payload.TicketNumber)
	assert.Equal(t, "Abc12345", payload.AssetPrefix)
	assert.Equal(t, int64(1700000000), payload.IssuedAt)
	assert.Len(t, payload.Checksum, 4)

	require.NoError(t, VerifyChecksum(payload, testAssetID))
}

func TestEncode_wireFormat(t *testing.T) {
	encoded, err := Encode("evt_abc", 7, testAssetID, time.Unix(1700000000, 0))
	require.NoError(t, err)

	body, ok := strings.CutPrefix(encoded, "parchi:")
	require.True(t, ok)

	raw, err := base64.RawURLEncoding.DecodeString(body)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, float64(1), doc["v"])
	assert.Equal(t, "evt_abc", doc["e"])
	assert.Equal(t, float64(7), doc["t"])
	assert.Equal(t, "Abc12345", doc["a"])
	assert.Equal(t, float64(1700000000), doc["ts"])
	assert.Len(t, doc["c"], 4)
}

func TestEncode_deterministic(t *testing.T) {
	issuedAt := time.Unix(1700000000, 0)

	first, err := Encode("evt_abc", 7, testAssetID, issuedAt)
	require.NoError(t, err)
	second, err := Encode("evt_abc", 7, testAssetID, issuedAt)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEncode_invalidInputs(t *testing.T) {
	issuedAt := time.Unix(1700000000, 0)

	_, err := Encode("", 7, testAssetID, issuedAt)
	assert.ErrorIs(t, err, entity.ErrMalformedPayload)

	_, err = Encode("evt_abc", 0, testAssetID, issuedAt)
	assert.ErrorIs(t, err, entity.ErrMalformedPayload)

	_, err = Encode("evt_abc", 7, "short", issuedAt)
	assert.ErrorIs(t, err, entity.ErrMalformedPayload)
}

func TestDecode_malformed(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":          "",
		"no scheme tag":  "definitely-not-a-ticket",
		"wrong scheme":   "other:" + base64.RawURLEncoding.EncodeToString([]byte(`{}`)),
		"invalid base64": SchemeTag + "!!!not-base64!!!",
		"not json":       SchemeTag + base64.RawURLEncoding.EncodeToString([]byte("plain text")),
		"wrong types":    SchemeTag + base64.RawURLEncoding.EncodeToString([]byte(`{"v":1,"e":"x","t":"seven"}`)),
		"missing fields": SchemeTag + base64.RawURLEncoding.EncodeToString([]byte(`{"v":1,"e":"evt"}`)),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			assert.ErrorIs(t, err, entity.ErrMalformedPayload)
		})
	}
}

func TestDecode_unsupportedVersion(t *testing.T) {
	body, err := json.Marshal(Payload{
		Version:      2,
		EventID:      "evt_abc",
		TicketNumber: 7,
		AssetPrefix:  "Abc12345",
		IssuedAt:     1700000000,
		Checksum:     "abcd",
	})
	require.NoError(t, err)

	_, err = Decode(SchemeTag + base64.RawURLEncoding.EncodeToString(body))
	assert.ErrorIs(t, err, entity.ErrUnsupportedVersion)
}

func TestVerifyChecksum(t *testing.T) {
	encoded, err := Encode("evt_abc", 7, testAssetID, time.Unix(1700000000, 0))
	require.NoError(t, err)
	payload, err := Decode(encoded)
	require.NoError(t, err)

	t.Run("matches for the issuing asset", func(t *testing.T) {
		assert.NoError(t, VerifyChecksum(payload, testAssetID))
	})

	t.Run("prefix mismatch", func(t *testing.T) {
		err := VerifyChecksum(payload, "Zzz99999"+testAssetID[AssetPrefixLen:])
		assert.ErrorIs(t, err, entity.ErrAssetPrefixMismatch)
	})

	t.Run("same prefix, different asset", func(t *testing.T) {
		err := VerifyChecksum(payload, payload.AssetPrefix+"completely-different-tail")
		assert.ErrorIs(t, err, entity.ErrTamperDetected)
	})

	t.Run("tampered checksum", func(t *testing.T) {
		forged := payload
		forged.Checksum = "0000"
		if forged.Checksum == payload.Checksum {
			forged.Checksum = "ffff"
		}
		err := VerifyChecksum(forged, testAssetID)
		assert.ErrorIs(t, err, entity.ErrTamperDetected)
	})
}

// Flipping any single character of the encoded body must surface as either
// a decode failure or a checksum failure; silent acceptance would defeat
// tamper evidence.
func TestDecode_singleCharacterMutations(t *testing.T) {
	encoded, err := Encode("evt_abc", 7, testAssetID, time.Unix(1700000000, 0))
	require.NoError(t, err)

	total := 0
	caught := 0

	for i := len(SchemeTag); i < len(encoded); i++ {
		for _, replacement := range []byte{'A', 'z', '0'} {
			if encoded[i] == replacement {
				continue
			}
			mutated := encoded[:i] + string(replacement) + encoded[i+1:]
			total++

			payload, decodeErr := Decode(mutated)
			if decodeErr != nil {
				caught++
				continue
			}
			if VerifyChecksum(payload, testAssetID) != nil {
				caught++
			}
		}
	}

	require.NotZero(t, total)
	// the 16-bit checksum allows a small collision probability
	assert.GreaterOrEqual(t, float64(caught)/float64(total), 0.99)
}

func TestValidateFreshness(t *testing.T) {
	fresh := Payload{IssuedAt: time.Now().Add(-time.Minute).Unix()}
	assert.NoError(t, ValidateFreshness(fresh, time.Hour))

	stale := Payload{IssuedAt: time.Now().Add(-2 * time.Hour).Unix()}
	assert.ErrorIs(t, ValidateFreshness(stale, time.Hour), entity.ErrExpired)
}

func TestRenderPNG(t *testing.T) {
	encoded, err := Encode("evt_abc", 7, testAssetID, time.Unix(1700000000, 0))
	require.NoError(t, err)

	png, err := RenderPNG(encoded, 256)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}
