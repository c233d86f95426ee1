package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSince_FixedPrecision(t *testing.T) {
	ts := time.Date(2024, 3, 5, 7, 8, 9, 123456789, time.FixedZone("X", 2*3600))

	assert.Equal(t, "2024-03-05T05:08:09.123456+00:00", FormatSince(ts))
	assert.Equal(t, "2024-03-05T05:08:09.000000+00:00", FormatSince(ts.Truncate(time.Second)))
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 5, 5, 8, 9, 123456000, time.UTC)

	tests := []struct {
		name string
		in   string
	}{
		{"since layout", "2024-03-05T05:08:09.123456+00:00"},
		{"rfc3339 nano", "2024-03-05T05:08:09.123456Z"},
		{"offset", "2024-03-05T07:08:09.123456+02:00"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimestamp(tc.in)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseTimestamp("yesterday")
	require.Error(t, err)
}

func TestParseTimestamp_RoundTripsFormatSince(t *testing.T) {
	ts := time.Date(2023, 12, 31, 23, 59, 59, 999999000, time.UTC)
	got, err := ParseTimestamp(FormatSince(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))
}

func TestDuration_JSON(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"5s","b":1000}`), &v))
	assert.Equal(t, 5*time.Second, v.A.Duration)
	assert.Equal(t, time.Microsecond, v.B.Duration)

	out, err := json.Marshal(v.A)
	require.NoError(t, err)
	assert.Equal(t, `"5s"`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"a":true}`), &v))
	require.Error(t, json.Unmarshal([]byte(`{"a":"soon"}`), &v))
}
