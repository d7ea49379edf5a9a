package gps

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *Float {
	f := Float(v)
	return &f
}

func TestSanitizeAliases(t *testing.T) {
	s, ok := Sanitize(RawSample{Lat: floatPtr(-6.2), Lng: floatPtr(106.8)})
	require.True(t, ok)
	assert.Equal(t, -6.2, s.Lat)
	assert.Equal(t, 106.8, s.Lng)

	// Long-form names win over the short aliases.
	s, ok = Sanitize(RawSample{
		Lat: floatPtr(1), Latitude: floatPtr(2),
		Lng: floatPtr(3), Longitude: floatPtr(4),
	})
	require.True(t, ok)
	assert.Equal(t, 2.0, s.Lat)
	assert.Equal(t, 4.0, s.Lng)
}

func TestSanitizeRejectsMissingOrNonFinite(t *testing.T) {
	_, ok := Sanitize(RawSample{Lat: floatPtr(1)})
	assert.False(t, ok)

	_, ok = Sanitize(RawSample{})
	assert.False(t, ok)

	_, ok = Sanitize(RawSample{Lat: floatPtr(math.NaN()), Lng: floatPtr(1)})
	assert.False(t, ok)

	_, ok = Sanitize(RawSample{Lat: floatPtr(1), Lng: floatPtr(math.Inf(1))})
	assert.False(t, ok)
}

func TestSanitizeOptionalFields(t *testing.T) {
	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s, ok := Sanitize(RawSample{
		Lat: floatPtr(1), Lng: floatPtr(2),
		Accuracy: floatPtr(12), Speed: floatPtr(40), Altitude: floatPtr(150),
		Timestamp: &ts,
	})
	require.True(t, ok)
	require.NotNil(t, s.AccuracyM)
	assert.Equal(t, 12.0, *s.AccuracyM)
	require.NotNil(t, s.SpeedKmh)
	assert.Equal(t, 40.0, *s.SpeedKmh)
	require.NotNil(t, s.AltitudeM)
	assert.Equal(t, 150.0, *s.AltitudeM)
	assert.Equal(t, ts, s.Timestamp)
}

func TestRawSampleNumericStrings(t *testing.T) {
	var raw RawSample
	err := json.Unmarshal([]byte(`{"latitude":"-6.2","longitude":106.8,"accuracy":"5"}`), &raw)
	require.NoError(t, err)

	s, ok := Sanitize(raw)
	require.True(t, ok)
	assert.Equal(t, -6.2, s.Lat)
	assert.Equal(t, 106.8, s.Lng)
	require.NotNil(t, s.AccuracyM)
	assert.Equal(t, 5.0, *s.AccuracyM)
}

func TestRawSampleRejectsEmptyString(t *testing.T) {
	// An empty string must not silently decode to coordinate zero.
	var raw RawSample
	err := json.Unmarshal([]byte(`{"lat":"","lng":106.8}`), &raw)
	require.Error(t, err)

	// null stays "not sent".
	raw = RawSample{}
	err = json.Unmarshal([]byte(`{"lat":null,"lng":106.8}`), &raw)
	require.NoError(t, err)
	assert.Nil(t, raw.Lat)
}

func TestValidateRanges(t *testing.T) {
	res := Validate(Sample{Lat: 91, Lng: 0}, DefaultMaxAccuracyM)
	assert.False(t, res.Valid)

	res = Validate(Sample{Lat: 0, Lng: -181}, DefaultMaxAccuracyM)
	assert.False(t, res.Valid)

	res = Validate(Sample{Lat: 45, Lng: 90}, DefaultMaxAccuracyM)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateFlagsButKeepsValid(t *testing.T) {
	acc := 500.0
	speed := 250.0
	alt := 12000.0
	res := Validate(Sample{Lat: 0, Lng: 0, AccuracyM: &acc, SpeedKmh: &speed, AltitudeM: &alt}, DefaultMaxAccuracyM)
	assert.True(t, res.Valid)
	assert.Len(t, res.Errors, 3)
}

func TestFilterByAccuracy(t *testing.T) {
	good := 10.0
	bad := 120.0
	samples := []Sample{
		{Lat: 1, Lng: 1, AccuracyM: &good},
		{Lat: 2, Lng: 2, AccuracyM: &bad},
		{Lat: 3, Lng: 3}, // no accuracy reported: innocent until proven noisy
	}
	kept := FilterByAccuracy(samples, DefaultMaxAccuracyM)
	require.Len(t, kept, 2)
	assert.Equal(t, 1.0, kept[0].Lat)
	assert.Equal(t, 3.0, kept[1].Lat)
}

func TestRemoveNearDuplicates(t *testing.T) {
	samples := []Sample{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 0.0000001}, // ~1cm of jitter
		{Lat: 0, Lng: 0.001},     // ~111m
		{Lat: 0, Lng: 0.001_0001},
		{Lat: 0, Lng: 0.002},
	}
	kept := RemoveNearDuplicates(samples, DefaultMinPointDistanceKm)
	require.Len(t, kept, 3)
	assert.Equal(t, 0.0, kept[0].Lng)
	assert.Equal(t, 0.001, kept[1].Lng)
	assert.Equal(t, 0.002, kept[2].Lng)

	assert.Empty(t, RemoveNearDuplicates(nil, DefaultMinPointDistanceKm))
}

func TestSortByTimestamp(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	samples := []Sample{
		{Lat: 3, Timestamp: t0.Add(2 * time.Minute)},
		{Lat: 1, Timestamp: t0},
		{Lat: 2, Timestamp: t0.Add(time.Minute)},
	}
	sorted := SortByTimestamp(samples)
	assert.Equal(t, 1.0, sorted[0].Lat)
	assert.Equal(t, 2.0, sorted[1].Lat)
	assert.Equal(t, 3.0, sorted[2].Lat)

	// Input order is untouched.
	assert.Equal(t, 3.0, samples[0].Lat)
}
