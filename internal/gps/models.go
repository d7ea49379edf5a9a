package gps

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Sample is a single sanitized GPS reading. Optional sensor fields use
// pointers so "not reported" is distinguishable from zero.
type Sample struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	AccuracyM *float64   `json:"accuracy_m,omitempty"`
	SpeedKmh  *float64   `json:"speed_kmh,omitempty"`
	AltitudeM *float64   `json:"altitude_m,omitempty"`
	Timestamp time.Time  `json:"timestamp,omitempty"`
}

// RawSample is what mobile clients actually send: either lat/lng or
// latitude/longitude, with numbers that sometimes arrive as strings.
type RawSample struct {
	Lat       *Float     `json:"lat"`
	Latitude  *Float     `json:"latitude"`
	Lng       *Float     `json:"lng"`
	Longitude *Float     `json:"longitude"`
	Accuracy  *Float     `json:"accuracy"`
	Speed     *Float     `json:"speed"`
	Altitude  *Float     `json:"altitude"`
	Timestamp *time.Time `json:"timestamp"`
}

// Float unmarshals from a JSON number or a numeric string.
type Float float64

func (f *Float) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	// An empty quoted string is not a number; ParseFloat rejects it.
	data = bytes.Trim(data, `"`)
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

var _ json.Unmarshaler = (*Float)(nil)

// ValidationResult reports range violations and plausibility flags for a
// single sample.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}
