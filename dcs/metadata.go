package dcs

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// Metadata types model only the commonly used fields; the server's
// full meter schema is broad and version-dependent, and this client
// does not attempt to mirror it.

// Register is one measured quantity of a meter.
type Register struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// Meter is a physical meter with its registers.
type Meter struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	SerialNumber string     `json:"serialNumber"`
	Registers    []Register `json:"registers"`
}

// RegisterAlias binds a register into a virtual meter expression.
type RegisterAlias struct {
	Alias      string `json:"alias"`
	RegisterID int    `json:"registerId"`
}

// VirtualMeter is a computed measurement over one or more registers.
type VirtualMeter struct {
	ID              int             `json:"id"`
	Name            string          `json:"name"`
	RegisterAliases []RegisterAlias `json:"registerAliases"`
}

// MeterGroup is a folder in the server's meter tree.
type MeterGroup struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	HasMeters   bool         `json:"hasMeters"`
	Meters      []Meter      `json:"meters"`
	MeterGroups []MeterGroup `json:"meterGroups"`
}

// CalibrationReading is one manual calibration entry for a register.
type CalibrationReading struct {
	RegisterID int
	Timestamp  time.Time
	StartTime  time.Time
	Value      float64
	Status     int
}

func (c *CalibrationReading) UnmarshalJSON(b []byte) error {
	var raw struct {
		RegisterID int     `json:"registerId"`
		Timestamp  string  `json:"timestamp"`
		StartTime  string  `json:"startTime"`
		Value      float64 `json:"value"`
		Status     int     `json:"status"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts, err := parseWireTime(raw.Timestamp)
	if err != nil {
		return err
	}
	st, err := parseWireTime(raw.StartTime)
	if err != nil {
		return err
	}
	*c = CalibrationReading{
		RegisterID: raw.RegisterID,
		Timestamp:  ts,
		StartTime:  st,
		Value:      raw.Value,
		Status:     raw.Status,
	}
	return nil
}

// Meters lists every meter defined on the server, including their
// registers.
func (s *Session) Meters(ctx context.Context) ([]Meter, error) {
	var out []Meter
	err := s.getJSON(ctx, "/Meters/", nil, &out)
	return out, err
}

// Meter fetches one meter by id.
func (s *Session) Meter(ctx context.Context, id int) (*Meter, error) {
	var out Meter
	if err := s.getJSON(ctx, "/Meters/"+strconv.Itoa(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VirtualMeters lists every virtual meter defined on the server.
func (s *Session) VirtualMeters(ctx context.Context) ([]VirtualMeter, error) {
	var out []VirtualMeter
	err := s.getJSON(ctx, "/VirtualMeters/", nil, &out)
	return out, err
}

// VirtualMeter fetches one virtual meter by id.
func (s *Session) VirtualMeter(ctx context.Context, id int) (*VirtualMeter, error) {
	var out VirtualMeter
	if err := s.getJSON(ctx, "/VirtualMeters/"+strconv.Itoa(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MeterTree walks the meter group tree from the given group id (0 is
// the root). When recursive is false only immediate children are
// returned; groupsOnly omits meters and virtual meters.
func (s *Session) MeterTree(ctx context.Context, id int, recursive, groupsOnly bool) (*MeterGroup, error) {
	params := url.Values{}
	params.Set("recursively", strconv.FormatBool(recursive))
	params.Set("groupsOnly", strconv.FormatBool(groupsOnly))
	var out MeterGroup
	if err := s.getJSON(ctx, "/MeterGroups/"+strconv.Itoa(id), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CalibrationReadings lists the calibration entries recorded for a
// register.
func (s *Session) CalibrationReadings(ctx context.Context, registerID int) ([]CalibrationReading, error) {
	params := url.Values{}
	params.Set("registerId", strconv.Itoa(registerID))
	params.Set("startIndex", "0")
	params.Set("maxCount", strconv.Itoa(1<<31-1))
	var out struct {
		CalibrationReadings []CalibrationReading `json:"calibrationReadings"`
	}
	if err := s.getJSON(ctx, "/CalibrationReadings/", params, &out); err != nil {
		return nil, err
	}
	return out.CalibrationReadings, nil
}
