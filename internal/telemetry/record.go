// Package telemetry turns raw device telemetry payloads into validated records.
// This package has NO transport or presentation dependencies: it only sees the
// decoded message bytes and either returns a Record or a reason to drop it.
package telemetry

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Schema is the data schema of temperature events published by the drogue
// public temperature integration.
const Schema = "urn:drogue:iot:temperature"

// Payload field paths.
const (
	FieldSchema = "dataschema"
	FieldDevice = "device"
	FieldTime   = "time"
	FieldValue  = "data.temp"
)

// Record is a single validated temperature reading.
// Records are transient: they are folded into a series store and discarded.
type Record struct {
	Schema    string
	Device    string
	Timestamp time.Time
	Value     float64
}

// Extractor validates payloads against one accepted schema.
type Extractor struct {
	schema string
}

// NewExtractor creates an Extractor accepting only the given schema.
// An empty schema selects the default Schema.
func NewExtractor(schema string) Extractor {
	if schema == "" {
		schema = Schema
	}
	return Extractor{schema: schema}
}

// Schema returns the schema identifier this extractor accepts.
func (x Extractor) Schema() string {
	return x.schema
}

// Extract parses raw with the default schema.
func Extract(raw []byte) (Record, error) {
	return NewExtractor(Schema).Extract(raw)
}

// Extract validates raw and returns the record it carries.
// Every failure is a *RejectError; none of them are fatal to the caller.
func (x Extractor) Extract(raw []byte) (Record, error) {
	if !gjson.ValidBytes(raw) {
		return Record{}, reject(ErrMalformed, "", nil)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Record{}, reject(ErrMalformed, "", nil)
	}

	// Anything without our schema tag belongs to some other producer.
	schema := doc.Get(FieldSchema)
	if schema.Type != gjson.String || schema.Str != x.schema {
		return Record{}, reject(ErrSchemaMismatch, FieldSchema, nil)
	}

	device := doc.Get(FieldDevice)
	if device.Type != gjson.String || device.Str == "" {
		return Record{}, reject(ErrMissingField, FieldDevice, nil)
	}
	ts := doc.Get(FieldTime)
	if !ts.Exists() || ts.Type == gjson.Null {
		return Record{}, reject(ErrMissingField, FieldTime, nil)
	}
	temp := doc.Get(FieldValue)
	if !temp.Exists() || temp.Type == gjson.Null {
		return Record{}, reject(ErrMissingField, FieldValue, nil)
	}

	if ts.Type != gjson.String {
		return Record{}, reject(ErrTimestampParse, FieldTime, nil)
	}
	when, err := time.Parse(time.RFC3339, ts.Str)
	if err != nil {
		return Record{}, reject(ErrTimestampParse, FieldTime, err)
	}

	value, err := parseValue(temp)
	if err != nil {
		return Record{}, err
	}

	return Record{
		Schema:    schema.Str,
		Device:    device.Str,
		Timestamp: when,
		Value:     value,
	}, nil
}

// parseValue accepts a JSON number or a string holding a decimal number.
// Some producers stringify their readings, both forms are equivalent.
func parseValue(v gjson.Result) (float64, error) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		if hasHexPrefix(v.Str) {
			return 0, reject(ErrValueType, FieldValue, errHexValue)
		}
		parsed, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return 0, reject(ErrValueType, FieldValue, err)
		}
		f = parsed
	default:
		return 0, reject(ErrValueType, FieldValue, nil)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, reject(ErrNonFiniteValue, FieldValue, nil)
	}
	return f, nil
}

var errHexValue = errors.New("hexadecimal value")

// hasHexPrefix reports whether s is a 0x literal, which ParseFloat would
// otherwise accept as a hex float.
func hasHexPrefix(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
