package types

import (
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	sridWGS84 = 4326

	ewkbPoint   = 1
	ewkbHasSRID = 0x20000000
)

var errNotAPoint = errors.New("geography: value is not a point")

// GeographyPoint maps a PostGIS geography(Point,4326) column.
type GeographyPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports whether the coordinates are on the WGS84 globe.
func (p GeographyPoint) Validate() error {
	switch {
	case math.IsNaN(p.Lat) || math.IsNaN(p.Lng):
		return errors.New("coordinates must be numbers")
	case p.Lat < -90 || p.Lat > 90:
		return fmt.Errorf("latitude %v out of range", p.Lat)
	case p.Lng < -180 || p.Lng > 180:
		return fmt.Errorf("longitude %v out of range", p.Lng)
	}
	return nil
}

// String renders the point as EWKT, longitude first.
func (p GeographyPoint) String() string {
	return fmt.Sprintf("SRID=%d;POINT(%s %s)", sridWGS84,
		strconv.FormatFloat(p.Lng, 'f', -1, 64),
		strconv.FormatFloat(p.Lat, 'f', -1, 64))
}

func (p GeographyPoint) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan accepts EWKT/WKT text or EWKB, raw or hex encoded.
func (p *GeographyPoint) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = GeographyPoint{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("geography: unsupported scan type %T", src)
	}

	point, err := parsePoint(raw)
	if err != nil {
		return err
	}
	*p = point
	return nil
}

func parsePoint(raw []byte) (GeographyPoint, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return GeographyPoint{}, errNotAPoint
	}
	if upper := strings.ToUpper(text); strings.HasPrefix(upper, "SRID=") || strings.HasPrefix(upper, "POINT") {
		return parseText(upper)
	}
	if decoded, err := hex.DecodeString(text); err == nil {
		return parseEWKB(decoded)
	}
	return parseEWKB(raw)
}

func parseText(text string) (GeographyPoint, error) {
	if _, rest, ok := strings.Cut(text, ";"); ok {
		text = rest
	}
	body, ok := strings.CutPrefix(strings.TrimSpace(text), "POINT")
	if !ok {
		return GeographyPoint{}, errNotAPoint
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(strings.TrimPrefix(body, "("), ")")

	coords := strings.Fields(body)
	if len(coords) < 2 {
		return GeographyPoint{}, fmt.Errorf("geography: malformed point %q", text)
	}
	lng, err := strconv.ParseFloat(coords[0], 64)
	if err != nil {
		return GeographyPoint{}, fmt.Errorf("geography: longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(coords[1], 64)
	if err != nil {
		return GeographyPoint{}, fmt.Errorf("geography: latitude: %w", err)
	}
	return GeographyPoint{Lat: lat, Lng: lng}, nil
}

// parseEWKB reads a 2D point with an optional SRID header.
func parseEWKB(b []byte) (GeographyPoint, error) {
	if len(b) < 21 {
		return GeographyPoint{}, errNotAPoint
	}
	var order binary.ByteOrder = binary.BigEndian
	if b[0] == 1 {
		order = binary.LittleEndian
	}
	kind := order.Uint32(b[1:5])
	if kind&0xff != ewkbPoint {
		return GeographyPoint{}, errNotAPoint
	}
	offset := 5
	if kind&ewkbHasSRID != 0 {
		offset += 4
	}
	if len(b) < offset+16 {
		return GeographyPoint{}, errNotAPoint
	}
	return GeographyPoint{
		Lng: math.Float64frombits(order.Uint64(b[offset : offset+8])),
		Lat: math.Float64frombits(order.Uint64(b[offset+8 : offset+16])),
	}, nil
}
