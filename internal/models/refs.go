package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// GeoPoint is an optional location pin attached to a message.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ReplyRef references the message a new message replies to.
type ReplyRef struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	UserID    int64  `json:"user_id"`
}

// ItemRef references a marketplace listing quoted inside a message.
type ItemRef struct {
	ItemID int64   `json:"item_id"`
	Title  string  `json:"title"`
	Price  float64 `json:"price"`
	Image  string  `json:"image"`
}

// The Null* wrappers below map the optional references onto nullable JSONB
// columns.

type NullGeoPoint struct {
	Point GeoPoint
	Valid bool
}

func (n *NullGeoPoint) Scan(src interface{}) error  { return scanJSON(src, &n.Point, &n.Valid) }
func (n NullGeoPoint) Value() (driver.Value, error) { return valueJSON(n.Point, n.Valid) }

// Ptr returns the point, or nil when unset.
func (n NullGeoPoint) Ptr() *GeoPoint {
	if !n.Valid {
		return nil
	}
	p := n.Point
	return &p
}

// NewNullGeoPoint wraps an optional point.
func NewNullGeoPoint(p *GeoPoint) NullGeoPoint {
	if p == nil {
		return NullGeoPoint{}
	}
	return NullGeoPoint{Point: *p, Valid: true}
}

type NullReplyRef struct {
	Ref   ReplyRef
	Valid bool
}

func (n *NullReplyRef) Scan(src interface{}) error  { return scanJSON(src, &n.Ref, &n.Valid) }
func (n NullReplyRef) Value() (driver.Value, error) { return valueJSON(n.Ref, n.Valid) }

func (n NullReplyRef) Ptr() *ReplyRef {
	if !n.Valid {
		return nil
	}
	r := n.Ref
	return &r
}

func NewNullReplyRef(r *ReplyRef) NullReplyRef {
	if r == nil {
		return NullReplyRef{}
	}
	return NullReplyRef{Ref: *r, Valid: true}
}

type NullItemRef struct {
	Ref   ItemRef
	Valid bool
}

func (n *NullItemRef) Scan(src interface{}) error  { return scanJSON(src, &n.Ref, &n.Valid) }
func (n NullItemRef) Value() (driver.Value, error) { return valueJSON(n.Ref, n.Valid) }

func (n NullItemRef) Ptr() *ItemRef {
	if !n.Valid {
		return nil
	}
	r := n.Ref
	return &r
}

func NewNullItemRef(r *ItemRef) NullItemRef {
	if r == nil {
		return NullItemRef{}
	}
	return NullItemRef{Ref: *r, Valid: true}
}

func scanJSON(src interface{}, dst interface{}, valid *bool) error {
	*valid = false
	if src == nil {
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	*valid = true
	return nil
}

func valueJSON(v interface{}, valid bool) (driver.Value, error) {
	if !valid {
		return nil, nil
	}
	return json.Marshal(v)
}
