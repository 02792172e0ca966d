package pv

import (
	"errors"
	"time"
)

// ErrNotConnected is returned by Put when the channel is not connected.
var ErrNotConnected = errors.New("pv: channel not connected")

// ErrBadName is returned by CreateChannel for a malformed variable name.
var ErrBadName = errors.New("pv: malformed channel name")

// Event is a single wire-level value event as delivered by a provider.
// The payload field matching Type is valid; Count above one indicates an
// array payload.
type Event struct {
	Type  FieldType
	Count int

	Value float64
	Str   string
	Enum  uint16
	Array []float64
	Bytes []byte

	Severity     Severity
	Status       int16
	Timestamp    time.Time
	HasTimestamp bool
}

// ConnectionHandler is invoked on the provider's I/O goroutine whenever the
// channel's connection state changes. The native type and element count are
// valid only while connected.
type ConnectionHandler func(connected bool, nativeType FieldType, nativeCount int)

// EventHandler is invoked on the provider's I/O goroutine for each value
// event on a subscription. Handlers must not block.
type EventHandler func(ev Event)

// AccessHandler is invoked on the provider's I/O goroutine when the
// channel's access rights change.
type AccessHandler func(read, write bool)

// MetadataHandler receives the result of a one-shot control metadata fetch.
type MetadataHandler func(info ControlInfo)

// SubscriptionID identifies a wire subscription within a channel.
type SubscriptionID int64

// PutKind selects the representation of an outgoing write.
type PutKind int

const (
	// PutNumeric writes a numeric scalar.
	PutNumeric PutKind = iota
	// PutString writes a text scalar.
	PutString
	// PutEnum writes an enumerated index.
	PutEnum
	// PutCharArray writes a fixed-width byte array.
	PutCharArray
	// PutNumericArray writes a numeric array.
	PutNumericArray
)

// PutValue is an outgoing write in the representation matching the
// channel's native type.
type PutValue struct {
	Kind    PutKind
	Numeric float64
	Str     string
	Enum    uint16
	Bytes   []byte
	Array   []float64
}

// NumericValue builds a numeric scalar put.
func NumericValue(v float64) PutValue { return PutValue{Kind: PutNumeric, Numeric: v} }

// StringValue builds a text scalar put.
func StringValue(s string) PutValue { return PutValue{Kind: PutString, Str: s} }

// EnumValue builds an enumerated index put.
func EnumValue(i uint16) PutValue { return PutValue{Kind: PutEnum, Enum: i} }

// CharArrayValue builds a fixed-width byte array put.
func CharArrayValue(b []byte) PutValue { return PutValue{Kind: PutCharArray, Bytes: b} }

// ArrayValue builds a numeric array put.
func ArrayValue(a []float64) PutValue { return PutValue{Kind: PutNumericArray, Array: a} }

// Channel is a live wire channel owned by a provider. All callbacks
// registered through a Channel arrive on the provider's I/O goroutine;
// callers marshal them onto their own thread.
type Channel interface {
	// Name returns the variable name the channel was created with.
	Name() string

	// Subscribe opens a wire subscription delivering value events in the
	// requested representation. A count of zero requests the native
	// element count.
	Subscribe(rep FieldType, count int, fn EventHandler) (SubscriptionID, error)

	// Unsubscribe tears down a wire subscription. Events already in flight
	// may still be delivered after Unsubscribe returns.
	Unsubscribe(id SubscriptionID)

	// FetchControlInfo issues a one-shot metadata request. The handler is
	// called at most once, on the I/O goroutine.
	FetchControlInfo(fn MetadataHandler) error

	// Put writes a value to the variable.
	Put(v PutValue) error

	// Close releases the wire channel. Teardown may complete
	// asynchronously; a late event delivered to an already-closed channel
	// is dropped.
	Close()
}

// Provider is a protocol client capable of opening wire channels. The
// connection/session bootstrap behind CreateChannel is the provider's own
// concern.
type Provider interface {
	// CreateChannel opens a wire channel for the named variable. The
	// connection handler fires on every connect/disconnect transition; the
	// access handler (optional, may be nil) fires when write access
	// changes.
	CreateChannel(name string, conn ConnectionHandler, access AccessHandler) (Channel, error)

	// Close tears down the provider and every channel it still owns.
	Close() error
}
