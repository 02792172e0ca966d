package channels

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rtsoliday/pvdisplay/pkg/errors"
	"github.com/rtsoliday/pvdisplay/pkg/pv"
)

// putConnectWait bounds how long a one-shot write channel waits for its
// connection before the write is abandoned.
const putConnectWait = time.Second

// PutNumeric writes a numeric value to the named variable.
func (r *Registry) PutNumeric(name string, value float64) error {
	return r.put(name, pv.NumericValue(value))
}

// PutString writes a string value to the named variable.
func (r *Registry) PutString(name, value string) error {
	return r.put(name, pv.StringValue(value))
}

// PutEnum writes an enum index to the named variable.
func (r *Registry) PutEnum(name string, index uint16) error {
	return r.put(name, pv.EnumValue(index))
}

// PutCharArray writes text as a char waveform.
func (r *Registry) PutCharArray(name string, text []byte) error {
	return r.put(name, pv.CharArrayValue(text))
}

// PutNumericArray writes a numeric waveform.
func (r *Registry) PutNumericArray(name string, values []float64) error {
	return r.put(name, pv.ArrayValue(values))
}

// put routes a write. A live connected entry for the name is reused in
// preference to opening a one-shot channel; writes never create a lasting
// subscription.
func (r *Registry) put(name string, value pv.PutValue) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return pv.ErrBadName
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("registry closed")
	}
	var ch pv.Channel
	for key, e := range r.entries {
		if key.Name == trimmed && e.connected && e.channel != nil {
			ch = e.channel
			break
		}
	}
	r.mu.Unlock()

	if ch != nil {
		if err := ch.Put(value); err != nil {
			r.reportPutError(trimmed, err)
			return err
		}
		return nil
	}
	return r.putOneShot(trimmed, value)
}

// putOneShot opens a temporary channel, waits briefly for it to connect,
// writes, and closes it.
func (r *Registry) putOneShot(name string, value pv.PutValue) error {
	parsed := pv.ParseName(name)
	provider := r.resolver(parsed)
	if provider == nil {
		err := fmt.Errorf("no provider for scheme %q", parsed.Scheme)
		r.reportPutError(name, err)
		return err
	}

	var mu sync.Mutex
	connected := make(chan struct{})
	var once sync.Once
	ch, err := provider.CreateChannel(parsed.Name,
		func(up bool, _ pv.FieldType, _ int) {
			mu.Lock()
			defer mu.Unlock()
			if up {
				once.Do(func() { close(connected) })
			}
		}, nil)
	if err != nil {
		r.reportPutError(name, err)
		return err
	}
	defer ch.Close()

	select {
	case <-connected:
	case <-time.After(putConnectWait):
		r.reportPutError(name, pv.ErrNotConnected)
		return pv.ErrNotConnected
	}
	if err := ch.Put(value); err != nil {
		r.reportPutError(name, err)
		return err
	}
	return nil
}

func (r *Registry) reportPutError(name string, err error) {
	errors.Report(&errors.RuntimeError{
		Op:   "channels.Put",
		Kind: errors.KindWrite,
		PV:   name,
		Err:  err,
	})
}
