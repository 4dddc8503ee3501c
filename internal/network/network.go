package network

import (
	"net/http"
	"strings"
)

// Class labels the connection quality of the requesting device.
type Class string

const (
	Class4G      Class = "4g"
	ClassWiFi    Class = "wifi"
	ClassUnknown Class = "unknown"
	Class3G      Class = "3g"
	Class2G      Class = "2g"
	ClassSlow2G  Class = "slow-2g"
	ClassNone    Class = "none"
)

const (
	HeaderNetworkClass = "X-Network-Class"
	HeaderECT          = "ECT"
	HeaderSaveData     = "Save-Data"
)

// Source reports the current network class. It is called once per
// resolution because the network can change between calls.
type Source func() Class

// Parse normalizes a label. Empty input and the legacy "unknow" spelling map
// to ClassUnknown; anything else is kept lower-cased.
func Parse(label string) Class {
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case "", "unknow", string(ClassUnknown):
		return ClassUnknown
	default:
		return Class(label)
	}
}

// Static always reports c.
func Static(c Class) Source {
	return func() Class { return c }
}

// Safe wraps src so that a nil source, a panic or an empty answer all read
// as ClassUnknown.
func Safe(src Source) Source {
	if src == nil {
		return Static(ClassUnknown)
	}
	return func() (c Class) {
		defer func() {
			if recover() != nil {
				c = ClassUnknown
			}
		}()
		return Parse(string(src()))
	}
}

// FromRequest derives the class from request headers: an explicit
// X-Network-Class wins, then the ECT client hint, then Save-Data.
func FromRequest(r *http.Request) Class {
	if v := r.Header.Get(HeaderNetworkClass); v != "" {
		return Parse(v)
	}
	if v := r.Header.Get(HeaderECT); v != "" {
		return Parse(v)
	}
	if strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderSaveData)), "on") {
		return Class2G
	}
	return ClassUnknown
}
