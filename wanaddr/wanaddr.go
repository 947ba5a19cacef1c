// Package wanaddr looks up the connection's public address and the
// geolocation data attached to it. Several commercial lookup services
// answer the same question with different payloads; each provider
// normalizes its payload into one canonical record.
package wanaddr

import (
	"math"
	"net/netip"
	"strings"
	"time"
)

// Info is the canonical public-address record. Optional text fields
// are empty when the provider did not report them; optional
// coordinates are nil so that absence survives a round trip through
// JSON.
type Info struct {
	IP           string    `json:"ip"`
	Hostname     string    `json:"hostname,omitempty"`
	City         string    `json:"city,omitempty"`
	Region       string    `json:"region,omitempty"`
	Country      string    `json:"country,omitempty"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	Organization string    `json:"organization,omitempty"`
	PostalCode   string    `json:"postal_code,omitempty"`
	Timezone     string    `json:"timezone,omitempty"`
	Source       string    `json:"source"`
	Timestamp    time.Time `json:"timestamp"`
}

// Normalize returns the canonical form of a record: text fields
// trimmed, the address in canonical textual form, and coordinates
// dropped when they are outside the valid range. Normalizing an
// already canonical record changes nothing.
func Normalize(in Info) Info {
	out := in
	out.IP = canonicalAddr(in.IP)
	out.Hostname = strings.TrimSpace(in.Hostname)
	out.City = strings.TrimSpace(in.City)
	out.Region = strings.TrimSpace(in.Region)
	out.Country = strings.TrimSpace(in.Country)
	out.Organization = strings.TrimSpace(in.Organization)
	out.PostalCode = strings.TrimSpace(in.PostalCode)
	out.Timezone = strings.TrimSpace(in.Timezone)
	out.Latitude = boundedCoord(in.Latitude, 90)
	out.Longitude = boundedCoord(in.Longitude, 180)
	return out
}

func canonicalAddr(s string) string {
	s = strings.TrimSpace(s)
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.String()
	}
	return s
}

func boundedCoord(v *float64, bound float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.Abs(*v) > bound {
		return nil
	}
	return v
}
