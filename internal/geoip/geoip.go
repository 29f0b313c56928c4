// Package geoip annotates alerts with geographic origin using a MaxMind
// GeoLite2/GeoIP2 City database. The resolver is optional: without a
// database path every lookup reports no result and annotation is a no-op.
package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/forenx/sentinel/internal/models"
)

// Location is the subset of city-level data attached to alerts and
// returned by IP lookups.
type Location struct {
	Country        string  `json:"country,omitempty"`
	CountryCode    string  `json:"country_code,omitempty"`
	Region         string  `json:"region,omitempty"`
	City           string  `json:"city,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	Timezone       string  `json:"timezone,omitempty"`
	AccuracyRadius uint16  `json:"accuracy_radius,omitempty"`
}

// Resolver performs IP-to-location lookups against an mmdb file.
type Resolver struct {
	reader *geoip2.Reader
}

// Open loads the database at path. An empty path returns a disabled
// resolver rather than an error so callers need no special case.
func Open(path string) (*Resolver, error) {
	if path == "" {
		return &Resolver{}, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// Enabled reports whether a database is loaded.
func (r *Resolver) Enabled() bool {
	return r.reader != nil
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

// Lookup resolves a client IP. Private, loopback, link-local and
// unparsable addresses report ok=false without touching the database.
func (r *Resolver) Lookup(addr string) (Location, bool) {
	if r.reader == nil {
		return Location{}, false
	}

	ip := net.ParseIP(addr)
	if ip == nil || isLocal(ip) {
		return Location{}, false
	}

	record, err := r.reader.City(ip)
	if err != nil {
		return Location{}, false
	}

	loc := Location{
		Country:        record.Country.Names["en"],
		CountryCode:    record.Country.IsoCode,
		City:           record.City.Names["en"],
		Latitude:       record.Location.Latitude,
		Longitude:      record.Location.Longitude,
		Timezone:       record.Location.TimeZone,
		AccuracyRadius: record.Location.AccuracyRadius,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	if loc.Country == "" && loc.CountryCode == "" && loc.City == "" {
		return Location{}, false
	}
	return loc, true
}

// Annotate fills the geographic fields on alerts in place. Alerts whose
// client IP cannot be resolved are left untouched.
func (r *Resolver) Annotate(alerts []models.AttackAlert) {
	if r.reader == nil {
		return
	}
	// Alerts from one batch repeat client IPs, so cache per call.
	cache := make(map[string]Location)
	for i := range alerts {
		loc, ok := cache[alerts[i].ClientIP]
		if !ok {
			loc, _ = r.Lookup(alerts[i].ClientIP)
			cache[alerts[i].ClientIP] = loc
		}
		alerts[i].Country = loc.Country
		alerts[i].City = loc.City
	}
}

func isLocal(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
