// Package geoip resolves server addresses to country codes for the
// test report.
package geoip

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

var (
	countryReader *geoip2.Reader
	once          sync.Once
	initErr       error
)

// Init loads the country MMDB from path. An empty path disables
// lookups without error.
func Init(path string) error {
	once.Do(func() {
		if path == "" {
			return
		}
		var err error
		countryReader, err = geoip2.Open(path)
		if err != nil {
			initErr = fmt.Errorf("failed to open country DB at %s: %w", path, err)
		}
	})
	return initErr
}

// Country returns the ISO country code for a host. Domain names are
// resolved first. Returns "XX" when the database is missing or the
// address cannot be located.
func Country(host string) string {
	if countryReader == nil {
		return "XX"
	}

	ip := net.ParseIP(host)
	if ip == nil {
		addrs, err := net.LookupIP(host)
		if err != nil || len(addrs) == 0 {
			return "XX"
		}
		ip = addrs[0]
	}

	c, err := countryReader.Country(ip)
	if err != nil || c.Country.IsoCode == "" {
		return "XX"
	}
	return c.Country.IsoCode
}

func Close() {
	if countryReader != nil {
		countryReader.Close()
		countryReader = nil
	}
}
