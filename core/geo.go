package core

import (
	"context"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/oschwald/geoip2-golang"
)

// GeoIPDatabase is optional. When a GeoLite2 City database sits next
// to the binary, the w payload's locale fields follow the proxy's exit
// country instead of the defaults, which reads more like a real
// browser session to the provider's risk engine.
var GeoIPDatabase *geoip2.Reader

var GeoIPDatabasePath = "GeoLite2-City.mmdb"

// geoLookup resolves an exit IP to a city record. It stays nil when
// no database is available; tests substitute their own.
var geoLookup func(net.IP) (*geoip2.City, error)

// exitIPURL returns the caller's public IP as plain text.
var exitIPURL = "https://ipinfo.io/ip"

func init() {
	if _, err := os.Stat(GeoIPDatabasePath); err != nil {
		return
	}
	db, err := geoip2.Open(GeoIPDatabasePath)
	if err != nil {
		log.Printf("geoip database unusable, locale detection disabled: %v", err)
		return
	}
	GeoIPDatabase = db
	geoLookup = db.City
}

// LocaleDetectionAvailable reports whether exit lookups can work.
func LocaleDetectionAvailable() bool { return geoLookup != nil }

// ExitProfile describes the network exit the provider will observe.
type ExitProfile struct {
	Lang           string
	TimezoneOffset int
}

var defaultExitProfile = ExitProfile{Lang: "zh", TimezoneOffset: -480}

// DetectExitProfile resolves the exit IP through this task's client so
// a proxied task reports the proxy's locale, not the host's. Any
// failure falls back to the defaults; locale is flavoring, not a
// requirement.
func (task *GeetestTask) DetectExitProfile(ctx context.Context) ExitProfile {
	if geoLookup == nil {
		return defaultExitProfile
	}

	req, err := fhttp.NewRequestWithContext(ctx, "GET", exitIPURL, nil)
	if err != nil {
		return defaultExitProfile
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := task.Client.Do(req)
	if err != nil {
		return defaultExitProfile
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return defaultExitProfile
	}

	ip := net.ParseIP(strings.TrimSpace(string(body)))
	if ip == nil {
		return defaultExitProfile
	}

	record, err := geoLookup(ip)
	if err != nil || record.Location.TimeZone == "" {
		return defaultExitProfile
	}

	profile := defaultExitProfile
	if iso := record.Country.IsoCode; iso != "" {
		profile.Lang = langForCountry(iso)
	}

	if location, err := time.LoadLocation(record.Location.TimeZone); err == nil {
		_, offsetSeconds := time.Now().In(location).Zone()
		profile.TimezoneOffset = -offsetSeconds / 60
	}

	return profile
}

// langForCountry maps the exit country to the widget language codes
// the provider recognizes. Everything unlisted uses English.
func langForCountry(iso string) string {
	switch iso {
	case "CN", "HK", "MO", "SG":
		return "zh"
	case "TW":
		return "zh-tw"
	case "JP":
		return "ja"
	case "KR":
		return "ko"
	case "RU":
		return "ru"
	default:
		return "en"
	}
}
