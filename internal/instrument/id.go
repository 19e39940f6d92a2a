// Package instrument parses the exchange's option identifier grammar:
// <CCY>-<DDMMMYY>-<STRIKE>-<C|P>, e.g. BTC-24MAY25-60000-P.
package instrument

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dateRe = regexp.MustCompile(`^(\d{1,2})([A-Z]{3})([0-9]{2})$`)

// ID is a parsed option instrument name.
type ID struct {
	Raw      string
	Currency string
	Strike   float64
	Expiry   time.Time
	IsCall   bool
}

// Parse splits a raw instrument name into its fields. It returns an error if
// the name does not have exactly four dash-delimited fields or if the date,
// strike or call/put discriminator cannot be parsed.
func Parse(raw string) (ID, error) {
	fields := strings.Split(raw, "-")
	if len(fields) != 4 {
		return ID{}, fmt.Errorf("instrument %q: expected 4 dash-delimited fields, got %d", raw, len(fields))
	}
	currency, dateField, strikeField, cp := fields[0], fields[1], fields[2], fields[3]

	expiry, err := ParseExpiry(dateField)
	if err != nil {
		return ID{}, fmt.Errorf("instrument %q: %w", raw, err)
	}

	strike, err := strconv.ParseFloat(strikeField, 64)
	if err != nil {
		return ID{}, fmt.Errorf("instrument %q: bad strike %q: %w", raw, strikeField, err)
	}

	var isCall bool
	switch strings.ToUpper(cp) {
	case "C":
		isCall = true
	case "P":
		isCall = false
	default:
		return ID{}, fmt.Errorf("instrument %q: bad call/put discriminator %q", raw, cp)
	}

	return ID{
		Raw:      raw,
		Currency: currency,
		Strike:   strike,
		Expiry:   expiry,
		IsCall:   isCall,
	}, nil
}

// ParseExpiry parses the DDMMMYY date field (e.g. "24MAY25") into the
// expiry instant at 08:00 UTC on that date, the exchange's standard option
// settlement time.
func ParseExpiry(dateField string) (time.Time, error) {
	m := dateRe.FindStringSubmatch(strings.ToUpper(dateField))
	if m == nil {
		return time.Time{}, fmt.Errorf("bad expiry date %q", dateField)
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad day in expiry date %q", dateField)
	}
	month, err := parseMonth(m[2])
	if err != nil {
		return time.Time{}, err
	}
	yy, err := strconv.Atoi(m[3])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad year in expiry date %q", dateField)
	}
	return time.Date(2000+yy, month, day, 8, 0, 0, 0, time.UTC), nil
}

func parseMonth(abbrev string) (time.Month, error) {
	months := map[string]time.Month{
		"JAN": time.January, "FEB": time.February, "MAR": time.March,
		"APR": time.April, "MAY": time.May, "JUN": time.June,
		"JUL": time.July, "AUG": time.August, "SEP": time.September,
		"OCT": time.October, "NOV": time.November, "DEC": time.December,
	}
	m, ok := months[abbrev]
	if !ok {
		return 0, fmt.Errorf("unknown month abbreviation %q", abbrev)
	}
	return m, nil
}

// YearsUntil returns max(expiry - at, 0) expressed in years, using the
// 365-day convention the aggregate record's CHL_24h field also uses.
func (id ID) YearsUntil(at time.Time) float64 {
	d := id.Expiry.Sub(at).Seconds()
	if d < 0 {
		d = 0
	}
	return d / (365 * 86400)
}
