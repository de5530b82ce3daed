package modem

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/simgw/at"
)

// Coord is a decoded GPS fix.
type Coord struct {
	// Latitude in degrees, negative in the southern hemisphere.
	Latitude float64 `json:"latitude"`
	// Longitude in degrees, negative west of Greenwich.
	Longitude float64 `json:"longitude"`
	// Altitude in meters.
	Altitude float64 `json:"altitude"`
	// Time of the fix in UTC.
	Time time.Time `json:"time"`
}

// ParseCoord decodes a +CGPSINFO payload of the form
//
//	ddmm.mmmmmm,N|S,dddmm.mmmmmm,E|W,DDMMYY,hhmmss.s,altitude[,speed,course]
//
// for example "3113.343286,N,12121.234064,E,250311,072809.3,44.1,0.0,0".
// Every one of the thirteen values must be present and in range, otherwise
// ErrDecode is returned. The empty payload the modem reports before its
// first fix (",,,,,,,,") fails the same way.
func ParseCoord(payload string) (Coord, error) {
	fields := at.Fields(payload)
	if len(fields) < 7 {
		return Coord{}, fmt.Errorf("%w: coordinate %q: %d fields", ErrDecode, payload, len(fields))
	}

	lat, err := parseAngle(fields[0], fields[1], 2, 90, 'N', 'S')
	if err != nil {
		return Coord{}, fmt.Errorf("%w: latitude: %w", ErrDecode, err)
	}
	lon, err := parseAngle(fields[2], fields[3], 3, 180, 'E', 'W')
	if err != nil {
		return Coord{}, fmt.Errorf("%w: longitude: %w", ErrDecode, err)
	}
	ts, err := parseFixTime(fields[4], fields[5])
	if err != nil {
		return Coord{}, fmt.Errorf("%w: time: %w", ErrDecode, err)
	}
	alt, err := parseFloat(fields[6])
	if err != nil {
		return Coord{}, fmt.Errorf("%w: altitude: %w", ErrDecode, err)
	}

	return Coord{
		Latitude:  lat,
		Longitude: lon,
		Altitude:  alt,
		Time:      ts,
	}, nil
}

// parseAngle decodes degrees and decimal minutes, where the first degDigits
// characters are whole degrees, and applies the hemisphere sign.
func parseAngle(value, hemisphere string, degDigits int, limit float64, positive, negative byte) (float64, error) {
	if len(value) <= degDigits {
		return 0, fmt.Errorf("value %q too short", value)
	}
	deg, err := parseDigits(value[:degDigits])
	if err != nil {
		return 0, err
	}
	minutes, err := parseFloat(value[degDigits:])
	if err != nil {
		return 0, err
	}
	if minutes < 0 || minutes >= 60 {
		return 0, fmt.Errorf("minutes %v out of range", minutes)
	}

	angle := float64(deg) + minutes/60
	if angle > limit {
		return 0, fmt.Errorf("%v degrees out of range", angle)
	}

	if len(hemisphere) != 1 {
		return 0, fmt.Errorf("hemisphere %q", hemisphere)
	}
	switch hemisphere[0] {
	case positive:
		return angle, nil
	case negative:
		return -angle, nil
	default:
		return 0, fmt.Errorf("hemisphere %q", hemisphere)
	}
}

// parseFixTime decodes DDMMYY and hhmmss.s into a UTC time in the 2000s.
func parseFixTime(date, clock string) (time.Time, error) {
	if len(date) != 6 {
		return time.Time{}, fmt.Errorf("date %q", date)
	}
	day, err := parseDigits(date[0:2])
	if err != nil {
		return time.Time{}, err
	}
	month, err := parseDigits(date[2:4])
	if err != nil {
		return time.Time{}, err
	}
	year, err := parseDigits(date[4:6])
	if err != nil {
		return time.Time{}, err
	}

	if len(clock) < 6 {
		return time.Time{}, fmt.Errorf("clock %q", clock)
	}
	hour, err := parseDigits(clock[0:2])
	if err != nil {
		return time.Time{}, err
	}
	minute, err := parseDigits(clock[2:4])
	if err != nil {
		return time.Time{}, err
	}
	sec, err := parseFloat(clock[4:])
	if err != nil {
		return time.Time{}, err
	}

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec < 0 || sec >= 61 {
		return time.Time{}, fmt.Errorf("date %q clock %q out of range", date, clock)
	}

	whole, frac := math.Modf(sec)
	ts := time.Date(2000+year, time.Month(month), day, hour, minute, int(whole),
		int(math.Round(frac*1e3))*int(time.Millisecond), time.UTC)
	if ts.Day() != day {
		return time.Time{}, fmt.Errorf("date %q does not exist", date)
	}
	return ts, nil
}

func parseDigits(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	return strconv.Atoi(s)
}

func parseFloat(s string) (float64, error) {
	if s == "" || strings.Trim(s, "+-.0123456789") != "" {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return f, nil
}
