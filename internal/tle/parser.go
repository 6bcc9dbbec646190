package tle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// LineLength is the fixed width of both data lines.
const LineLength = 69

const maxMeanMotion = 20.0 // rev/day

// Checksum returns the mod-10 checksum of the first 68 columns of line:
// the sum of all digits plus one for each '-'.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < LineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// ParseLines parses one element set from two data lines, or from a name
// line followed by two data lines.
func ParseLines(lines ...string) (*ElementSet, error) {
	var name string
	switch len(lines) {
	case 2:
	case 3:
		name = cleanName(lines[0])
		lines = lines[1:]
	default:
		return nil, &FormatError{Err: fmt.Errorf("expected 2 or 3 lines, got %d", len(lines))}
	}

	line1 := strings.TrimRight(lines[0], "\r\n\t ")
	line2 := strings.TrimRight(lines[1], "\r\n\t ")
	if err := checkLine(line1, 1); err != nil {
		return nil, err
	}
	if err := checkLine(line2, 2); err != nil {
		return nil, err
	}

	e := &ElementSet{
		Name:      name,
		Line1:     line1,
		Line2:     line2,
		Checksum1: int(line1[68] - '0'),
		Checksum2: int(line2[68] - '0'),
	}
	if err := e.parseLine1(line1); err != nil {
		return nil, err
	}
	if err := e.parseLine2(line2); err != nil {
		return nil, err
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// checkLine verifies width, checksum and line number, in that order.
func checkLine(line string, n int) error {
	if len(line) != LineLength {
		return &FormatError{Line: n, Err: fmt.Errorf("length %d, want %d", len(line), LineLength)}
	}
	last := line[LineLength-1]
	if last < '0' || last > '9' {
		return &FormatError{Line: n, Field: "checksum", Value: string(last), Err: ErrSyntax}
	}
	if want, got := int(last-'0'), Checksum(line); want != got {
		return &ChecksumError{Line: n, Want: want, Got: got}
	}
	if line[0] != byte('0'+n) || line[1] != ' ' {
		return &FormatError{Line: n, Field: "line number", Value: line[:2], Err: ErrSyntax}
	}
	return nil
}

func (e *ElementSet) parseLine1(l string) error {
	var err error
	if e.CatalogNumber, err = parseCatalogNumber(l[2:7]); err != nil {
		return fieldError(1, "catalog number", l[2:7], err)
	}
	e.Classification = l[7]
	if e.Classification == ' ' {
		e.Classification = 'U'
	}
	e.IntlDesignator = strings.TrimSpace(l[9:17])

	yy, err := strconv.Atoi(strings.TrimSpace(l[18:20]))
	if err != nil {
		return fieldError(1, "epoch year", l[18:20], err)
	}
	if yy < 57 {
		e.EpochYear = 2000 + yy
	} else {
		e.EpochYear = 1900 + yy
	}
	if e.EpochDay, err = strconv.ParseFloat(strings.TrimSpace(l[20:32]), 64); err != nil {
		return fieldError(1, "epoch day", l[20:32], err)
	}
	if e.EpochDay < 1 || e.EpochDay >= 367 {
		return &RangeError{Field: "epoch day", Value: e.EpochDay, Min: 1, Max: 367}
	}
	e.Epoch = epochTime(e.EpochYear, e.EpochDay)

	if e.MeanMotionDot, err = strconv.ParseFloat(strings.TrimSpace(l[33:43]), 64); err != nil {
		return fieldError(1, "mean motion dot", l[33:43], err)
	}
	if e.MeanMotionDDot, err = parsePackedExp(l[44:52]); err != nil {
		return fieldError(1, "mean motion ddot", l[44:52], err)
	}
	if e.BStar, err = parsePackedExp(l[53:61]); err != nil {
		return fieldError(1, "bstar", l[53:61], err)
	}
	if e.EphemerisType, err = atoiBlank(l[62:63]); err != nil {
		return fieldError(1, "ephemeris type", l[62:63], err)
	}
	if e.ElementSetNumber, err = atoiBlank(l[64:68]); err != nil {
		return fieldError(1, "element set number", l[64:68], err)
	}
	return nil
}

func (e *ElementSet) parseLine2(l string) error {
	cat, err := parseCatalogNumber(l[2:7])
	if err != nil {
		return fieldError(2, "catalog number", l[2:7], err)
	}
	if cat != e.CatalogNumber {
		return fieldError(2, "catalog number", l[2:7],
			fmt.Errorf("line 1 carries %d", e.CatalogNumber))
	}

	fields := []struct {
		name string
		col  string
		dst  *float64
	}{
		{"inclination", l[8:16], &e.Inclination},
		{"raan", l[17:25], &e.RAAN},
		{"arg perigee", l[34:42], &e.ArgPerigee},
		{"mean anomaly", l[43:51], &e.MeanAnomaly},
		{"mean motion", l[52:63], &e.MeanMotion},
	}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(strings.TrimSpace(f.col), 64); err != nil {
			return fieldError(2, f.name, f.col, err)
		}
	}

	// Eccentricity carries an implied leading decimal point.
	ecc := strings.TrimSpace(l[26:33])
	if ecc == "" || !allDigits(ecc) {
		return fieldError(2, "eccentricity", l[26:33], ErrSyntax)
	}
	if e.Eccentricity, err = strconv.ParseFloat("0."+ecc, 64); err != nil {
		return fieldError(2, "eccentricity", l[26:33], err)
	}

	if e.RevolutionNumber, err = atoiBlank(l[63:68]); err != nil {
		return fieldError(2, "revolution number", l[63:68], err)
	}
	return nil
}

func (e *ElementSet) validate() error {
	checks := []struct {
		field    string
		v        float64
		min, max float64
		ok       bool
	}{
		{"eccentricity", e.Eccentricity, 0, 1, e.Eccentricity >= 0 && e.Eccentricity < 1},
		{"inclination", e.Inclination, 0, 180, e.Inclination >= 0 && e.Inclination <= 180},
		{"raan", e.RAAN, 0, 360, e.RAAN >= 0 && e.RAAN <= 360},
		{"arg perigee", e.ArgPerigee, 0, 360, e.ArgPerigee >= 0 && e.ArgPerigee <= 360},
		{"mean anomaly", e.MeanAnomaly, 0, 360, e.MeanAnomaly >= 0 && e.MeanAnomaly <= 360},
		{"mean motion", e.MeanMotion, 0, maxMeanMotion, e.MeanMotion > 0 && e.MeanMotion <= maxMeanMotion},
	}
	for _, c := range checks {
		if !c.ok || math.IsNaN(c.v) {
			return &RangeError{Field: c.field, Value: c.v, Min: c.min, Max: c.max}
		}
	}
	return nil
}

func fieldError(line int, field, value string, err error) error {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		err = numErr.Err
	}
	return &FormatError{Line: line, Field: field, Value: value, Err: err}
}

// parseCatalogNumber accepts plain five-digit numbers and the Alpha-5
// scheme, where a leading letter (I and O excluded) encodes 10..33.
func parseCatalogNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrSyntax
	}
	if c := s[0]; c >= 'A' && c <= 'Z' {
		if c == 'I' || c == 'O' || len(s) != 5 || !allDigits(s[1:]) {
			return 0, ErrSyntax
		}
		v := int(c-'A') + 10
		if c > 'I' {
			v--
		}
		if c > 'O' {
			v--
		}
		rest, _ := strconv.Atoi(s[1:])
		return v*10000 + rest, nil
	}
	if !allDigits(s) {
		return 0, ErrSyntax
	}
	return strconv.Atoi(s)
}

// parsePackedExp decodes the implied-decimal exponential notation used for
// the second mean-motion derivative and B*: "-12345-3" is -0.12345e-3.
func parsePackedExp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if len(s) < 2 {
		return 0, ErrSyntax
	}
	expDigit := s[len(s)-1]
	if expDigit < '0' || expDigit > '9' {
		return 0, ErrSyntax
	}
	exp := int(expDigit - '0')
	mantissa := s[:len(s)-1]
	switch mantissa[len(mantissa)-1] {
	case '-':
		exp = -exp
		mantissa = mantissa[:len(mantissa)-1]
	case '+', ' ':
		mantissa = mantissa[:len(mantissa)-1]
	}
	mantissa = strings.TrimSpace(mantissa)
	if mantissa == "" || !allDigits(mantissa) {
		return 0, ErrSyntax
	}
	m, err := strconv.ParseFloat("0."+mantissa, 64)
	if err != nil {
		return 0, err
	}
	return sign * m * math.Pow10(exp), nil
}

func atoiBlank(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// cleanName strips the "0 " prefix used by three-line catalog exports.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0 ") {
		s = strings.TrimSpace(s[2:])
	}
	return s
}

// epochTime converts a four-digit year and 1-based fractional day to UTC,
// rounded to the microsecond the eight-digit day fraction can represent.
func epochTime(year int, day float64) time.Time {
	whole := math.Floor(day)
	frac := time.Duration(math.Round((day - whole) * 86400e6))
	t := time.Date(year, 1, int(whole), 0, 0, 0, 0, time.UTC)
	return t.Add(frac * time.Microsecond)
}

// Parse reads a catalog of element sets from r. Entries may carry a name
// line or not. Malformed entries are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]*ElementSet, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n\t ")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading element sets: %w", err)
	}

	var out []*ElementSet
	for i := 0; i < len(lines); {
		var entry []string
		switch {
		case isDataLine(lines[i], '1') && i+1 < len(lines) && isDataLine(lines[i+1], '2'):
			entry = lines[i : i+2]
		case i+2 < len(lines) && isDataLine(lines[i+1], '1') && isDataLine(lines[i+2], '2'):
			entry = lines[i : i+3]
		default:
			logger.Warn("skipping unpaired element set line", "line_index", i, "line", lines[i])
			i++
			continue
		}

		e, err := ParseLines(entry...)
		if err != nil {
			name := ""
			if len(entry) == 3 {
				name = cleanName(entry[0])
			}
			logger.Warn("skipping malformed element set", "line_index", i, "name", name, "error", err)
		} else {
			out = append(out, e)
		}
		i += len(entry)
	}
	return out, nil
}

func isDataLine(s string, n byte) bool {
	return len(s) >= 2 && s[0] == n && s[1] == ' '
}
