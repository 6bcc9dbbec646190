package tle

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  30306-3 0  9999"
	issLine2 = "2 25544  51.6400 247.4627 0006703 130.5360 325.0288 15.49560000 44695"
)

const (
	geoLine1 = "1 26038U 00011A   24100.50000000 -.00000267  00000-0  00000+0 0  9998"
	geoLine2 = "2 26038   0.0500 100.0000 0002000 200.0000 160.0000  1.00270000 12348"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestParseLinesISS(t *testing.T) {
	e, err := ParseLines(issLine1, issLine2)
	require.NoError(t, err)

	assert.Equal(t, 25544, e.CatalogNumber)
	assert.Equal(t, byte('U'), e.Classification)
	assert.Equal(t, "98067A", e.IntlDesignator)
	assert.Equal(t, 2024, e.EpochYear)
	assert.InDelta(t, 100.5, e.EpochDay, 1e-12)
	assert.Equal(t, time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC), e.Epoch)
	assert.InDelta(t, 0.00016717, e.MeanMotionDot, 1e-15)
	assert.Equal(t, 0.0, e.MeanMotionDDot)
	assert.InDelta(t, 0.30306e-3, e.BStar, 1e-15)
	assert.Equal(t, 0, e.EphemerisType)
	assert.Equal(t, 999, e.ElementSetNumber)
	assert.InDelta(t, 51.64, e.Inclination, 1e-12)
	assert.InDelta(t, 247.4627, e.RAAN, 1e-12)
	assert.InDelta(t, 0.0006703, e.Eccentricity, 1e-15)
	assert.InDelta(t, 130.536, e.ArgPerigee, 1e-12)
	assert.InDelta(t, 325.0288, e.MeanAnomaly, 1e-12)
	assert.InDelta(t, 15.4956, e.MeanMotion, 1e-12)
	assert.Equal(t, 4469, e.RevolutionNumber)
	assert.Equal(t, 9, e.Checksum1)
	assert.Equal(t, 5, e.Checksum2)
	assert.Equal(t, issLine1, e.Line1)
	assert.Equal(t, issLine2, e.Line2)
	assert.Empty(t, e.Name)

	assert.InDelta(t, 92.93, e.Period().Minutes(), 0.01)
	assert.False(t, e.IsDeepSpace())
	assert.InDelta(t, 6796.15, e.SemiMajorAxis(), 0.05)
	assert.InDelta(t, 413.46, e.PerigeeAltitude(), 0.1)
	assert.Greater(t, e.ApogeeAltitude(), e.PerigeeAltitude())
}

func TestParseLinesWithName(t *testing.T) {
	for _, name := range []string{"ISS (ZARYA)", "0 ISS (ZARYA)", "  ISS (ZARYA)  "} {
		e, err := ParseLines(name, issLine1, issLine2)
		require.NoError(t, err, name)
		assert.Equal(t, "ISS (ZARYA)", e.Name)
	}
}

func TestParseLinesTrailingWhitespace(t *testing.T) {
	e, err := ParseLines(issLine1+"\r\n", issLine2+"  ")
	require.NoError(t, err)
	assert.Equal(t, issLine1, e.Line1)
}

func TestParseLinesDeepSpace(t *testing.T) {
	e, err := ParseLines(geoLine1, geoLine2)
	require.NoError(t, err)
	assert.True(t, e.IsDeepSpace())
	assert.InDelta(t, -0.00000267, e.MeanMotionDot, 1e-15)
	assert.Equal(t, 0.0, e.BStar)
	assert.InDelta(t, 35786, e.PerigeeAltitude(), 20)
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, 9, Checksum(issLine1))
	assert.Equal(t, 5, Checksum(issLine2))
	assert.Equal(t, 0, Checksum(""))
	assert.Equal(t, 1, Checksum("-"))
	assert.Equal(t, 6, Checksum("1 2 3 ABC +"))
	// Column 69 never contributes.
	assert.Equal(t, Checksum(issLine1[:68]), Checksum(issLine1[:68]+"7"))
}

// Changing any single digit in columns 1-68 must be caught by the checksum.
func TestChecksumDetectsEveryDigit(t *testing.T) {
	for _, line := range []string{issLine1, issLine2} {
		for i := 0; i < LineLength-1; i++ {
			c := line[i]
			if c < '0' || c > '9' {
				continue
			}
			b := []byte(line)
			b[i] = '0' + (c-'0'+1)%10
			mutated := string(b)

			var err error
			if line[0] == '1' {
				_, err = ParseLines(mutated, issLine2)
			} else {
				_, err = ParseLines(issLine1, mutated)
			}
			var ce *ChecksumError
			if !errors.As(err, &ce) {
				t.Errorf("column %d of line %c: err = %v, want ChecksumError", i+1, line[0], err)
			}
		}
	}
}

func TestParseLinesErrors(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
		check        func(t *testing.T, err error)
	}{
		{
			name:  "short line",
			line1: issLine1[:60], line2: issLine2,
			check: func(t *testing.T, err error) {
				var fe *FormatError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, 1, fe.Line)
			},
		},
		{
			name:  "bad checksum",
			line1: issLine1, line2: issLine2[:68] + "0",
			check: func(t *testing.T, err error) {
				var ce *ChecksumError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, 2, ce.Line)
				assert.Equal(t, 0, ce.Want)
				assert.Equal(t, 5, ce.Got)
			},
		},
		{
			name:  "non-digit checksum",
			line1: issLine1[:68] + "X", line2: issLine2,
			check: func(t *testing.T, err error) {
				var fe *FormatError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, "checksum", fe.Field)
			},
		},
		{
			name:  "lines swapped",
			line1: issLine2, line2: issLine1,
			check: func(t *testing.T, err error) {
				var fe *FormatError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, "line number", fe.Field)
				assert.ErrorIs(t, err, ErrSyntax)
			},
		},
		{
			name:  "catalog mismatch",
			line1: issLine1, line2: "2 25545  51.6400 247.4627 0006703 130.5360 325.0288 15.49560000 44696",
			check: func(t *testing.T, err error) {
				var fe *FormatError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, 2, fe.Line)
				assert.Equal(t, "catalog number", fe.Field)
			},
		},
		{
			name:  "missing classification",
			line1: "1 25544  98067A   24100.50000000  .00016717  00000-0  30306-3 0  9999", line2: issLine2,
			check: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
		},
		{
			name:  "inclination out of range",
			line1: issLine1, line2: "2 25544 190.0000 247.4627 0006703 130.5360 325.0288 15.49560000 44699",
			check: func(t *testing.T, err error) {
				var re *RangeError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, "inclination", re.Field)
				assert.Equal(t, 190.0, re.Value)
			},
		},
		{
			name:  "zero mean motion",
			line1: issLine1, line2: "2 25544  51.6400 247.4627 0006703 130.5360 325.0288  0.00000000 44695",
			check: func(t *testing.T, err error) {
				var re *RangeError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, "mean motion", re.Field)
			},
		},
		{
			name:  "mean motion too high",
			line1: issLine1, line2: "2 25544  51.6400 247.4627 0006703 130.5360 325.0288 25.00000000 44692",
			check: func(t *testing.T, err error) {
				var re *RangeError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, "mean motion", re.Field)
			},
		},
		{
			name:  "day zero",
			line1: "1 25544U 98067A   24000.50000000  .00016717  00000-0  30306-3 0  9998", line2: issLine2,
			check: func(t *testing.T, err error) {
				var re *RangeError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, "epoch day", re.Field)
			},
		},
		{
			name:  "letter in eccentricity",
			line1: issLine1, line2: "2 25544  51.6400 247.4627 00a6703 130.5360 325.0288 15.49560000 44695",
			check: func(t *testing.T, err error) {
				var fe *FormatError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, "eccentricity", fe.Field)
				assert.ErrorIs(t, err, ErrSyntax)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLines(tt.line1, tt.line2)
			tt.check(t, err)
		})
	}
}

func TestParseLinesArity(t *testing.T) {
	_, err := ParseLines(issLine1)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 0, fe.Line)

	_, err = ParseLines("a", "b", "c", "d")
	require.Error(t, err)
}

func TestParseLinesAlpha5(t *testing.T) {
	tests := []struct {
		line1, line2 string
		want         int
	}{
		{
			"1 A0001U 98067A   24100.50000000  .00016717  00000-0  30306-3 0  9990",
			"2 A0001  51.6400 247.4627 0006703 130.5360 325.0288 15.49560000 44696",
			100001,
		},
		{
			"1 Z9999U 98067A   24100.50000000  .00016717  00000-0  30306-3 0  9995",
			"2 Z9999  51.6400 247.4627 0006703 130.5360 325.0288 15.49560000 44691",
			339999,
		},
	}
	for _, tt := range tests {
		e, err := ParseLines(tt.line1, tt.line2)
		require.NoError(t, err)
		assert.Equal(t, tt.want, e.CatalogNumber)
	}
}

func TestParseCatalogNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"25544", 25544, false},
		{"00005", 5, false},
		{"    5", 5, false},
		{"A0000", 100000, false},
		{"H9999", 179999, false},
		{"J0000", 180000, false},
		{"P0000", 230000, false},
		{"I0000", 0, true},
		{"O1234", 0, true},
		{"A12", 0, true},
		{"12a45", 0, true},
		{"     ", 0, true},
	}
	for _, tt := range tests {
		got, err := parseCatalogNumber(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParsePackedExp(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{" 30306-3", 0.30306e-3, false},
		{"-12345-3", -0.12345e-3, false},
		{" 28098-4", 0.28098e-4, false},
		{" 00000-0", 0, false},
		{" 00000+0", 0, false},
		{"+12345+1", 1.2345, false},
		{" 12345 2", 12.345, false},
		{"        ", 0, false},
		{" abcde-1", 0, true},
		{"      1-", 0, true},
		{"      -5", 0, true},
	}
	for _, tt := range tests {
		got, err := parsePackedExp(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%q", tt.in)
			continue
		}
		require.NoError(t, err, "%q", tt.in)
		assert.InDelta(t, tt.want, got, 1e-12, "%q", tt.in)
	}
}

func TestEpochYearWindow(t *testing.T) {
	e, err := ParseLines("1 25544U 98067A   57001.00000000  .00016717  00000-0  30306-3 0  9990", issLine2)
	require.NoError(t, err)
	assert.Equal(t, 1957, e.EpochYear)
	assert.Equal(t, time.Date(1957, 1, 1, 0, 0, 0, 0, time.UTC), e.Epoch)

	e, err = ParseLines("1 25544U 98067A   24100.75000000  .00016717  00000-0  30306-3 0  9996", issLine2)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 9, 18, 0, 0, 0, time.UTC), e.Epoch)
}

func TestEpochTimeRounding(t *testing.T) {
	got := epochTime(2000, 179.78495062)
	want := time.Date(2000, 6, 27, 18, 50, 19, 733568000, time.UTC)
	assert.WithinDuration(t, want, got, time.Microsecond)
	assert.Zero(t, got.Nanosecond()%1000)
}

func TestParse(t *testing.T) {
	catalog := strings.Join([]string{
		"ISS (ZARYA)",
		issLine1,
		issLine2,
		"",
		geoLine1,
		geoLine2,
		"BROKEN",
		issLine1,
		issLine2[:68] + "0",
		"stray line",
		"0 GEO COPY",
		geoLine1,
		geoLine2,
	}, "\r\n")

	var logs bytes.Buffer
	got, err := Parse(strings.NewReader(catalog), testLogger(&logs))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "ISS (ZARYA)", got[0].Name)
	assert.Equal(t, 25544, got[0].CatalogNumber)
	assert.Equal(t, "", got[1].Name)
	assert.Equal(t, 26038, got[1].CatalogNumber)
	assert.Equal(t, "GEO COPY", got[2].Name)

	out := logs.String()
	assert.Contains(t, out, "skipping malformed element set")
	assert.Contains(t, out, `"name":"BROKEN"`)
	assert.Contains(t, out, "skipping unpaired element set line")
}

func TestParseEmpty(t *testing.T) {
	var logs bytes.Buffer
	got, err := Parse(strings.NewReader("\n\n"), testLogger(&logs))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, logs.String())
}
