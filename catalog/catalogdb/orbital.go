// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"math"
	"strconv"
	"strings"

	"github.com/zeebo/errs"
)

// ErrBadTLE is returned for TLE lines the derivation cannot read.
var ErrBadTLE = errs.Class("bad tle")

const (
	// muEarth is the standard gravitational parameter of Earth, km³/s².
	muEarth = 398600.4418
	// earthRadiusKm is the equatorial radius used for apogee/perigee.
	earthRadiusKm = 6378.137
)

// OrbitalParams are the elements derived from TLE line 2 at write time.
// The derivation is deterministic: re-ingesting the same TLE always
// produces identical values.
type OrbitalParams struct {
	Inclination     float64
	Eccentricity    float64
	MeanMotion      float64
	PeriodMinutes   float64
	SemiMajorAxisKm float64
	ApogeeKm        float64
	PerigeeKm       float64
}

// DeriveOrbitalParams computes orbital elements from the fixed-column
// fields of TLE line 2.
func DeriveOrbitalParams(line2 string) (OrbitalParams, error) {
	if len(line2) < 63 {
		return OrbitalParams{}, ErrBadTLE.New("line 2 has %d characters", len(line2))
	}

	inclination, err := parseTLEField(line2[8:16])
	if err != nil {
		return OrbitalParams{}, ErrBadTLE.New("inclination: %w", err)
	}
	// The eccentricity field carries an implied leading decimal point.
	eccentricity, err := parseTLEField("0." + strings.TrimSpace(line2[26:33]))
	if err != nil {
		return OrbitalParams{}, ErrBadTLE.New("eccentricity: %w", err)
	}
	meanMotion, err := parseTLEField(line2[52:63])
	if err != nil {
		return OrbitalParams{}, ErrBadTLE.New("mean motion: %w", err)
	}
	if meanMotion <= 0 {
		return OrbitalParams{}, ErrBadTLE.New("mean motion %v rev/day", meanMotion)
	}

	period := 1440 / meanMotion
	semiMajor := math.Cbrt(muEarth * math.Pow(period*60/(2*math.Pi), 2))

	return OrbitalParams{
		Inclination:     inclination,
		Eccentricity:    eccentricity,
		MeanMotion:      meanMotion,
		PeriodMinutes:   period,
		SemiMajorAxisKm: semiMajor,
		ApogeeKm:        semiMajor*(1+eccentricity) - earthRadiusKm,
		PerigeeKm:       semiMajor*(1-eccentricity) - earthRadiusKm,
	}, nil
}

func parseTLEField(field string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(field), 64)
}
