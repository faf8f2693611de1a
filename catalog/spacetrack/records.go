// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package spacetrack

import (
	"strconv"
	"strings"
	"time"
)

// The upstream serializes every field as a JSON string, including
// numbers and dates. The record types keep the wire form and expose
// typed accessors.

// GPRecord is a general-perturbations record from the gp or gp_history
// classes: the latest (or a historical) TLE for one object.
type GPRecord struct {
	NoradCatID  string `json:"NORAD_CAT_ID"`
	ObjectName  string `json:"OBJECT_NAME"`
	IntlDes     string `json:"INTLDES"`
	Epoch       string `json:"EPOCH"`
	TLELine1    string `json:"TLE_LINE1"`
	TLELine2    string `json:"TLE_LINE2"`
	DecayDate   string `json:"DECAY_DATE"`
	MeanMotion  string `json:"MEAN_MOTION"`
	Ecc         string `json:"ECCENTRICITY"`
	Inclination string `json:"INCLINATION"`
	SemiMajor   string `json:"SEMIMAJOR_AXIS"`
	Apoapsis    string `json:"APOAPSIS"`
	Periapsis   string `json:"PERIAPSIS"`
	BStar       string `json:"BSTAR"`
	MeanAnomaly string `json:"MEAN_ANOMALY"`
	RAAN        string `json:"RA_OF_ASC_NODE"`
	ArgPerigee  string `json:"ARG_OF_PERICENTER"`
}

// CatalogNumber returns the record's NORAD catalog number.
func (record GPRecord) CatalogNumber() (int, error) {
	number, err := strconv.Atoi(strings.TrimSpace(record.NoradCatID))
	if err != nil || number <= 0 {
		return 0, ErrMalformedResponse.New("bad catalog number %q", record.NoradCatID)
	}
	return number, nil
}

// EpochTime parses the record's epoch.
func (record GPRecord) EpochTime() (time.Time, error) {
	return ParseEpoch(record.Epoch)
}

// DecayTime parses the record's decay date, when present.
func (record GPRecord) DecayTime() (time.Time, bool) {
	if record.DecayDate == "" {
		return time.Time{}, false
	}
	t, err := ParseEpoch(record.DecayDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SatcatRecord is a satellite-catalog metadata record. Unlike gp it
// includes decayed objects and launch information.
type SatcatRecord struct {
	NoradCatID string `json:"NORAD_CAT_ID"`
	ObjectName string `json:"SATNAME"`
	IntlDes    string `json:"INTLDES"`
	Country    string `json:"COUNTRY"`
	Launch     string `json:"LAUNCH"`
	Site       string `json:"SITE"`
	Decay      string `json:"DECAY"`
	RCS        string `json:"RCS_SIZE"`
	ObjectType string `json:"OBJECT_TYPE"`
}

// CatalogNumber returns the record's NORAD catalog number.
func (record SatcatRecord) CatalogNumber() (int, error) {
	number, err := strconv.Atoi(strings.TrimSpace(record.NoradCatID))
	if err != nil || number <= 0 {
		return 0, ErrMalformedResponse.New("bad catalog number %q", record.NoradCatID)
	}
	return number, nil
}

// CosparID returns the launch identifier: the first 8 characters of the
// international designator. Shorter designators have no launch.
func (record SatcatRecord) CosparID() (string, bool) {
	if len(record.IntlDes) < 8 {
		return "", false
	}
	return record.IntlDes[:8], true
}

// LaunchTime parses the record's launch date, when present.
func (record SatcatRecord) LaunchTime() (time.Time, bool) {
	if record.Launch == "" {
		return time.Time{}, false
	}
	t, err := ParseEpoch(record.Launch)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DecayTime parses the record's decay date, when present.
func (record SatcatRecord) DecayTime() (time.Time, bool) {
	if record.Decay == "" {
		return time.Time{}, false
	}
	t, err := ParseEpoch(record.Decay)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DecayRecord is a confirmed re-entry from the decay class.
type DecayRecord struct {
	NoradCatID string `json:"NORAD_CAT_ID"`
	ObjectName string `json:"OBJECT_NAME"`
	IntlDes    string `json:"INTLDES"`
	DecayEpoch string `json:"DECAY_EPOCH"`
}

// CatalogNumber returns the record's NORAD catalog number.
func (record DecayRecord) CatalogNumber() (int, error) {
	number, err := strconv.Atoi(strings.TrimSpace(record.NoradCatID))
	if err != nil || number <= 0 {
		return 0, ErrMalformedResponse.New("bad catalog number %q", record.NoradCatID)
	}
	return number, nil
}

// DecayTime parses the confirmed re-entry time.
func (record DecayRecord) DecayTime() (time.Time, error) {
	return ParseEpoch(record.DecayEpoch)
}

// TIPRecord is a tracking-and-impact-prediction message: a predicted
// re-entry, not yet a confirmed one.
type TIPRecord struct {
	NoradCatID   string `json:"NORAD_CAT_ID"`
	MsgEpoch     string `json:"MSG_EPOCH"`
	DecayEpoch   string `json:"DECAY_EPOCH"`
	WindowHours  string `json:"WINDOW"`
	HighInterest string `json:"HIGH_INTEREST"`
}

// BoxscoreRecord is a per-country object census from the boxscore class.
type BoxscoreRecord struct {
	Country        string `json:"COUNTRY"`
	SpadocCD       string `json:"SPADOC_CD"`
	OrbitalPayload string `json:"ORBITAL_PAYLOAD_COUNT"`
	OrbitalRocket  string `json:"ORBITAL_ROCKET_BODY_COUNT"`
	OrbitalDebris  string `json:"ORBITAL_DEBRIS_COUNT"`
	OrbitalTotal   string `json:"ORBITAL_TOTAL_COUNT"`
	DecayedTotal   string `json:"DECAYED_TOTAL_COUNT"`
	CountryTotal   string `json:"COUNTRY_TOTAL"`
}

// AnnouncementRecord is an operator announcement from the upstream.
type AnnouncementRecord struct {
	Type  string `json:"announcement_type"`
	Text  string `json:"announcement_text"`
	Start string `json:"announcement_start"`
	End   string `json:"announcement_end"`
}

// epochFormats are the shapes the upstream uses for timestamps. All of
// them are UTC; the upstream never sends zone information.
var epochFormats = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseEpoch parses an upstream timestamp, accepting both the
// second-resolution and the sub-second variants.
func ParseEpoch(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, format := range epochFormats {
		if t, err := time.ParseInLocation(format, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrMalformedResponse.New("unparsable epoch %q", value)
}
