// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"time"
)

// Constellation is one named satellite group.
type Constellation struct {
	ID             int64
	Slug           string
	DisplayName    string
	Query          string
	Category       string
	Color          string
	Description    string
	SatelliteCount int
	UpdatedAt      *time.Time
}

// Satellite is one tracked object. Created on first observation,
// updated on each refresh, never deleted even after decay.
type Satellite struct {
	ID              int64
	CatalogNumber   int
	Name            string
	ConstellationID *int64
	IntlDesignator  string
	LaunchDate      *time.Time
	DecayDate       *time.Time
	CountryCode     string
	ObjectType      string
	RCSSize         string
	TLELine1        string
	TLELine2        string
	TLEEpoch        *time.Time
	Orbital         OrbitalParams
	IsActive        bool
	TLEUpdatedAt    *time.Time
	CreatedAt       time.Time
}

// HistoryRecord is one archived TLE. Append-only; a (satellite, epoch)
// pair exists at most once.
type HistoryRecord struct {
	ID          int64
	SatelliteID int64
	TLELine1    string
	TLELine2    string
	Epoch       time.Time
	Orbital     OrbitalParams
	Source      string
	RecordedAt  time.Time
}

// Source tags for history records.
const (
	SourceLiveRefresh   = "live-refresh"
	SourceBackfill      = "backfill"
	SourceArchiveImport = "archive-import"
)

// Launch groups satellites sharing a COSPAR launch identifier.
type Launch struct {
	ID          int64
	CosparID    string
	MissionName string
	LaunchDate  *time.Time
	LaunchSite  string
	RocketType  string
}

// SatelliteRef is the lightweight satellite view used for planning.
type SatelliteRef struct {
	ID            int64
	CatalogNumber int
	Name          string
}
