// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package spacetrack_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/satwatch/catalog/spacetrack"
)

const base = "https://spacetrack.test"

func TestRequestURL(t *testing.T) {
	url := spacetrack.NewRequest(spacetrack.ClassGP).
		NullVal("DECAY_DATE").
		Predicate("OBJECT_NAME", "~~STARLINK").
		OrderBy("NORAD_CAT_ID").
		URL(base)
	require.Equal(t,
		base+"/basicspacedata/query/class/gp/DECAY_DATE/null-val/OBJECT_NAME/~~STARLINK/orderby/NORAD_CAT_ID%20asc/format/json",
		url)

	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	url = spacetrack.NewRequest(spacetrack.ClassGPHistory).
		CatalogNumbers([]int{44713, 44714}).
		Range("EPOCH", start, end).
		OrderBy("EPOCH").
		URL(base)
	require.Equal(t,
		base+"/basicspacedata/query/class/gp_history/NORAD_CAT_ID/44713,44714/EPOCH/2022-01-01--2023-01-01/orderby/EPOCH%20asc/format/json",
		url)

	url = spacetrack.NewRequest(spacetrack.ClassDecay).
		After("DECAY_EPOCH", start).
		OrderByDesc("DECAY_EPOCH").
		URL(base)
	require.Equal(t,
		base+"/basicspacedata/query/class/decay/DECAY_EPOCH/%3E2022-01-01/orderby/DECAY_EPOCH%20desc/format/json",
		url)

	url = spacetrack.NewRequest(spacetrack.ClassTIP).
		OrderByDesc("MSG_EPOCH").
		Limit(20).
		URL(base)
	require.Equal(t,
		base+"/basicspacedata/query/class/tip/orderby/MSG_EPOCH%20desc/limit/20/format/json",
		url)
}

func TestSplitPatterns(t *testing.T) {
	require.Equal(t, []string{"OBJECT_NAME~~STARLINK"}, spacetrack.SplitPatterns("OBJECT_NAME~~STARLINK"))
	require.Equal(t,
		[]string{"OBJECT_NAME~~FLOCK", "OBJECT_NAME~~DOVE", "OBJECT_NAME~~SKYSAT"},
		spacetrack.SplitPatterns("OBJECT_NAME~~FLOCK,OBJECT_NAME~~DOVE,OBJECT_NAME~~SKYSAT"))
	require.Nil(t, spacetrack.SplitPatterns(""))
}

func TestParsePattern(t *testing.T) {
	field, value, ok := spacetrack.ParsePattern("OBJECT_NAME~~STARLINK")
	require.True(t, ok)
	require.Equal(t, "OBJECT_NAME", field)
	require.Equal(t, "~~STARLINK", value)

	field, value, ok = spacetrack.ParsePattern("OBJECT_NAME^ISS")
	require.True(t, ok)
	require.Equal(t, "OBJECT_NAME", field)
	require.Equal(t, "^ISS", value)

	field, value, ok = spacetrack.ParsePattern("OBJECT_TYPE<>DEBRIS")
	require.True(t, ok)
	require.Equal(t, "OBJECT_TYPE", field)
	require.Equal(t, "<>DEBRIS", value)

	field, value, ok = spacetrack.ParsePattern("COUNTRY=US")
	require.True(t, ok)
	require.Equal(t, "COUNTRY", field)
	require.Equal(t, "US", value)

	_, _, ok = spacetrack.ParsePattern("NOOPERATOR")
	require.False(t, ok)
}

func TestParseEpoch(t *testing.T) {
	want := time.Date(2025, 3, 1, 12, 34, 56, 0, time.UTC)

	got, err := spacetrack.ParseEpoch("2025-03-01T12:34:56")
	require.NoError(t, err)
	require.Equal(t, want, got)

	got, err = spacetrack.ParseEpoch("2025-03-01 12:34:56")
	require.NoError(t, err)
	require.Equal(t, want, got)

	got, err = spacetrack.ParseEpoch("2025-03-01T12:34:56.123456")
	require.NoError(t, err)
	require.Equal(t, want.Add(123456*time.Microsecond), got)

	got, err = spacetrack.ParseEpoch("2025-03-01")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = spacetrack.ParseEpoch("March 1st")
	require.Error(t, err)
	require.True(t, spacetrack.ErrMalformedResponse.Has(err))

	// Sub-second epochs round-trip to the same time within a second.
	first, err := spacetrack.ParseEpoch("2025-03-01T12:34:56.987654")
	require.NoError(t, err)
	second, err := spacetrack.ParseEpoch(first.Format("2006-01-02T15:04:05"))
	require.NoError(t, err)
	require.Less(t, first.Sub(second).Abs(), time.Second)
}
