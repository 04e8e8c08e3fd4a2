package series

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockCache/internal/model"
	"StockCache/internal/schema"
)

func fp(f float64) *float64 { return &f }

func record(date string, open, high, low, close float64) schema.Record {
	return schema.Record{
		Timestamp: date,
		Open:      fp(open),
		High:      fp(high),
		Low:       fp(low),
		Close:     fp(close),
	}
}

func TestClean_SortsAndLocalizes(t *testing.T) {
	hk, err := time.LoadLocation("Asia/Hong_Kong")
	require.NoError(t, err)

	records := []schema.Record{
		record("2024-01-03", 10, 11, 9, 10.5),
		record("2024-01-01", 10, 11, 9, 10.1),
		record("2024-01-02", 10, 11, 9, 10.2),
	}
	bars, rep, err := Clean(records, hk)
	require.NoError(t, err)
	assert.Zero(t, rep.Dropped())
	require.Len(t, bars, 3)
	assert.True(t, bars.Ascending())

	// Naive "2024-01-01" is localized as UTC, converted, and truncated to
	// the calendar day in the target zone.
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, hk)
	assert.True(t, bars[0].Time.Equal(want))
	assert.Equal(t, hk, bars[0].Time.Location())
}

func TestClean_DedupeKeepsLastOccurrence(t *testing.T) {
	records := []schema.Record{
		record("2024-01-01", 10, 11, 9, 10.1),
		record("2024-01-02", 10, 11, 9, 10.2),
		record("2024-01-02", 10, 11, 9, 99.9), // same date, later in input
	}
	bars, rep, err := Clean(records, time.UTC)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1, rep.Duplicate)
	assert.Equal(t, 99.9, bars[1].Close)
}

func TestClean_DropRules(t *testing.T) {
	missingHigh := record("2024-01-03", 10, 0, 9, 10.3)
	missingHigh.High = nil

	records := []schema.Record{
		record("2024-01-01", 10, 11, 9, 10.1),
		record("2024-01-02", 10, 11, 9, 10.2),
		missingHigh,
		record("2024-01-04", 10, 11, 9, 0),    // close == 0
		record("2024-01-05", 10, 11, 9, -1.5), // close < 0
		{Timestamp: "garbage", Open: fp(1), High: fp(1), Low: fp(1), Close: fp(1)},
	}
	bars, rep, err := Clean(records, time.UTC)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 1, rep.MissingPrice)
	assert.Equal(t, 2, rep.NonPositiveClose)
	assert.Equal(t, 1, rep.BadTimestamp)
	assert.Equal(t, 4, rep.Dropped())
}

func TestClean_InsufficientData(t *testing.T) {
	records := []schema.Record{
		record("2024-01-01", 10, 11, 9, 10.1),
		record("2024-01-01", 10, 11, 9, 10.2), // duplicate collapses to one row
	}
	_, _, err := Clean(records, time.UTC)

	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 1, insufficient.Rows)
}

func TestClean_MixedAwareAndNaive(t *testing.T) {
	records := []schema.Record{
		record("2024-01-01", 10, 11, 9, 10.1),
		record("2024-01-02T00:00:00Z", 10, 11, 9, 10.2),
	}
	_, _, err := Clean(records, time.UTC)

	var tzErr *TimezoneError
	require.True(t, errors.As(err, &tzErr))
}

func TestClean_AwareTimestampsConvertedNotRelocalized(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	records := []schema.Record{
		record("2024-01-02T01:30:00Z", 10, 11, 9, 10.1),
		record("2024-01-03T01:30:00Z", 10, 11, 9, 10.2),
	}
	bars, _, err := Clean(records, ny)
	require.NoError(t, err)

	// 01:30 UTC is the previous evening in New York: conversion, not
	// relocalization, decides which calendar day the bar lands on.
	assert.True(t, bars[0].Time.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, ny)))
	assert.Equal(t, ny, bars[0].Time.Location())
}

func TestClean_IntradayStampsCollapseToCalendarDays(t *testing.T) {
	hk, err := time.LoadLocation("Asia/Hong_Kong")
	require.NoError(t, err)

	// Providers stamp daily bars at market open (09:30 HK is 01:30 UTC).
	openStamp := func(day int) schema.Record {
		r := record("", 10, 11, 9, 10+float64(day)/10)
		r.Timestamp = time.Date(2024, 1, day, 1, 30, 0, 0, time.UTC).Unix()
		return r
	}
	afternoon := record("", 10, 11, 9, 99.9)
	afternoon.Timestamp = time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC).Unix()

	bars, rep, err := Clean([]schema.Record{openStamp(1), openStamp(2), afternoon}, hk)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.True(t, bars[0].Time.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, hk)))
	assert.True(t, bars[1].Time.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, hk)))
	assert.Equal(t, 1, rep.Duplicate, "two prints on the same HK day collapse")
	assert.Equal(t, 99.9, bars[1].Close, "last print of the day wins")
}

func TestLocalizeNaive_RejectsAware(t *testing.T) {
	aware := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := LocalizeNaive(aware, time.UTC)

	var tzErr *TimezoneError
	require.True(t, errors.As(err, &tzErr))
}

func TestCleanBars_Idempotent(t *testing.T) {
	records := []schema.Record{
		record("2024-01-02", 10, 11, 9, 10.2),
		record("2024-01-01", 10, 11, 9, 10.1),
		record("2024-01-02", 10, 11, 9, 10.9),
		record("2024-01-03", 10, 11, 9, 10.3),
	}
	once, _, err := Clean(records, time.UTC)
	require.NoError(t, err)

	twice, rep, err := CleanBars(once)
	require.NoError(t, err)
	assert.Zero(t, rep.Dropped())
	assert.True(t, once.Equal(twice))
}

func TestCleanBars_OrdersUnsortedSeries(t *testing.T) {
	mk := func(day int, close float64) model.Bar {
		return model.Bar{Time: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: close}
	}
	bars, rep, err := CleanBars(model.Series{mk(3, 3), mk(1, 1), mk(2, 2), mk(2, 2.5)})
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.True(t, bars.Ascending())
	assert.Equal(t, 2.5, bars[1].Close, "last occurrence wins")
	assert.Equal(t, 1, rep.Duplicate)
}
