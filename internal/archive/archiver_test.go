package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jarvisms/godcs/dcs"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) UpsertReadings(ctx context.Context, channel string, readings []dcs.Reading) error {
	args := m.Called(ctx, channel, readings)
	return args.Error(0)
}

func (m *mockRepo) LatestTimestamp(ctx context.Context, channel string) (time.Time, error) {
	args := m.Called(ctx, channel)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *mockRepo) Close() error {
	args := m.Called()
	return args.Error(0)
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) LargeReadings(ctx context.Context, q dcs.ReadingsQuery, maxWindow time.Duration) (*dcs.ReadingsResult, error) {
	args := m.Called(ctx, q, maxWindow)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dcs.ReadingsResult), args.Error(1)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func fixtureReadings(start time.Time, n int) []dcs.Reading {
	readings := make([]dcs.Reading, n)
	for i := range readings {
		readings[i] = dcs.Reading{
			Timestamp: start.Add(time.Duration(i) * 30 * time.Minute),
			Value:     float64(i),
		}
	}
	return readings
}

func TestSyncStoresAllReadings(t *testing.T) {
	start := time.Date(2021, 9, 20, 0, 0, 0, 0, time.UTC)
	readings := fixtureReadings(start, 7)

	repo := new(mockRepo)
	repo.On("LatestTimestamp", mock.Anything, "R123").Return(start, nil)
	repo.On("UpsertReadings", mock.Anything, "R123", mock.MatchedBy(func(batch []dcs.Reading) bool {
		return len(batch) > 0
	})).Return(nil)

	client := new(mockClient)
	client.On("LargeReadings", mock.Anything, mock.MatchedBy(func(q dcs.ReadingsQuery) bool {
		return q.Channel == dcs.Channel("R123") && q.Start.Equal(start) && q.Stream
	}), 24*time.Hour).Return(
		dcs.NewResult("Main Meter", start, start.Add(3*time.Hour), dcs.PeriodHalfHour, "kWh", readings),
		nil,
	)

	a := New(client, repo, testLogger(), Options{
		Channels:  []dcs.Channel{"R123"},
		MaxWindow: 24 * time.Hour,
		BatchSize: 3,
	})

	err := a.Sync(context.Background())
	require.NoError(t, err)

	// 7 readings with batch size 3 means three upsert calls
	repo.AssertNumberOfCalls(t, "UpsertReadings", 3)
	client.AssertExpectations(t)
}

func TestSyncBackfillWhenEmpty(t *testing.T) {
	repo := new(mockRepo)
	repo.On("LatestTimestamp", mock.Anything, "VM45").Return(time.Time{}, nil)
	repo.On("UpsertReadings", mock.Anything, "VM45", mock.Anything).Return(nil)

	backfill := 30 * 24 * time.Hour

	client := new(mockClient)
	client.On("LargeReadings", mock.Anything, mock.MatchedBy(func(q dcs.ReadingsQuery) bool {
		// An empty database starts the sync one backfill interval back.
		age := time.Since(q.Start)
		return age > backfill-time.Hour && age < backfill+time.Hour
	}), mock.Anything).Return(
		dcs.NewResult("VM", time.Now().Add(-backfill), time.Now(), dcs.PeriodHalfHour, "kWh", nil),
		nil,
	)

	a := New(client, repo, testLogger(), Options{
		Channels: []dcs.Channel{"VM45"},
		Backfill: backfill,
	})

	err := a.Sync(context.Background())
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSyncSkipsUpToDateChannel(t *testing.T) {
	repo := new(mockRepo)
	repo.On("LatestTimestamp", mock.Anything, "R1").Return(time.Now().Add(time.Hour), nil)

	client := new(mockClient)

	a := New(client, repo, testLogger(), Options{Channels: []dcs.Channel{"R1"}})

	err := a.Sync(context.Background())
	require.NoError(t, err)
	client.AssertNotCalled(t, "LargeReadings", mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncCollectsPerChannelErrors(t *testing.T) {
	boom := errors.New("server unreachable")
	start := time.Date(2021, 9, 20, 0, 0, 0, 0, time.UTC)

	repo := new(mockRepo)
	repo.On("LatestTimestamp", mock.Anything, "R1").Return(start, nil)
	repo.On("LatestTimestamp", mock.Anything, "R2").Return(start, nil)
	repo.On("UpsertReadings", mock.Anything, "R2", mock.Anything).Return(nil)

	client := new(mockClient)
	client.On("LargeReadings", mock.Anything, mock.MatchedBy(func(q dcs.ReadingsQuery) bool {
		return q.Channel == dcs.Channel("R1")
	}), mock.Anything).Return(nil, boom)
	client.On("LargeReadings", mock.Anything, mock.MatchedBy(func(q dcs.ReadingsQuery) bool {
		return q.Channel == dcs.Channel("R2")
	}), mock.Anything).Return(
		dcs.NewResult("M", start, start.Add(time.Hour), dcs.PeriodHalfHour, "kWh", fixtureReadings(start, 2)),
		nil,
	)

	a := New(client, repo, testLogger(), Options{Channels: []dcs.Channel{"R1", "R2"}})

	err := a.Sync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// The failure on R1 must not prevent R2 from syncing.
	repo.AssertCalled(t, "UpsertReadings", mock.Anything, "R2", mock.Anything)
}

func TestSyncUpsertFailureAbortsChannel(t *testing.T) {
	start := time.Date(2021, 9, 20, 0, 0, 0, 0, time.UTC)
	dbErr := errors.New("connection reset")

	repo := new(mockRepo)
	repo.On("LatestTimestamp", mock.Anything, "R9").Return(start, nil)
	repo.On("UpsertReadings", mock.Anything, "R9", mock.Anything).Return(dbErr)

	client := new(mockClient)
	client.On("LargeReadings", mock.Anything, mock.Anything, mock.Anything).Return(
		dcs.NewResult("M", start, start.Add(time.Hour), dcs.PeriodHalfHour, "kWh", fixtureReadings(start, 2)),
		nil,
	)

	a := New(client, repo, testLogger(), Options{Channels: []dcs.Channel{"R9"}})

	err := a.Sync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
}
