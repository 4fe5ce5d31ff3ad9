package system

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidar-tools/lidarchive/internal/catalog"
	"github.com/lidar-tools/lidarchive/internal/models"
	"github.com/lidar-tools/lidarchive/internal/reader"
	"github.com/lidar-tools/lidarchive/internal/testutil"
)

var start = time.Date(2024, 3, 5, 21, 0, 0, 0, time.UTC)

func sample(channels []models.ChannelInfo) testutil.LicelFile {
	return testutil.LicelFile{Site: "Magurele", Start: start, End: start.Add(time.Minute), Channels: channels}
}

func TestParseSampleName(t *testing.T) {
	tests := []struct {
		name    string
		id      int
		extra   string
		wantErr bool
	}{
		{"375", 375, "", false},
		{"375.night", 375, "night", false},
		{"375.1.b", 0, "", true},
		{"sample.txt", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, extra, err := ParseSampleName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.extra, extra)
		})
	}
}

func TestIndex_SystemID(t *testing.T) {
	dir := t.TempDir()
	twoChannels := testutil.DefaultChannels(1200)
	oneChannel := []models.ChannelInfo{testutil.Channel("BT1", 600)}
	otherResolution := testutil.DefaultChannels(1200)
	otherResolution[0].Resolution = 3.75

	testutil.WriteLicelFile(t, dir, "375", sample(twoChannels))
	testutil.WriteLicelFile(t, dir, "375.winter", sample(twoChannels))
	testutil.WriteLicelFile(t, dir, "402", sample(oneChannel))
	testutil.WriteLicelFile(t, dir, "410", sample(oneChannel))
	testutil.WriteTextFile(t, dir, "notes.txt", "x\n")
	testutil.WriteTextFile(t, dir, "500", "not a licel file\n")

	reg := reader.NewRegistry()
	idx, err := LoadIndex(dir, reg, nil)
	require.NoError(t, err)
	assert.Len(t, idx.Systems(), 4)

	measurement := func(channels []models.ChannelInfo) *catalog.MeasurementFile {
		path := testutil.WriteLicelFile(t, t.TempDir(), "m.000", sample(channels))
		mf, err := catalog.ReadMeasurementFile(path, reg)
		require.NoError(t, err)
		return mf
	}

	t.Run("unique match", func(t *testing.T) {
		id, err := idx.SystemID(measurement(testutil.DefaultChannels(300)))
		require.NoError(t, err)
		assert.Equal(t, 375, id)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := idx.SystemID(measurement(otherResolution))
		assert.True(t, errors.Is(err, ErrNoMatchingSystem))
	})

	t.Run("ambiguous match", func(t *testing.T) {
		_, err := idx.SystemID(measurement(oneChannel))
		assert.True(t, errors.Is(err, ErrAmbiguousSystem))
		assert.Contains(t, err.Error(), "[402 410]")
	})

	t.Run("measurement set without data", func(t *testing.T) {
		_, err := idx.SetSystemID(catalog.NewMeasurementSet(nil, nil, 0))
		assert.True(t, errors.Is(err, ErrNoMatchingSystem))
	})
}

func TestLoadIndex_MissingFolder(t *testing.T) {
	_, err := LoadIndex("/nonexistent/systems", reader.NewRegistry(), nil)
	assert.Error(t, err)
}

func TestSystem_Name(t *testing.T) {
	assert.Equal(t, "375", System{ID: 375}.Name())
	assert.Equal(t, "375.b", System{ID: 375, Extra: "b"}.Name())
}
