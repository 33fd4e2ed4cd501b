package view

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertmeta/newsdesk/model"
)

func archiveIndex() []model.Archive {
	return []model.Archive{
		{Year: 2024, Month: 12, DisplayDate: "December 2024", Count: 1},
		{Year: 2025, Month: 5, DisplayDate: "May 2025", Count: 3},
		{Year: 2025, Month: 1, DisplayDate: "January 2025", Count: 2},
	}
}

func TestArchiveView_Load(t *testing.T) {
	var gotYear, gotMonth int
	src := &fakeSource{
		archives: func(context.Context) ([]model.Archive, error) { return archiveIndex(), nil },
		archiveNews: func(_ context.Context, year, month int) ([]model.News, error) {
			gotYear, gotMonth = year, month
			return makeNews(3), nil
		},
	}
	v := NewArchiveView(src, quietLogger())

	require.NoError(t, v.Load(context.Background(), 2025, 5))
	assert.Equal(t, 2025, gotYear)
	assert.Equal(t, 5, gotMonth)

	snap := v.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "Archive: May 2025", snap.Heading)
	assert.Len(t, snap.Page.Items, 3)
	require.Len(t, snap.Archives, 3)

	assert.Equal(t, "May 2025", snap.Archives[0].DisplayDate)
	assert.True(t, snap.Archives[0].Active)
	assert.False(t, snap.Archives[1].Active)
	assert.Equal(t, 2024, snap.Archives[2].Year)
}

func TestArchiveView_IndexFetchedOnce(t *testing.T) {
	src := &fakeSource{
		archives:    func(context.Context) ([]model.Archive, error) { return archiveIndex(), nil },
		archiveNews: func(context.Context, int, int) ([]model.News, error) { return nil, nil },
	}
	v := NewArchiveView(src, quietLogger())

	require.NoError(t, v.Load(context.Background(), 2025, 5))
	require.NoError(t, v.Load(context.Background(), 2025, 1))

	assert.Equal(t, 1, src.count("Archives"))
	assert.Equal(t, 2, src.count("ArchiveNews"))

	snap := v.Snapshot()
	assert.Equal(t, "Archive: January 2025", snap.Heading)
	assert.Equal(t, "No news articles found for this period.", snap.Empty)
	assert.True(t, snap.Archives[1].Active)
}

func TestArchiveView_Failures(t *testing.T) {
	t.Run("index", func(t *testing.T) {
		src := &fakeSource{archives: func(context.Context) ([]model.Archive, error) {
			return nil, errNetwork
		}}
		v := NewArchiveView(src, quietLogger())

		require.Error(t, v.Load(context.Background(), 2025, 5))
		assert.Equal(t, "Failed to load archives. Please try again later.", v.Snapshot().Error)
		assert.Equal(t, 0, src.count("ArchiveNews"))
	})

	t.Run("period", func(t *testing.T) {
		src := &fakeSource{
			archives: func(context.Context) ([]model.Archive, error) { return archiveIndex(), nil },
			archiveNews: func(context.Context, int, int) ([]model.News, error) {
				return nil, statusError(500, "Internal Server Error")
			},
		}
		v := NewArchiveView(src, quietLogger())

		require.Error(t, v.Load(context.Background(), 2025, 5))
		snap := v.Snapshot()
		assert.Equal(t, StateFailed, snap.State)
		assert.Equal(t, "Failed to load news articles for this period.", snap.Error)
		assert.Empty(t, snap.Archives, "index is not committed by a failed load")
	})
}
