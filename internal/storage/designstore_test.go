package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/product-designer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDesignStore(t *testing.T) *DesignStore {
	t.Helper()
	ds, err := OpenDesignStore(filepath.Join(t.TempDir(), "designs.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

func sampleDesign(session string) *models.SavedDesign {
	return &models.SavedDesign{
		SessionID:    session,
		ProductID:    "tshirt",
		ProductTitle: "T-Shirt",
		Product: models.ProductDef{
			ID:    "tshirt",
			Title: "T-Shirt",
			Views: []models.ViewJSON{
				{Title: "Front", Options: models.ViewOptions{StageWidth: 800, StageHeight: 600}},
				{Title: "Back", Options: models.ViewOptions{StageWidth: 800, StageHeight: 600, Optional: true}},
			},
		},
		Views: [][]byte{
			[]byte(`{"version":1,"elements":[]}`),
			[]byte(`{"version":1,"elements":[{"type":"text","source":"Hi","title":"Name","parameters":{}}]}`),
		},
		Price: 12.5,
	}
}

func TestDesignStoreSaveAndGet(t *testing.T) {
	ds := openTestDesignStore(t)
	ctx := context.Background()

	d := sampleDesign("s1")
	require.NoError(t, ds.Save(ctx, d))
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.CreatedAt.IsZero())

	got, err := ds.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "T-Shirt", got.ProductTitle)
	assert.Equal(t, 12.5, got.Price)
	require.Len(t, got.Product.Views, 2)
	assert.True(t, got.Product.Views[1].Options.Optional)
	require.Len(t, got.Views, 2)
	assert.JSONEq(t, string(d.Views[1]), string(got.Views[1]))
}

func TestDesignStoreGetMissing(t *testing.T) {
	ds := openTestDesignStore(t)

	_, err := ds.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrDesignNotFound)
	assert.ErrorIs(t, ds.Delete(context.Background(), "nope"), ErrDesignNotFound)
}

func TestDesignStoreAutosaveReplacesPrevious(t *testing.T) {
	ds := openTestDesignStore(t)
	ctx := context.Background()

	first := sampleDesign("s1")
	first.Autosave = true
	require.NoError(t, ds.Save(ctx, first))

	manual := sampleDesign("s1")
	require.NoError(t, ds.Save(ctx, manual))

	second := sampleDesign("s1")
	second.Autosave = true
	second.CreatedAt = time.Now().Add(time.Second)
	require.NoError(t, ds.Save(ctx, second))

	list, err := ds.List(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, manual.ID, list[1].ID)

	_, err = ds.Get(ctx, first.ID)
	assert.ErrorIs(t, err, ErrDesignNotFound)
}

func TestDesignStoreListAndDelete(t *testing.T) {
	ds := openTestDesignStore(t)
	ctx := context.Background()

	a := sampleDesign("s1")
	b := sampleDesign("s2")
	require.NoError(t, ds.Save(ctx, a))
	require.NoError(t, ds.Save(ctx, b))

	all, err := ds.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, ds.Delete(ctx, a.ID))
	all, err = ds.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)
}

func TestDesignStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "designs.duckdb")
	ctx := context.Background()

	ds, err := OpenDesignStore(path)
	require.NoError(t, err)
	d := sampleDesign("s1")
	require.NoError(t, ds.Save(ctx, d))
	require.NoError(t, ds.Close())

	ds, err = OpenDesignStore(path)
	require.NoError(t, err)
	defer ds.Close()
	got, err := ds.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, got.Views, 2)
}
