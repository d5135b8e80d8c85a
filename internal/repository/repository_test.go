package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listing-matcher/internal/db"
	"github.com/listing-matcher/internal/geo"
	"github.com/listing-matcher/internal/match"
)

var center = geo.Coordinate{Lat: 55.7000, Lng: 37.5000}

func north(meters float64) geo.Coordinate {
	return geo.Coordinate{Lat: center.Lat + meters/111194.93, Lng: center.Lng}
}

func east(meters float64) geo.Coordinate {
	return geo.Coordinate{Lat: center.Lat, Lng: center.Lng + meters/(111194.93*0.5634)}
}

func fixtures() []match.AddressRecord {
	return []match.AddressRecord{
		{ID: "far", Text: "ул. Дальняя, 1", Coordinates: north(3000)},
		{ID: "b", Text: "ул. Тестовая, 12", Coordinates: north(92)},
		{ID: "a", Text: "ул. Тестовая, 10", Coordinates: center},
		{ID: "e", Text: "ул. Восточная, 3", Coordinates: east(400)},
	}
}

func openSQLite(t *testing.T) *db.Connection {
	t.Helper()
	conn, err := db.NewSQLiteConnection(filepath.Join(t.TempDir(), "matcher.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.Migrate(context.Background()))
	return conn
}

type addressRepo interface {
	match.AddressRepository
	AddressWriter
}

func exerciseAddresses(t *testing.T, repo addressRepo) {
	t.Helper()
	ctx := context.Background()

	n, err := repo.UpsertAddresses(ctx, fixtures())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	near, err := repo.GetCandidatesNear(ctx, center, 500)
	require.NoError(t, err)
	ids := make([]string, len(near))
	for i, r := range near {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a", "b", "e"}, ids, "nearest first, far excluded")

	near, err = repo.GetCandidatesNear(ctx, center, 50)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "a", near[0].ID)

	rec, err := repo.GetByID(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ул. Тестовая, 12", rec.Text)
	assert.InDelta(t, north(92).Lat, rec.Coordinates.Lat, 1e-12)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.UpsertAddresses(ctx, []match.AddressRecord{{ID: "b", Text: "ул. Тестовая, 12А", Coordinates: north(92)}})
	require.NoError(t, err)
	rec, err = repo.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "ул. Тестовая, 12А", rec.Text)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count, "upsert replaces instead of appending")
}

func TestMemoryAddressRepository(t *testing.T) {
	exerciseAddresses(t, NewMemoryAddressRepository())
}

func TestSQLAddressRepository_SQLite(t *testing.T) {
	exerciseAddresses(t, NewSQLAddressRepository(openSQLite(t)))
}

func TestSQLAddressRepository_AcrossAntimeridian(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLAddressRepository(openSQLite(t))

	here := geo.Coordinate{Lat: 64.7, Lng: 179.999}
	_, err := repo.UpsertAddresses(ctx, []match.AddressRecord{
		{ID: "east", Text: "ул. Отке, 1", Coordinates: here},
		{ID: "west", Text: "ул. Отке, 3", Coordinates: geo.Coordinate{Lat: 64.7, Lng: -179.999}},
		{ID: "far", Text: "ул. Отке, 99", Coordinates: geo.Coordinate{Lat: 64.7, Lng: 170}},
	})
	require.NoError(t, err)

	near, err := repo.GetCandidatesNear(ctx, here, 500)
	require.NoError(t, err)
	ids := make([]string, len(near))
	for i, r := range near {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"east", "west"}, ids)
}

func exerciseListings(t *testing.T, repo ListingRepository) {
	t.Helper()
	ctx := context.Background()

	addr := "a"
	conf := match.High
	price := 12500000.0
	l := match.Listing{
		ID:               "avito-1",
		AddressText:      "ул. Тестовая, 10",
		Coordinates:      center,
		MatchedAddressID: &addr,
		MatchConfidence:  &conf,
		Price:            &price,
		Source:           "avito",
	}
	require.NoError(t, repo.Put(ctx, l))
	require.NoError(t, repo.PutAll(ctx, []match.Listing{
		{ID: "cian-2", AddressText: "Садовая 44", Coordinates: north(10)},
	}))

	got, err := repo.Get(ctx, "avito-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, l, *got)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	l.OwnerStatus = "owner"
	require.NoError(t, repo.Put(ctx, l))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "avito-1", all[0].ID)
	assert.Equal(t, "owner", all[0].OwnerStatus)

	err = repo.Put(ctx, match.Listing{AddressText: "no id"})
	assert.True(t, errors.Is(err, match.ErrInvalidInput))
}

func TestMemoryListingRepository(t *testing.T) {
	exerciseListings(t, NewMemoryListingRepository())
}

func TestSQLListingRepository_SQLite(t *testing.T) {
	exerciseListings(t, NewSQLListingRepository(openSQLite(t)))
}
