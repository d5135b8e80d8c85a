package import_pkg

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listing-matcher/internal/match"
	"github.com/listing-matcher/internal/repository"
)

func TestImportAddresses(t *testing.T) {
	csvData := "\ufeffID,Адрес,Широта,Долгота\n" +
		"a1,\"ул. Тестовая, 10\",55.7,37.5\n" +
		"a2,\"ул. Тестовая, 12\",\"55,70083\",\"37,5\"\n" +
		",ул. Пустая 1,55.7,37.5\n" +
		"a3,ул. Кривая 2,95,37.5\n" +
		"a4,,55.7,37.5\n"

	repo := repository.NewMemoryAddressRepository()
	stats, err := ImportAddresses(context.Background(), false, strings.NewReader(csvData), repo)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Imported)
	assert.Equal(t, 3, stats.Skipped)
	assert.Len(t, stats.Errors, 3)

	rec, err := repo.GetByID(context.Background(), "a2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.InDelta(t, 55.70083, rec.Coordinates.Lat, 1e-9)
}

func TestImportAddresses_MissingColumns(t *testing.T) {
	repo := repository.NewMemoryAddressRepository()
	stats, err := ImportAddresses(context.Background(), false, strings.NewReader("id,lat,lng\na1,55.7,37.5\n"), repo)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Imported)
	assert.Equal(t, 1, stats.Skipped)

	_, err = ImportAddresses(context.Background(), false, strings.NewReader(""), repo)
	assert.Error(t, err)
}

func TestImportListings(t *testing.T) {
	csvData := "id,address,lat,lng,price,owner_status,source\n" +
		"avito-1,\"ул. Тестовая, 10\",55.7,37.5,12 500 000,owner,avito\n" +
		"cian-2,Садовая 44,55.7001,37.5001,,agent,cian\n"

	repo := repository.NewMemoryListingRepository()
	stats, err := ImportListings(context.Background(), false, strings.NewReader(csvData), repo)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Imported)

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NotNil(t, all[0].Price)
	assert.Equal(t, 12500000.0, *all[0].Price)
	assert.Equal(t, "owner", all[0].OwnerStatus)
	assert.Equal(t, match.StateUnmatched, all[0].State)
	assert.Nil(t, all[1].Price)
	assert.Equal(t, "cian", all[1].Source)
}

func TestParseOptionalFloat(t *testing.T) {
	assert.Nil(t, parseOptionalFloat(""))
	assert.Nil(t, parseOptionalFloat("n/a"))
	assert.Equal(t, 1.5, *parseOptionalFloat("1,5"))
	assert.Equal(t, 1000.0, *parseOptionalFloat("1 000"))
}
