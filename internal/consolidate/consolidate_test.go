package consolidate

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listing-matcher/internal/geo"
	"github.com/listing-matcher/internal/match"
)

var base = geo.Coordinate{Lat: 55.7000, Lng: 37.5000}

func north(c geo.Coordinate, meters float64) geo.Coordinate {
	return geo.Coordinate{Lat: c.Lat + meters/111194.93, Lng: c.Lng}
}

func ptr[T any](v T) *T {
	return &v
}

func matched(id string, c geo.Coordinate, addressID string, conf match.Confidence, score float64) match.Listing {
	return match.Listing{
		ID:               id,
		AddressText:      "ул. Тестовая, 10",
		Coordinates:      c,
		MatchedAddressID: ptr(addressID),
		MatchConfidence:  ptr(conf),
		MatchScore:       ptr(score),
		MatchMethod:      ptr(match.MethodSmartML),
	}
}

func TestGroupByProximity_Partition(t *testing.T) {
	var listings []match.Listing
	for i := 0; i < 30; i++ {
		c := geo.Coordinate{Lat: 55.70 + 0.0001*float64(i%7), Lng: 37.50 + 0.0003*float64(i%5)}
		listings = append(listings, match.Listing{ID: string(rune('a' + i)), Coordinates: c})
	}

	for _, radius := range []float64{0, 5, 15, 40, 100} {
		groups := GroupByProximity(listings, radius)
		seen := make(map[string]int)
		for _, g := range groups {
			require.NotEmpty(t, g.Listings)
			for _, l := range g.Listings {
				seen[l.ID]++
			}
		}
		assert.Len(t, seen, len(listings), "radius %.0f", radius)
		for id, n := range seen {
			assert.Equal(t, 1, n, "listing %s appears %d times at radius %.0f", id, n, radius)
		}
	}
}

func TestGroupByProximity_SingleLinkage(t *testing.T) {
	a := match.Listing{ID: "a", Coordinates: base}
	b := match.Listing{ID: "b", Coordinates: north(base, 15)}
	c := match.Listing{ID: "c", Coordinates: north(base, 30)}
	far := match.Listing{ID: "far", Coordinates: north(base, 500)}

	groups := GroupByProximity([]match.Listing{c, far, a, b}, 20)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"c", "a", "b"}, groups[0].IDs())
	assert.Equal(t, []string{"far"}, groups[1].IDs())
	assert.Equal(t, 0, groups[0].Index)
	assert.Equal(t, 1, groups[1].Index)
	assert.InDelta(t, north(base, 15).Lat, groups[0].Center.Lat, 1e-9)
}

func TestGroupByProximity_Empty(t *testing.T) {
	assert.Empty(t, GroupByProximity(nil, 20))
}

func TestGroupByAddress(t *testing.T) {
	listings := []match.Listing{
		matched("1", base, "A", match.High, 0.85),
		{ID: "unmatched", Coordinates: base},
		matched("2", base, "B", match.Low, 0.5),
		matched("3", base, "A", match.Excellent, 0.95),
	}

	groups := GroupByAddress(listings)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"1", "3"}, groups[0].IDs())
	assert.Equal(t, []string{"2"}, groups[1].IDs())
}

func TestDetectInconsistentGroups_FiveMetersApart(t *testing.T) {
	good := matched("good", base, "A", match.High, 0.92)
	bad := matched("bad", north(base, 5), "B", match.Low, 0.52)

	groups := GroupByProximity([]match.Listing{good, bad}, 20)
	require.Len(t, groups, 1)

	inconsistent := DetectInconsistentGroups(groups)
	require.Len(t, inconsistent, 1)
	assert.ElementsMatch(t, []string{"good", "bad"}, inconsistent[0].IDs())
}

func TestDetectInconsistentGroups(t *testing.T) {
	tests := []struct {
		name     string
		confs    []match.Confidence
		expected bool
	}{
		{"very low and excellent", []match.Confidence{match.VeryLow, match.Excellent}, true},
		{"low and high", []match.Confidence{match.Low, match.High}, true},
		{"medium and high", []match.Confidence{match.Medium, match.High}, false},
		{"all low", []match.Confidence{match.Low, match.VeryLow}, false},
		{"single", []match.Confidence{match.High}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var listings []match.Listing
			for i, c := range tt.confs {
				listings = append(listings, matched(string(rune('a'+i)), base, "A", c, 0.5))
			}
			got := DetectInconsistentGroups([]Group{newGroup(0, listings)})
			assert.Equal(t, tt.expected, len(got) == 1)
		})
	}
}

func TestDetectInconsistentGroups_IgnoresUnmatched(t *testing.T) {
	listings := []match.Listing{
		matched("a", base, "A", match.High, 0.9),
		{ID: "b", Coordinates: base},
	}
	assert.Empty(t, DetectInconsistentGroups([]Group{newGroup(0, listings)}))
}

func TestMergeIntoObject(t *testing.T) {
	l1 := matched("1", base, "A", match.High, 0.9)
	l1.Price, l1.OwnerStatus, l1.Source = ptr(100.0), "owner", "avito"
	l2 := matched("2", north(base, 4), "A", match.Excellent, 0.95)
	l2.Price, l2.OwnerStatus, l2.Source = ptr(300.0), "agent", "cian"
	l3 := matched("3", north(base, 8), "A", match.High, 0.88)
	l3.OwnerStatus, l3.Source = "agent", "avito"
	l3.AddressText = "Тестовая 10"

	group := []match.Listing{l1, l2, l3}
	obj, linked, err := MergeIntoObject(group)
	require.NoError(t, err)

	_, err = uuid.Parse(obj.ID)
	assert.NoError(t, err)
	assert.Equal(t, "A", obj.AddressID)
	assert.Equal(t, "ул. Тестовая, 10", obj.AddressText)
	assert.Equal(t, []string{"1", "2", "3"}, obj.ListingIDs)
	assert.Equal(t, []string{"avito", "cian"}, obj.Sources)
	assert.Equal(t, 3, obj.ListingCount)
	assert.Equal(t, "agent", obj.OwnerStatus)

	require.NotNil(t, obj.PriceMin)
	assert.Equal(t, 100.0, *obj.PriceMin)
	assert.Equal(t, 200.0, *obj.PriceAvg)
	assert.Equal(t, 300.0, *obj.PriceMax)

	require.Len(t, linked, 3)
	for i, l := range linked {
		require.NotNil(t, l.ObjectID)
		assert.Equal(t, obj.ID, *l.ObjectID)
		assert.Equal(t, group[i].Source, l.Source)
		assert.Nil(t, group[i].ObjectID, "source listings untouched")
	}
}

func TestMergeIntoObject_Ties(t *testing.T) {
	l1 := matched("1", base, "A", match.High, 0.9)
	l1.OwnerStatus = "owner"
	l2 := matched("2", base, "A", match.High, 0.9)
	l2.OwnerStatus = "agent"

	obj, _, err := MergeIntoObject([]match.Listing{l1, l2})
	require.NoError(t, err)
	assert.Equal(t, "A", obj.AddressID)
	assert.Equal(t, "agent", obj.OwnerStatus)
	assert.Nil(t, obj.PriceMin)
}

func TestMergeIntoObject_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		group []match.Listing
	}{
		{"empty", nil},
		{"different addresses", []match.Listing{
			matched("1", base, "A", match.High, 0.9),
			matched("2", north(base, 5), "B", match.High, 0.9),
		}},
		{"unmatched listing", []match.Listing{
			matched("1", base, "A", match.High, 0.9),
			{ID: "2", AddressText: "ул. Тестовая, 10", Coordinates: base},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, linked, err := MergeIntoObject(tt.group)
			assert.ErrorIs(t, err, match.ErrInvalidInput)
			assert.Nil(t, linked)
		})
	}
}

func TestSplitObjectsToListings(t *testing.T) {
	l1 := matched("1", base, "A", match.High, 0.9)
	l2 := matched("2", base, "A", match.High, 0.9)
	obj, linked, err := MergeIntoObject([]match.Listing{l1, l2})
	require.NoError(t, err)

	other := matched("3", base, "C", match.High, 0.9)
	other.ObjectID = ptr("keep-me")

	split := SplitObjectsToListings([]CanonicalObject{obj}, append(linked, other))
	require.Len(t, split, 3)
	assert.Nil(t, split[0].ObjectID)
	assert.Nil(t, split[1].ObjectID)
	assert.Equal(t, "keep-me", *split[2].ObjectID)
	assert.Equal(t, l1.MatchedAddressID, split[0].MatchedAddressID)
}

func TestConsolidate(t *testing.T) {
	listings := []match.Listing{
		matched("a1", base, "A", match.High, 0.9),
		matched("a2", north(base, 6), "A", match.Excellent, 0.96),
		matched("x1", north(base, 400), "X", match.High, 0.9),
		matched("x2", north(base, 404), "Y", match.VeryLow, 0.3),
		matched("solo", north(base, 2000), "S", match.Medium, 0.7),
	}

	report, err := Consolidate(listings, 20)
	require.NoError(t, err)

	assert.Len(t, report.Groups, 3)
	require.Len(t, report.Inconsistent, 1)
	assert.Equal(t, []string{"x1", "x2"}, report.Inconsistent[0].IDs())
	require.Len(t, report.Objects, 1)
	assert.Equal(t, []string{"a1", "a2"}, report.Objects[0].ListingIDs)

	require.Len(t, report.Listings, 5)
	assert.Equal(t, report.Objects[0].ID, *report.Listings[0].ObjectID)
	assert.Equal(t, report.Objects[0].ID, *report.Listings[1].ObjectID)
	assert.Nil(t, report.Listings[2].ObjectID)
	assert.Nil(t, report.Listings[4].ObjectID)
}

func TestConsolidate_ChainOfNeighbouringAddresses(t *testing.T) {
	listings := []match.Listing{
		matched("a", base, "A", match.High, 0.9),
		matched("b", north(base, 15), "B", match.High, 0.9),
		matched("c", north(base, 30), "C", match.High, 0.9),
	}

	report, err := Consolidate(listings, 20)
	require.NoError(t, err)

	require.Len(t, report.Groups, 1, "single linkage chains the row")
	assert.Empty(t, report.Objects)
	for _, l := range report.Listings {
		assert.Nil(t, l.ObjectID, l.ID)
	}
}

func TestConsolidate_SplitsGroupByAddress(t *testing.T) {
	listings := []match.Listing{
		matched("a1", base, "A", match.High, 0.9),
		matched("b1", north(base, 10), "B", match.Excellent, 0.95),
		matched("a2", north(base, 3), "A", match.High, 0.91),
		matched("b2", north(base, 12), "B", match.High, 0.9),
	}

	report, err := Consolidate(listings, 20)
	require.NoError(t, err)

	require.Len(t, report.Objects, 2)
	assert.Equal(t, "A", report.Objects[0].AddressID)
	assert.Equal(t, []string{"a1", "a2"}, report.Objects[0].ListingIDs)
	assert.Equal(t, "B", report.Objects[1].AddressID)
	assert.Equal(t, []string{"b1", "b2"}, report.Objects[1].ListingIDs)
	assert.Equal(t, report.Objects[0].ID, *report.Listings[2].ObjectID)
	assert.Equal(t, report.Objects[1].ID, *report.Listings[3].ObjectID)
}

func TestConsolidate_NeverMergesUnmatched(t *testing.T) {
	listings := []match.Listing{
		matched("a1", base, "A", match.High, 0.9),
		{ID: "pending", AddressText: "ул. Тестовая, 10", Coordinates: north(base, 2)},
		matched("a2", north(base, 4), "A", match.High, 0.9),
	}

	report, err := Consolidate(listings, 20)
	require.NoError(t, err)

	require.Len(t, report.Objects, 1)
	assert.Equal(t, []string{"a1", "a2"}, report.Objects[0].ListingIDs)
	assert.Nil(t, report.Listings[1].ObjectID)
}

type addressBook map[string]match.AddressRecord

func (b addressBook) GetCandidatesNear(context.Context, geo.Coordinate, float64) ([]match.AddressRecord, error) {
	return nil, nil
}

func (b addressBook) GetByID(_ context.Context, id string) (*match.AddressRecord, error) {
	r, ok := b[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func TestRecomputeDistances(t *testing.T) {
	book := addressBook{
		"A": {ID: "A", Text: "ул. Тестовая, 10", Coordinates: base},
		"B": {ID: "B", Text: "ул. Тестовая, 12", Coordinates: north(base, 92)},
	}

	stale := matched("stale", north(base, 5), "A", match.Low, 0.55)
	stale.MatchDistanceMeters = ptr(120.0)
	fine := matched("fine", north(base, 50), "B", match.High, 0.85)
	fine.MatchDistanceMeters = ptr(42.0)
	orphan := matched("orphan", base, "gone", match.Low, 0.5)
	unmatched := match.Listing{ID: "none", Coordinates: base}

	out, rec, err := RecomputeDistances(context.Background(),
		[]match.Listing{stale, fine, orphan, unmatched}, book, 20)
	require.NoError(t, err)

	assert.Equal(t, 3, rec.Checked)
	assert.Equal(t, 1, rec.MissingAddress)
	assert.Equal(t, 1, rec.Updated)
	assert.Equal(t, 1, rec.Promoted)

	assert.InDelta(t, 5.0, *out[0].MatchDistanceMeters, 0.1)
	assert.Equal(t, match.High, *out[0].MatchConfidence)
	assert.Equal(t, 0.9, *out[0].MatchScore)
	assert.Equal(t, match.High, *out[1].MatchConfidence)

	// input slice untouched
	assert.Equal(t, 120.0, *stale.MatchDistanceMeters)
	assert.Empty(t, CheckProximityInvariant(out, 20))
}

func TestCheckProximityInvariant(t *testing.T) {
	bad := matched("bad", base, "A", match.Low, 0.52)
	bad.MatchDistanceMeters = ptr(5.0)
	lowScore := matched("lowscore", base, "A", match.High, 0.85)
	lowScore.MatchDistanceMeters = ptr(12.0)
	ok := matched("ok", base, "A", match.High, 0.93)
	ok.MatchDistanceMeters = ptr(3.0)
	far := matched("far", base, "B", match.Low, 0.5)
	far.MatchDistanceMeters = ptr(90.0)

	violations := CheckProximityInvariant([]match.Listing{bad, lowScore, ok, far}, 20)
	require.Len(t, violations, 2)
	assert.Equal(t, "bad", violations[0].ListingID)
	assert.Equal(t, match.Low, violations[0].Confidence)
	assert.Equal(t, "lowscore", violations[1].ListingID)
}
