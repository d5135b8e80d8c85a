package consolidate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/listing-matcher/internal/geo"
	"github.com/listing-matcher/internal/match"
)

// Group is a set of listings believed to describe the same physical object
type Group struct {
	Index    int             `json:"index"`
	Center   geo.Coordinate  `json:"center"`
	Listings []match.Listing `json:"listings"`
}

// IDs returns the listing ids of the group in order
func (g Group) IDs() []string {
	ids := make([]string, len(g.Listings))
	for i, l := range g.Listings {
		ids[i] = l.ID
	}
	return ids
}

// Inconsistent reports whether the group mixes low and high confidence matches
func (g Group) Inconsistent() bool {
	var low, high bool
	for _, l := range g.Listings {
		if l.MatchConfidence == nil {
			continue
		}
		c := *l.MatchConfidence
		low = low || c.AtMostLow()
		high = high || c.AtLeastHigh()
	}
	return low && high
}

func newGroup(index int, listings []match.Listing) Group {
	points := make([]geo.Coordinate, len(listings))
	for i, l := range listings {
		points[i] = l.Coordinates
	}
	return Group{Index: index, Center: geo.Centroid(points), Listings: listings}
}

// GroupByProximity clusters listings by single linkage: a listing joins a group when it is within
// radius of any member. Every listing ends up in exactly one group; groups and members keep input order.
func GroupByProximity(listings []match.Listing, radiusMeters float64) []Group {
	visited := make([]bool, len(listings))
	var groups []Group

	for seed := range listings {
		if visited[seed] {
			continue
		}
		visited[seed] = true

		members := []int{}
		queue := []int{seed}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			members = append(members, cur)

			for j := range listings {
				if visited[j] {
					continue
				}
				if geo.WithinRadius(listings[cur].Coordinates, listings[j].Coordinates, radiusMeters) {
					visited[j] = true
					queue = append(queue, j)
				}
			}
		}

		sort.Ints(members)
		grouped := make([]match.Listing, len(members))
		for i, idx := range members {
			grouped[i] = listings[idx]
		}
		groups = append(groups, newGroup(len(groups), grouped))
	}

	return groups
}

// GroupByAddress groups matched listings by matched address id in order of first appearance
func GroupByAddress(listings []match.Listing) []Group {
	index := make(map[string]int)
	var buckets [][]match.Listing

	for _, l := range listings {
		if l.MatchedAddressID == nil || *l.MatchedAddressID == "" {
			continue
		}
		i, ok := index[*l.MatchedAddressID]
		if !ok {
			i = len(buckets)
			index[*l.MatchedAddressID] = i
			buckets = append(buckets, nil)
		}
		buckets[i] = append(buckets[i], l)
	}

	groups := make([]Group, len(buckets))
	for i, b := range buckets {
		groups[i] = newGroup(i, b)
	}
	return groups
}

// DetectInconsistentGroups returns groups that contain both a Low/VeryLow and a High/Excellent match.
// This is a diagnostic for operators; nothing is corrected.
func DetectInconsistentGroups(groups []Group) []Group {
	var out []Group
	for _, g := range groups {
		if g.Inconsistent() {
			out = append(out, g)
		}
	}
	return out
}

// CanonicalObject aggregates listings describing one real-estate object
type CanonicalObject struct {
	ID           string         `json:"id"`
	AddressID    string         `json:"address_id,omitempty"`
	AddressText  string         `json:"address_text"`
	Coordinates  geo.Coordinate `json:"coordinates"`
	ListingIDs   []string       `json:"listing_ids"`
	Sources      []string       `json:"sources,omitempty"`
	PriceMin     *float64       `json:"price_min,omitempty"`
	PriceAvg     *float64       `json:"price_avg,omitempty"`
	PriceMax     *float64       `json:"price_max,omitempty"`
	OwnerStatus  string         `json:"owner_status,omitempty"`
	ListingCount int            `json:"listing_count"`
	CreatedAt    time.Time      `json:"created_at"`
}

// MergeIntoObject aggregates listings sharing one matched address into a canonical object and
// returns copies of the listings carrying the object back-reference. Source listings are otherwise
// untouched. Unmatched listings or listings matched to different addresses are rejected.
func MergeIntoObject(group []match.Listing) (CanonicalObject, []match.Listing, error) {
	if len(group) == 0 {
		return CanonicalObject{}, nil, fmt.Errorf("%w: cannot merge an empty group", match.ErrInvalidInput)
	}
	addressID, err := sharedAddress(group)
	if err != nil {
		return CanonicalObject{}, nil, err
	}

	obj := CanonicalObject{
		ID:           uuid.NewString(),
		ListingCount: len(group),
		CreatedAt:    time.Now().UTC(),
	}

	points := make([]geo.Coordinate, 0, len(group))
	statusVotes := make(map[string]int)
	sources := make(map[string]struct{})

	var prices []float64
	for _, l := range group {
		obj.ListingIDs = append(obj.ListingIDs, l.ID)
		points = append(points, l.Coordinates)
		if l.OwnerStatus != "" {
			statusVotes[l.OwnerStatus]++
		}
		if l.Source != "" {
			sources[l.Source] = struct{}{}
		}
		if l.Price != nil && !math.IsNaN(*l.Price) {
			prices = append(prices, *l.Price)
		}
	}

	obj.Coordinates = geo.Centroid(points)
	obj.AddressID = addressID
	obj.OwnerStatus = mostCommon(statusVotes)
	obj.AddressText = group[0].AddressText

	for s := range sources {
		obj.Sources = append(obj.Sources, s)
	}
	sort.Strings(obj.Sources)

	if len(prices) > 0 {
		lo, hi, sum := prices[0], prices[0], 0.0
		for _, p := range prices {
			lo = math.Min(lo, p)
			hi = math.Max(hi, p)
			sum += p
		}
		avg := sum / float64(len(prices))
		obj.PriceMin, obj.PriceAvg, obj.PriceMax = &lo, &avg, &hi
	}

	linked := make([]match.Listing, len(group))
	for i, l := range group {
		id := obj.ID
		l.ObjectID = &id
		linked[i] = l
	}

	return obj, linked, nil
}

// sharedAddress returns the address id every listing of the group is matched to
func sharedAddress(group []match.Listing) (string, error) {
	var id string
	for _, l := range group {
		if l.MatchedAddressID == nil || *l.MatchedAddressID == "" {
			return "", fmt.Errorf("%w: listing %s is not matched to an address", match.ErrInvalidInput, l.ID)
		}
		if id == "" {
			id = *l.MatchedAddressID
			continue
		}
		if *l.MatchedAddressID != id {
			return "", fmt.Errorf("%w: listings %s and %s are matched to different addresses",
				match.ErrInvalidInput, group[0].ID, l.ID)
		}
	}
	return id, nil
}

// mostCommon returns the most frequent key, ties broken alphabetically
func mostCommon(votes map[string]int) string {
	best, bestCount := "", 0
	for k, n := range votes {
		if n > bestCount || (n == bestCount && k < best) {
			best, bestCount = k, n
		}
	}
	return best
}

// SplitObjectsToListings reverses merges by clearing back-references to the given objects
func SplitObjectsToListings(objects []CanonicalObject, listings []match.Listing) []match.Listing {
	ids := make(map[string]struct{}, len(objects))
	for _, o := range objects {
		ids[o.ID] = struct{}{}
	}

	out := make([]match.Listing, len(listings))
	for i, l := range listings {
		if l.ObjectID != nil {
			if _, ok := ids[*l.ObjectID]; ok {
				l.ObjectID = nil
			}
		}
		out[i] = l
	}
	return out
}

// Report summarises a consolidation pass
type Report struct {
	Groups       []Group           `json:"groups"`
	Inconsistent []Group           `json:"inconsistent"`
	Objects      []CanonicalObject `json:"objects"`
	Listings     []match.Listing   `json:"listings"`
}

// Consolidate groups listings by proximity and, inside every consistent group, merges listings
// matched to the same address. Inconsistent groups are reported and left unmerged; unmatched
// listings are never merged.
func Consolidate(listings []match.Listing, radiusMeters float64) (Report, error) {
	report := Report{Groups: GroupByProximity(listings, radiusMeters)}
	report.Inconsistent = DetectInconsistentGroups(report.Groups)

	byID := make(map[string]match.Listing, len(listings))
	for _, g := range report.Groups {
		if len(g.Listings) < 2 || g.Inconsistent() {
			continue
		}
		for _, sub := range GroupByAddress(g.Listings) {
			if len(sub.Listings) < 2 {
				continue
			}
			obj, linked, err := MergeIntoObject(sub.Listings)
			if err != nil {
				return report, err
			}
			report.Objects = append(report.Objects, obj)
			for _, l := range linked {
				byID[l.ID] = l
			}
		}
	}

	report.Listings = make([]match.Listing, len(listings))
	for i, l := range listings {
		if linked, ok := byID[l.ID]; ok {
			l = linked
		}
		report.Listings[i] = l
	}
	return report, nil
}

// Reconciliation summarises a distance recomputation pass
type Reconciliation struct {
	Checked        int `json:"checked"`
	Updated        int `json:"updated"`
	Promoted       int `json:"promoted"`
	MissingAddress int `json:"missing_address"`
}

// RecomputeDistances recomputes match distances from coordinates and re-applies the proximity
// override. Confidence is never lowered.
func RecomputeDistances(ctx context.Context, listings []match.Listing, addresses match.AddressRepository, radiusMeters float64) ([]match.Listing, Reconciliation, error) {
	var rec Reconciliation
	out := make([]match.Listing, len(listings))
	copy(out, listings)

	for i := range out {
		l := &out[i]
		if l.MatchedAddressID == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, rec, err
		}
		rec.Checked++

		addr, err := addresses.GetByID(ctx, *l.MatchedAddressID)
		if err != nil {
			return out, rec, fmt.Errorf("loading address %s: %w", *l.MatchedAddressID, err)
		}
		if addr == nil {
			rec.MissingAddress++
			continue
		}

		d := geo.DistanceMeters(l.Coordinates, addr.Coordinates)
		if l.MatchDistanceMeters == nil || math.Abs(*l.MatchDistanceMeters-d) > 0.01 {
			dist := d
			l.MatchDistanceMeters = &dist
			rec.Updated++
		}

		var score float64
		if l.MatchScore != nil {
			score = *l.MatchScore
		}
		conf := l.Confidence()
		newScore, newConf := match.ApplyProximityOverride(match.FeatureVector{DistanceMeters: d}, score, conf, radiusMeters)
		if newScore != score || newConf != conf {
			l.MatchScore = &newScore
			l.MatchConfidence = &newConf
			rec.Promoted++
		}
	}

	return out, rec, nil
}

// Violation is a listing breaking the proximity invariant
type Violation struct {
	ListingID      string           `json:"listing_id"`
	AddressID      string           `json:"address_id"`
	DistanceMeters float64          `json:"distance_meters"`
	Score          float64          `json:"score"`
	Confidence     match.Confidence `json:"confidence"`
}

// CheckProximityInvariant lists matched listings within radius whose score or confidence is too low
func CheckProximityInvariant(listings []match.Listing, radiusMeters float64) []Violation {
	var out []Violation
	for _, l := range listings {
		if l.MatchedAddressID == nil || l.MatchDistanceMeters == nil {
			continue
		}
		if *l.MatchDistanceMeters > radiusMeters {
			continue
		}

		var score float64
		if l.MatchScore != nil {
			score = *l.MatchScore
		}
		if score >= match.HighConfidenceFloor && l.Confidence().AtLeastHigh() {
			continue
		}
		out = append(out, Violation{
			ListingID:      l.ID,
			AddressID:      *l.MatchedAddressID,
			DistanceMeters: *l.MatchDistanceMeters,
			Score:          score,
			Confidence:     l.Confidence(),
		})
	}
	return out
}
