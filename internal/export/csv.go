package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/listing-matcher/internal/match"
)

// Header is the column layout of exported listings
var Header = []string{
	"id", "source", "address_text", "lat", "lng", "price", "owner_status", "object_id",
	"state", "matched_address_id", "matched_address_text", "match_method", "match_score",
	"match_confidence", "match_distance_meters",
}

var unsafeName = regexp.MustCompile(`[^a-z0-9_-]+`)

// Exporter writes listings with their matching columns back to CSV
type Exporter struct {
	addresses match.AddressRepository
}

// NewExporter creates an exporter. A nil repository leaves matched_address_text empty.
func NewExporter(addresses match.AddressRepository) *Exporter {
	return &Exporter{addresses: addresses}
}

// WriteListings writes the header and one row per listing, returning the rows written
func (e *Exporter) WriteListings(ctx context.Context, w io.Writer, listings []match.Listing) (int, error) {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	cache := make(map[string]string)
	for i, l := range listings {
		if err := ctx.Err(); err != nil {
			return i, err
		}

		addressText, err := e.addressText(ctx, l, cache)
		if err != nil {
			return i, err
		}
		if err := writer.Write(listingToRow(l, addressText)); err != nil {
			return i, fmt.Errorf("failed to write row for listing %s: %w", l.ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush csv: %w", err)
	}
	return len(listings), nil
}

// ExportBySource writes one matched_<source>_listings.csv per listing source into outputDir.
// Listings without a source go to matched_unknown_listings.csv.
func (e *Exporter) ExportBySource(ctx context.Context, outputDir string, listings []match.Listing) (map[string]int, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	bySource := make(map[string][]match.Listing)
	for _, l := range listings {
		name := sourceFileName(l.Source)
		bySource[name] = append(bySource[name], l)
	}

	names := make([]string, 0, len(bySource))
	for name := range bySource {
		names = append(names, name)
	}
	sort.Strings(names)

	counts := make(map[string]int, len(names))
	for _, name := range names {
		path := filepath.Join(outputDir, fmt.Sprintf("matched_%s_listings.csv", name))
		n, err := e.writeFile(ctx, path, bySource[name])
		if err != nil {
			return counts, err
		}
		counts[path] = n
	}
	return counts, nil
}

func (e *Exporter) writeFile(ctx context.Context, path string, listings []match.Listing) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	n, err := e.WriteListings(ctx, file, listings)
	if err != nil {
		return n, fmt.Errorf("%s: %w", path, err)
	}
	return n, file.Close()
}

func (e *Exporter) addressText(ctx context.Context, l match.Listing, cache map[string]string) (string, error) {
	if e.addresses == nil || l.MatchedAddressID == nil {
		return "", nil
	}

	id := *l.MatchedAddressID
	if text, ok := cache[id]; ok {
		return text, nil
	}

	rec, err := e.addresses.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to load address %s: %w", id, err)
	}
	text := ""
	if rec != nil {
		text = rec.Text
	}
	cache[id] = text
	return text, nil
}

func listingToRow(l match.Listing, addressText string) []string {
	row := []string{
		l.ID,
		l.Source,
		l.AddressText,
		formatFloat(l.Coordinates.Lat, 7),
		formatFloat(l.Coordinates.Lng, 7),
		optionalFloat(l.Price, 2),
		l.OwnerStatus,
		optionalString(l.ObjectID),
		string(l.State),
		optionalString(l.MatchedAddressID),
		addressText,
		optionalString(l.MatchMethod),
		optionalFloat(l.MatchScore, 4),
		"",
		optionalFloat(l.MatchDistanceMeters, 1),
	}
	if l.MatchConfidence != nil {
		row[13] = l.MatchConfidence.String()
	}
	return row
}

func sourceFileName(source string) string {
	name := unsafeName.ReplaceAllString(strings.ToLower(strings.TrimSpace(source)), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "unknown"
	}
	return name
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func optionalFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v, prec)
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
