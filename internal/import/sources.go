package import_pkg

import (
	"context"
	"fmt"
	"io"

	"github.com/listing-matcher/internal/geo"
	"github.com/listing-matcher/internal/match"
	"github.com/listing-matcher/internal/normalize"
)

// AddressWriter accepts reference addresses
type AddressWriter interface {
	UpsertAddresses(ctx context.Context, records []match.AddressRecord) (int, error)
}

// ListingWriter accepts listings
type ListingWriter interface {
	PutAll(ctx context.Context, listings []match.Listing) error
}

// ImportAddresses imports reference addresses.
// Columns: id,address,lat,lng (aliases: text, latitude, lon/longitude, Russian headers)
func ImportAddresses(ctx context.Context, localDebug bool, r io.Reader, w AddressWriter) (Stats, error) {
	return readCSV(localDebug, r, func(h header, record []string) (match.AddressRecord, error) {
		idIdx, _ := h.lookup("id", "address_id", "код")
		textIdx, ok := h.lookup("address", "text", "адрес")
		if !ok {
			return match.AddressRecord{}, fmt.Errorf("missing address column")
		}
		c, err := coordinates(h, record)
		if err != nil {
			return match.AddressRecord{}, err
		}

		rec := match.AddressRecord{ID: field(record, idIdx), Text: field(record, textIdx), Coordinates: c}
		if rec.ID == "" {
			return rec, fmt.Errorf("missing id")
		}
		if normalize.IsBlank(rec.Text) {
			return rec, fmt.Errorf("address %s has empty text", rec.ID)
		}
		return rec, nil
	}, func(batch []match.AddressRecord) error {
		_, err := w.UpsertAddresses(ctx, batch)
		return err
	})
}

// ImportListings imports scraped listings.
// Columns: id,address,lat,lng,price,owner_status,source
func ImportListings(ctx context.Context, localDebug bool, r io.Reader, w ListingWriter) (Stats, error) {
	return readCSV(localDebug, r, func(h header, record []string) (match.Listing, error) {
		idIdx, _ := h.lookup("id", "listing_id")
		textIdx, ok := h.lookup("address", "address_text", "адрес")
		if !ok {
			return match.Listing{}, fmt.Errorf("missing address column")
		}
		c, err := coordinates(h, record)
		if err != nil {
			return match.Listing{}, err
		}
		priceIdx, _ := h.lookup("price", "цена")
		ownerIdx, _ := h.lookup("owner_status", "owner")
		sourceIdx, _ := h.lookup("source", "источник")

		l := match.Listing{
			ID:          field(record, idIdx),
			AddressText: field(record, textIdx),
			Coordinates: c,
			Price:       parseOptionalFloat(field(record, priceIdx)),
			OwnerStatus: field(record, ownerIdx),
			Source:      field(record, sourceIdx),
			State:       match.StateUnmatched,
		}
		if l.ID == "" {
			return l, fmt.Errorf("missing id")
		}
		return l, nil
	}, func(batch []match.Listing) error {
		return w.PutAll(ctx, batch)
	})
}

func coordinates(h header, record []string) (geo.Coordinate, error) {
	latIdx, ok := h.lookup("lat", "latitude", "широта")
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("missing lat column")
	}
	lngIdx, ok := h.lookup("lng", "lon", "longitude", "долгота")
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("missing lng column")
	}

	lat, err := parseFloat(field(record, latIdx))
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("bad lat: %w", err)
	}
	lng, err := parseFloat(field(record, lngIdx))
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("bad lng: %w", err)
	}

	c := geo.Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}
