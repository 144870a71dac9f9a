package geocode

import (
	"context"
	"encoding/csv"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/slugwatch/citation-cli/internal/geo"
)

// Backfill fills in coordinates for lot-table entries that have none.
// Lookups run concurrently up to maxConcurrent but share the client's rate
// limiter. Names the API cannot place are returned for manual review;
// their entries keep zero coordinates.
func Backfill(ctx context.Context, client *Client, entries []geo.LocationEntry, maxConcurrent int) ([]geo.LocationEntry, []string, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	out := make([]geo.LocationEntry, len(entries))
	copy(out, entries)

	var (
		mu       sync.Mutex
		notFound []string
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i := range out {
		if out[i].Lat != 0 || out[i].Lng != 0 {
			continue
		}
		i := i
		g.Go(func() error {
			coord, ok, err := client.Lookup(ctx, out[i].Name)
			if err != nil {
				return err
			}
			if !ok {
				zap.L().Warn("geocode: lot not found", zap.String("name", out[i].Name))
				mu.Lock()
				notFound = append(notFound, out[i].Name)
				mu.Unlock()
				return nil
			}
			out[i].Lat, out[i].Lng = coord.Lat, coord.Lng
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return out, notFound, nil
}

// WriteNotFoundCSV records unplaceable lot names for manual review.
func WriteNotFoundCSV(path string, names []string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "geocode: create %s", path)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"name"}); err != nil {
		return eris.Wrap(err, "geocode: write csv header")
	}
	for _, name := range names {
		if err := w.Write([]string{name}); err != nil {
			return eris.Wrap(err, "geocode: write csv row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "geocode: flush csv")
}
