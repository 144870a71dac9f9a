package geo

import (
	"encoding/json"
	"os"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ImportShapefile reads campus lot geometry from a shapefile and returns one
// LocationEntry per record, named from nameField. Point records use the
// point itself; everything else uses the bounding-box center, which is close
// enough for lot-scale polygons.
func ImportShapefile(path, nameField string) ([]LocationEntry, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, nameField)
	if nameIdx < 0 {
		return nil, eris.Errorf("geo: shapefile field %q not found", nameField)
	}

	log := zap.L().With(zap.String("component", "geo.shapeimport"))

	var entries []LocationEntry
	for reader.Next() {
		row, shape := reader.Shape()
		if shape == nil {
			continue
		}

		name := strings.TrimSpace(reader.ReadAttribute(row, nameIdx))
		if name == "" {
			log.Warn("geo: skipping unnamed shape", zap.Int("row", row))
			continue
		}

		var lat, lng float64
		if pt, ok := shape.(*shp.Point); ok {
			lat, lng = pt.Y, pt.X
		} else {
			box := shape.BBox()
			lat = (box.MinY + box.MaxY) / 2
			lng = (box.MinX + box.MaxX) / 2
		}

		entries = append(entries, LocationEntry{Name: name, Lat: lat, Lng: lng})
	}

	log.Info("geo: shapefile imported", zap.Int("entries", len(entries)))
	return entries, nil
}

// WriteTable writes the lot table as indented JSON, the format LoadIndex
// reads back.
func WriteTable(path string, entries []LocationEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return eris.Wrap(err, "geo: marshal location table")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "geo: write location table %s", path)
	}
	return nil
}

// fieldIndex returns the index of the named attribute field, or -1.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}
