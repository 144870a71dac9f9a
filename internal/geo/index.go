// Package geo resolves free-text citation locations to campus coordinates
// and decides which parked users a new citation should alert.
package geo

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/slugwatch/citation-cli/internal/model"
)

// LocationEntry is one row of the static lot table.
type LocationEntry struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// LocationIndex resolves free-text location labels to coordinates. Entries
// are immutable after load; iteration order is table order, which breaks
// ties on prefix matches (first match wins).
type LocationIndex struct {
	entries []LocationEntry
	byName  map[string]model.Coordinate
}

// numericPrefix matches a leading numeric or alphanumeric lot token, e.g.
// "127" in "127 WEST LOT" or "104A" in "104A REMOTE".
var numericPrefix = regexp.MustCompile(`^(\d+[A-Za-z]*)`)

// LoadIndex reads the lot table from path. The table is loosely JSON: keys
// may be unquoted, comments and trailing commas are tolerated. Bare keys are
// quoted here; jsonc handles the rest.
func LoadIndex(path string) (*LocationIndex, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read location table %s", path)
	}
	return ParseIndex(raw)
}

// ParseIndex builds an index from raw lot-table bytes.
func ParseIndex(raw []byte) (*LocationIndex, error) {
	var entries []LocationEntry
	if err := json.Unmarshal(jsonc.ToJSON(quoteBareKeys(raw)), &entries); err != nil {
		return nil, eris.Wrap(err, "geo: parse location table")
	}

	idx := &LocationIndex{
		entries: entries,
		byName:  make(map[string]model.Coordinate, len(entries)),
	}
	for i := range entries {
		key := NormalizeLabel(entries[i].Name)
		if _, dup := idx.byName[key]; dup {
			zap.L().Warn("geo: duplicate lot name in table", zap.String("name", entries[i].Name))
			continue
		}
		idx.byName[key] = model.Coordinate{Lat: entries[i].Lat, Lng: entries[i].Lng}
	}

	zap.L().Info("geo: location table loaded", zap.Int("entries", len(entries)))
	return idx, nil
}

// quoteBareKeys rewrites unquoted object keys (`name:` → `"name":`) so the
// loose table format decodes as standard JSON. The scan tracks string state,
// so colons inside quoted lot names are left alone; an identifier not
// followed by a colon (true, null) passes through unchanged.
func quoteBareKeys(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+16)
	inString := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			out = append(out, c)
			if c == '\\' && i+1 < len(raw) {
				i++
				out = append(out, raw[i])
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		if !isIdentStart(c) {
			out = append(out, c)
			continue
		}
		j := i
		for j < len(raw) && isIdentPart(raw[j]) {
			j++
		}
		k := j
		for k < len(raw) && (raw[k] == ' ' || raw[k] == '\t') {
			k++
		}
		if k < len(raw) && raw[k] == ':' {
			out = append(out, '"')
			out = append(out, raw[i:j]...)
			out = append(out, '"')
		} else {
			out = append(out, raw[i:j]...)
		}
		i = j - 1
	}
	return out
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}

// NormalizeLabel canonicalizes a location label for matching: NFC-normalized
// (scraped text can arrive decomposed), trimmed, upper-cased.
func NormalizeLabel(label string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFC.String(label)))
}

// Len returns the number of table entries.
func (idx *LocationIndex) Len() int { return len(idx.entries) }

// Entries returns the table rows in file order.
func (idx *LocationIndex) Entries() []LocationEntry {
	out := make([]LocationEntry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// Resolve maps a free-text location label to a coordinate. Matching order:
// exact match on the normalized label, then a scan for any table name
// starting with the label's leading numeric/alphanumeric token. The prefix
// scan deliberately tolerates inconsistent lot naming between the table and
// the site's free-text field; when two lot names share a prefix the first
// one in table order wins.
func (idx *LocationIndex) Resolve(label string) (model.Coordinate, bool) {
	key := NormalizeLabel(label)
	if key == "" {
		return model.Coordinate{}, false
	}

	if coord, ok := idx.byName[key]; ok {
		return coord, true
	}

	prefix := numericPrefix.FindString(key)
	if prefix == "" {
		return model.Coordinate{}, false
	}
	for i := range idx.entries {
		if nameMatchesPrefix(NormalizeLabel(idx.entries[i].Name), prefix) {
			return model.Coordinate{Lat: idx.entries[i].Lat, Lng: idx.entries[i].Lng}, true
		}
	}
	return model.Coordinate{}, false
}

// nameMatchesPrefix reports whether a normalized table name carries the lot
// token: either the name starts with it ("112 CORE WEST STRUCTURE" for
// "112") or it appears as a standalone word ("LOT 127" for "127").
func nameMatchesPrefix(name, prefix string) bool {
	if strings.HasPrefix(name, prefix) {
		return true
	}
	for _, word := range strings.Fields(name) {
		if word == prefix {
			return true
		}
	}
	return false
}
