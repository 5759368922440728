package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// Descriptor is a catalog entry resolved for one dataset identifier.
type Descriptor struct {
	ID         int64
	UUID       string
	Title      string
	Version    int
	Variable   Variable
	Location   *Point
	Datasource *Datasource
}

type Variable struct {
	Name   string
	Symbol string
	Unit   string
}

// Datasource tells the loader where the data of an entry lives and how it
// is laid out.
type Datasource struct {
	ID             int64
	Type           string
	Path           string
	Encoding       string
	Args           map[string]any
	TemporalExtent *TimeRange
	SpatialExtent  *BBox
}

// Slug is a file-system friendly name for the entry, used to name artifacts.
func (d Descriptor) Slug() string {
	base := d.Variable.Name
	if strings.TrimSpace(base) == "" {
		base = d.Title
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(base)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore && b.Len() > 0:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	name := strings.TrimSuffix(b.String(), "_")
	if name == "" {
		name = "dataset"
	}
	return fmt.Sprintf("%s_%d", name, d.ID)
}
