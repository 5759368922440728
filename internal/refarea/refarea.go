// Package refarea turns the reference area submitted with a run into a
// GeoJSON file that loaders and downstream tools can reuse, and computes the
// bounding box used for spatial restriction.
package refarea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/vforwater/vforwater-loader/internal/domain"
)

// FileName is the name of the materialized reference area inside the output
// directory.
const FileName = "reference_area.geojson"

var ErrEmptyGeometry = errors.New("reference area has no coordinates")

type Materializer struct {
	outDir string
}

func NewMaterializer(outDir string) (*Materializer, error) {
	if strings.TrimSpace(outDir) == "" {
		return nil, errors.New("output directory is required")
	}
	return &Materializer{outDir: outDir}, nil
}

// Materialize validates raw as GeoJSON, writes it to the output directory
// and returns the file location with its bounding box.
func (m *Materializer) Materialize(ctx context.Context, raw json.RawMessage) (domain.Area, error) {
	if err := ctx.Err(); err != nil {
		return domain.Area{}, err
	}
	bbox, err := BoundingBox(raw)
	if err != nil {
		return domain.Area{}, err
	}
	if err := os.MkdirAll(m.outDir, 0o755); err != nil {
		return domain.Area{}, fmt.Errorf("create output dir: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return domain.Area{}, fmt.Errorf("format geojson: %w", err)
	}
	buf.WriteByte('\n')

	path := filepath.Join(m.outDir, FileName)
	tmp, err := os.CreateTemp(m.outDir, FileName+".*.tmp")
	if err != nil {
		return domain.Area{}, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return domain.Area{}, fmt.Errorf("write reference area: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return domain.Area{}, fmt.Errorf("close reference area: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return domain.Area{}, fmt.Errorf("rename reference area: %w", err)
	}
	return domain.Area{Path: path, BBox: bbox}, nil
}

type object struct {
	Type        string            `json:"type"`
	Geometry    json.RawMessage   `json:"geometry"`
	Features    []json.RawMessage `json:"features"`
	Geometries  []json.RawMessage `json:"geometries"`
	Coordinates json.RawMessage   `json:"coordinates"`
}

// BoundingBox computes the bounding box of a GeoJSON Feature,
// FeatureCollection or Geometry.
func BoundingBox(raw json.RawMessage) (domain.BBox, error) {
	acc := bboxAcc{box: domain.BBox{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}}
	if err := acc.walk(raw, 0); err != nil {
		return domain.BBox{}, err
	}
	if !acc.any {
		return domain.BBox{}, ErrEmptyGeometry
	}
	if err := acc.box.Validate(); err != nil {
		return domain.BBox{}, err
	}
	return acc.box, nil
}

type bboxAcc struct {
	box domain.BBox
	any bool
}

const maxDepth = 32

func (a *bboxAcc) walk(raw json.RawMessage, depth int) error {
	if depth > maxDepth {
		return errors.New("geojson nesting too deep")
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("decode geojson: %w", err)
	}
	switch obj.Type {
	case "FeatureCollection":
		for i, f := range obj.Features {
			if err := a.walk(f, depth+1); err != nil {
				return fmt.Errorf("feature %d: %w", i, err)
			}
		}
	case "Feature":
		if len(obj.Geometry) == 0 || string(obj.Geometry) == "null" {
			return nil
		}
		return a.walk(obj.Geometry, depth+1)
	case "GeometryCollection":
		for i, g := range obj.Geometries {
			if err := a.walk(g, depth+1); err != nil {
				return fmt.Errorf("geometry %d: %w", i, err)
			}
		}
	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon":
		var coords any
		if err := json.Unmarshal(obj.Coordinates, &coords); err != nil {
			return fmt.Errorf("decode %s coordinates: %w", obj.Type, err)
		}
		return a.coords(coords, 0)
	case "":
		return errors.New("geojson type is required")
	default:
		return fmt.Errorf("unsupported geojson type %q", obj.Type)
	}
	return nil
}

func (a *bboxAcc) coords(v any, depth int) error {
	if depth > maxDepth {
		return errors.New("coordinates nesting too deep")
	}
	arr, ok := v.([]any)
	if !ok {
		return errors.New("coordinates must be arrays")
	}
	if len(arr) == 0 {
		return nil
	}
	if x, ok := arr[0].(float64); ok {
		if len(arr) < 2 {
			return errors.New("position needs at least two values")
		}
		y, ok := arr[1].(float64)
		if !ok {
			return errors.New("position values must be numbers")
		}
		a.box = a.box.Extend(domain.Point{X: x, Y: y})
		a.any = true
		return nil
	}
	for _, item := range arr {
		if err := a.coords(item, depth+1); err != nil {
			return err
		}
	}
	return nil
}
