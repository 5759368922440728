// Package params reads the run configuration submitted to the tool and turns
// it into a validated domain.RunRequest.
//
// The file may be JSON or YAML. Parameters are looked up under
// <toolname>.parameters, then under a top-level parameters key, and finally
// the whole document is treated as the parameter object.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vforwater/vforwater-loader/internal/domain"
)

var ErrInvalid = errors.New("invalid parameters")

// Parameters mirrors the parameter object after schema validation.
type Parameters struct {
	DatasetIDs    []int64         `json:"dataset_ids"`
	StartDate     *string         `json:"start_date"`
	EndDate       *string         `json:"end_date"`
	ReferenceArea json.RawMessage `json:"reference_area"`
	CellTouches   *bool           `json:"cell_touches"`
}

// LoadFile reads and validates the parameter file at path.
func LoadFile(path, toolName string) (domain.RunRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.RunRequest{}, fmt.Errorf("read parameters: %w", err)
	}
	return Parse(raw, toolName)
}

// Parse decodes a JSON or YAML parameter document.
func Parse(raw []byte, toolName string) (domain.RunRequest, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.RunRequest{}, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	normalized, err := normalize(doc)
	if err != nil {
		return domain.RunRequest{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	obj, ok := normalized.(map[string]any)
	if !ok {
		return domain.RunRequest{}, fmt.Errorf("%w: document must be an object", ErrInvalid)
	}
	section := selectSection(obj, toolName)

	// Round-trip through JSON so numbers reach the schema as float64.
	encoded, err := json.Marshal(section)
	if err != nil {
		return domain.RunRequest{}, fmt.Errorf("%w: encode: %v", ErrInvalid, err)
	}
	var generic any
	if err := json.Unmarshal(encoded, &generic); err != nil {
		return domain.RunRequest{}, fmt.Errorf("%w: encode: %v", ErrInvalid, err)
	}
	if err := validateSchema(generic); err != nil {
		return domain.RunRequest{}, err
	}

	var p Parameters
	if err := json.Unmarshal(encoded, &p); err != nil {
		return domain.RunRequest{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return p.Request()
}

func selectSection(obj map[string]any, toolName string) map[string]any {
	if toolName != "" {
		if tool, ok := obj[toolName].(map[string]any); ok {
			if p, ok := tool["parameters"].(map[string]any); ok {
				return p
			}
			return tool
		}
	}
	if p, ok := obj["parameters"].(map[string]any); ok {
		return p
	}
	return obj
}

// Request converts validated parameters into a RunRequest. Duplicate
// dataset ids are dropped, keeping the first occurrence.
func (p Parameters) Request() (domain.RunRequest, error) {
	req := domain.RunRequest{
		DatasetIDs:  dedupe(p.DatasetIDs),
		CellTouches: true,
	}
	if p.CellTouches != nil {
		req.CellTouches = *p.CellTouches
	}

	var tr domain.TimeRange
	if p.StartDate != nil && strings.TrimSpace(*p.StartDate) != "" {
		start, _, err := parseTime(*p.StartDate)
		if err != nil {
			return domain.RunRequest{}, fmt.Errorf("%w: start_date: %v", ErrInvalid, err)
		}
		tr.Start = start
	}
	if p.EndDate != nil && strings.TrimSpace(*p.EndDate) != "" {
		end, dateOnly, err := parseTime(*p.EndDate)
		if err != nil {
			return domain.RunRequest{}, fmt.Errorf("%w: end_date: %v", ErrInvalid, err)
		}
		if dateOnly {
			// A bare end date includes that whole day.
			end = end.AddDate(0, 0, 1).Add(-time.Microsecond)
		}
		tr.End = end
	}
	if !tr.IsZero() {
		req.TimeRange = &tr
	}

	if area := strings.TrimSpace(string(p.ReferenceArea)); area != "" && area != "null" {
		req.ReferenceArea = append(json.RawMessage(nil), p.ReferenceArea...)
	}

	if err := req.Validate(); err != nil {
		return domain.RunRequest{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return req, nil
}

const dateLayout = "2006-01-02"

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	dateLayout,
}

// parseTime also reports whether s was a date without a time of day.
func parseTime(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), layout == dateLayout, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unsupported date %q", s)
}

func dedupe(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// normalize converts YAML-decoded values into JSON-encodable ones.
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case time.Time:
		return val.Format(time.RFC3339Nano), nil
	default:
		return val, nil
	}
}
