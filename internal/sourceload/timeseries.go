package sourceload

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vforwater/vforwater-loader/internal/catalog"
	"github.com/vforwater/vforwater-loader/internal/domain"
)

func (l *Loader) loadTimeseries(ctx context.Context, req Request) (string, error) {
	desc := req.Descriptor
	tr := domain.TimeRange{}
	if req.TimeRange != nil {
		tr = *req.TimeRange
	}

	tmp, err := os.CreateTemp(l.outDir, "."+desc.Slug()+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	column := desc.Variable.Symbol
	if column == "" {
		column = "value"
	}
	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"tstamp", column}); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	rows := 0
	err = l.timeseries.Timeseries(ctx, desc.ID, tr, func(obs catalog.Observation) error {
		rows++
		return w.Write([]string{
			obs.Time.Format(time.RFC3339),
			strconv.FormatFloat(obs.Value, 'g', -1, 64),
		})
	})
	if err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write timeseries: %w", err)
	}
	if rows == 0 {
		return "", nil
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close timeseries: %w", err)
	}

	final := filepath.Join(l.outDir, desc.Slug()+".csv")
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("rename timeseries: %w", err)
	}
	committed = true
	l.logger.Debug("timeseries written", "dataset_id", desc.ID, "rows", rows, "path", final)
	return final, nil
}
