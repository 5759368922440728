package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vforwater/vforwater-loader/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() err=%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() err=%v", err)
	}
}

func TestBuildAndWriteManifest(t *testing.T) {
	out := t.TempDir()
	csvPath := filepath.Join(out, "datasets", "air_temperature_10.csv")
	writeFile(t, csvPath, "tstamp,Ta\n2020-01-01T00:00:00Z,1.5\n")
	dirPath := filepath.Join(out, "datasets", "precipitation_12")
	writeFile(t, filepath.Join(dirPath, "jan.nc"), "jan")
	writeFile(t, filepath.Join(dirPath, "sub", "feb.nc"), "feb")

	mapping := []domain.MappingEntry{
		{Descriptor: domain.Descriptor{ID: 10, Title: "Air temperature", Datasource: &domain.Datasource{Type: "internal"}}, ArtifactPath: csvPath},
		{Descriptor: domain.Descriptor{ID: 12, Title: "Precipitation"}, ArtifactPath: dirPath},
	}
	results := []domain.LoadResult{
		domain.Loaded(mapping[0].Descriptor, csvPath),
		domain.Skipped(11, domain.ReasonNoData),
		domain.Loaded(mapping[1].Descriptor, dirPath),
	}
	var stats domain.Stats
	for _, r := range results {
		stats.Record(r)
	}

	m := BuildManifest("run-1", out, mapping, results, stats)
	if errs := m.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected entry errors %+v", errs)
	}
	if len(m.Entries) != 2 || len(m.Results) != 3 {
		t.Fatalf("unexpected manifest %+v", m)
	}

	file := m.Entries[0]
	sum := sha256.Sum256([]byte("tstamp,Ta\n2020-01-01T00:00:00Z,1.5\n"))
	if file.SHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected file digest %s", file.SHA256)
	}
	if file.RelativePath != "datasets/air_temperature_10.csv" || file.Directory || file.DatasourceType != "internal" {
		t.Fatalf("unexpected file entry %+v", file)
	}

	dir := m.Entries[1]
	if !dir.Directory || dir.Files != 2 || dir.Size != 6 || dir.SizeHuman != "6 B" {
		t.Fatalf("unexpected dir entry %+v", dir)
	}
	if m.TotalSize() != file.Size+dir.Size {
		t.Fatalf("TotalSize()=%d", m.TotalSize())
	}

	path := filepath.Join(out, ManifestFileName)
	if err := WriteManifest(path, m); err != nil {
		t.Fatalf("WriteManifest() err=%v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() err=%v", err)
	}
	var decoded Manifest
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() err=%v", err)
	}
	if decoded.RunID != "run-1" || decoded.Stats.Skipped != 1 || decoded.Results[1].Reason != domain.ReasonNoData {
		t.Fatalf("unexpected decoded manifest %+v", decoded)
	}
}

func TestDirectoryDigestIsStable(t *testing.T) {
	a := filepath.Join(t.TempDir(), "a")
	b := filepath.Join(t.TempDir(), "b")
	for _, dir := range []string{a, b} {
		writeFile(t, filepath.Join(dir, "x.nc"), "x")
		writeFile(t, filepath.Join(dir, "y", "z.nc"), "z")
	}
	_, _, sumA, err := hashDir(a)
	if err != nil {
		t.Fatalf("hashDir() err=%v", err)
	}
	_, _, sumB, err := hashDir(b)
	if err != nil {
		t.Fatalf("hashDir() err=%v", err)
	}
	if sumA != sumB {
		t.Fatalf("digest differs for identical trees: %s vs %s", sumA, sumB)
	}

	writeFile(t, filepath.Join(b, "y", "z.nc"), "changed")
	_, _, sumC, err := hashDir(b)
	if err != nil {
		t.Fatalf("hashDir() err=%v", err)
	}
	if sumC == sumA {
		t.Fatalf("expected digest to change")
	}
}

func TestBuildManifestKeepsEntriesAroundMissingArtifact(t *testing.T) {
	out := t.TempDir()
	kept := filepath.Join(out, "datasets", "air_temperature_10.csv")
	writeFile(t, kept, "tstamp,Ta\n")
	mapping := []domain.MappingEntry{
		{Descriptor: domain.Descriptor{ID: 1}, ArtifactPath: filepath.Join(out, "datasets", "gone.csv")},
		{Descriptor: domain.Descriptor{ID: 10}, ArtifactPath: kept},
	}

	m := BuildManifest("run-1", out, mapping, nil, domain.Stats{})
	if len(m.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", m.Entries)
	}
	if e := m.Entries[0]; e.DatasetID != 1 || !strings.Contains(e.Error, "stat artifact") || e.SHA256 != "" {
		t.Fatalf("unexpected entry for missing artifact %+v", e)
	}
	if e := m.Entries[1]; e.Error != "" || e.SHA256 == "" || e.Size != int64(len("tstamp,Ta\n")) {
		t.Fatalf("unexpected entry for kept artifact %+v", e)
	}
	if errs := m.Errors(); len(errs) != 1 || errs[0].DatasetID != 1 {
		t.Fatalf("Errors()=%+v", errs)
	}
	if err := WriteManifest(filepath.Join(out, ManifestFileName), m); err != nil {
		t.Fatalf("WriteManifest() err=%v", err)
	}
}
