package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vforwater/vforwater-loader/internal/domain"
)

// ManifestFileName is the name of the file mapping inside the output
// directory.
const ManifestFileName = "file_mapping.json"

// Manifest maps every loaded dataset to its artifact. Datasets that were not
// loaded are listed under Results with their reason.
type Manifest struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Stats       ManifestStats    `json:"stats"`
	Entries     []ManifestEntry  `json:"entries"`
	Results     []ManifestResult `json:"results"`
}

type ManifestStats struct {
	Attempted  int       `json:"attempted"`
	Loaded     int       `json:"loaded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ManifestEntry describes one artifact. RelativePath is ArtifactPath
// relative to the output directory. SHA256 is the file digest, or for
// directories the digest over the sorted relative paths and file digests.
// Error is set when the artifact could not be described; size and digest
// are then empty.
type ManifestEntry struct {
	DatasetID      int64  `json:"dataset_id"`
	UUID           string `json:"uuid,omitempty"`
	Title          string `json:"title"`
	Variable       string `json:"variable,omitempty"`
	Unit           string `json:"unit,omitempty"`
	DatasourceType string `json:"datasource_type,omitempty"`
	ArtifactPath   string `json:"artifact_path"`
	RelativePath   string `json:"relative_path,omitempty"`
	Directory      bool   `json:"directory"`
	Files          int    `json:"files"`
	Size           int64  `json:"size"`
	SizeHuman      string `json:"size_human"`
	SHA256         string `json:"sha256"`
	Error          string `json:"error,omitempty"`
}

type ManifestResult struct {
	DatasetID int64          `json:"dataset_id"`
	Outcome   domain.Outcome `json:"outcome"`
	Reason    string         `json:"reason,omitempty"`
}

// BuildManifest describes the artifacts in mapping. outDir is used for
// relative paths only. An artifact that cannot be read keeps its entry with
// Error set.
func BuildManifest(runID, outDir string, mapping []domain.MappingEntry, results []domain.LoadResult, stats domain.Stats) Manifest {
	m := Manifest{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Stats: ManifestStats{
			Attempted:  stats.Attempted,
			Loaded:     stats.Loaded,
			Skipped:    stats.Skipped,
			Failed:     stats.Failed,
			StartedAt:  stats.StartedAt.UTC(),
			FinishedAt: stats.FinishedAt.UTC(),
		},
		Entries: make([]ManifestEntry, 0, len(mapping)),
		Results: make([]ManifestResult, 0, len(results)),
	}
	for _, me := range mapping {
		m.Entries = append(m.Entries, describeArtifact(outDir, me))
	}
	for _, r := range results {
		m.Results = append(m.Results, ManifestResult{DatasetID: r.DatasetID, Outcome: r.Outcome, Reason: r.Reason})
	}
	return m
}

// Errors lists the entries that could not be described.
func (m Manifest) Errors() []ManifestEntry {
	var out []ManifestEntry
	for _, e := range m.Entries {
		if e.Error != "" {
			out = append(out, e)
		}
	}
	return out
}

// TotalSize is the combined size of all artifacts.
func (m Manifest) TotalSize() int64 {
	var total int64
	for _, e := range m.Entries {
		total += e.Size
	}
	return total
}

func describeArtifact(outDir string, me domain.MappingEntry) ManifestEntry {
	desc := me.Descriptor
	entry := ManifestEntry{
		DatasetID:    desc.ID,
		UUID:         desc.UUID,
		Title:        desc.Title,
		Variable:     desc.Variable.Name,
		Unit:         desc.Variable.Unit,
		ArtifactPath: me.ArtifactPath,
	}
	if desc.Datasource != nil {
		entry.DatasourceType = desc.Datasource.Type
	}
	if outDir != "" {
		if rel, err := filepath.Rel(outDir, me.ArtifactPath); err == nil {
			entry.RelativePath = filepath.ToSlash(rel)
		}
	}

	info, err := os.Stat(me.ArtifactPath)
	if err != nil {
		entry.Error = fmt.Sprintf("stat artifact: %v", err)
		return entry
	}
	var (
		files int
		size  int64
		sum   string
	)
	if info.IsDir() {
		files, size, sum, err = hashDir(me.ArtifactPath)
	} else {
		files = 1
		size, sum, err = hashFile(me.ArtifactPath)
	}
	if err != nil {
		entry.Error = fmt.Sprintf("hash artifact: %v", err)
		return entry
	}
	entry.Directory = info.IsDir()
	entry.Files, entry.Size, entry.SHA256 = files, size, sum
	entry.SizeHuman = humanize.IBytes(uint64(entry.Size))
	return entry
}

func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func hashDir(dir string) (int, int64, string, error) {
	var rels []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			rels = append(rels, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return 0, 0, "", err
	}
	sort.Strings(rels)

	h := sha256.New()
	var total int64
	for _, rel := range rels {
		n, sum, err := hashFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return 0, 0, "", err
		}
		total += n
		fmt.Fprintf(h, "%s  %s\n", sum, rel)
	}
	return len(rels), total, hex.EncodeToString(h.Sum(nil)), nil
}

// WriteManifest writes m as indented JSON to path, replacing it atomically.
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}
