package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/midpoint-labs/midpoint/pkg/graph"
	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

// Stage artifact filenames under the data directory.
const (
	fileBaseGraph     = "graph_stage1_base.json"
	fileTransferGraph = "graph_stage2_transfers.json"
	fileTransferPairs = "transfer_pairs.json"
	fileWeightedGraph = "graph_stage3_transfer_weights.json"
	fileWeights       = "calculated_weights.json"
	fileValidation    = "validation_report.json"
	fileFinalGraph    = "final_graph.json"
	fileTerminals     = "terminal_hubs.json"
	timetableSubdir   = "timetables"
)

// TransferPair is an unordered hub pair recorded by stage 2 for stage 3 to
// weight. A and B are hub IDs sorted ascending; the primaries are the stop
// IDs handed to the walking journey planner.
type TransferPair struct {
	A        string `json:"a"`
	B        string `json:"b"`
	APrimary string `json:"a_primary"`
	BPrimary string `json:"b_primary"`
}

// WeightRecord is one calculated line-edge duration, appended by stages 5
// and 6 and spliced into the graph by stage 8.
type WeightRecord struct {
	Source          string    `json:"source"`
	Target          string    `json:"target"`
	Line            string    `json:"line"`
	Mode            string    `json:"mode"`
	DurationMinutes float64   `json:"duration_minutes"`
	CalculatedAt    time.Time `json:"calculated_timestamp"`
}

// LineTimetables is the per-line stage-4 artifact: timetable payloads keyed
// by departure stop (or "FROM_to_TO" for point-to-point fetches). A nil
// entry records a fetch that failed after retries.
type LineTimetables struct {
	LineID     string                            `json:"line_id"`
	FetchedAt  time.Time                         `json:"fetch_timestamp"`
	Timetables map[string]*tfl.TimetableResponse `json:"timetables"`
}

// writeJSON atomically writes v as indented JSON: write to a temp file in
// the same directory, then rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeGraph stores a graph artifact in node-link form.
func writeGraph(path string, g *graph.Graph) error {
	data, err := g.MarshalNodeLink()
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	return writeFileAtomic(path, data)
}

// ReadGraph loads a node-link graph artifact.
func ReadGraph(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	g, err := graph.UnmarshalNodeLink(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return g, nil
}
