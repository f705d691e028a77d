// Package report defines the gatekeeper output document and writes it to
// the outputs tree.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/heimdex/gatekeeper/internal/plausibility"
)

// Evidence check names.
const (
	CheckHeuristicsScore = "heuristics_score"
	CheckCombineMethod   = "combine_method"
	CheckCosmosStatus    = "cosmos_status"
)

// ProviderCosmos is the provider recorded in model evidence.
const ProviderCosmos = "cosmos"

// MaxRawResponse caps the raw model text kept in evidence, in characters.
const MaxRawResponse = 2000

// Output is the per-clip verdict document.
type Output struct {
	ClipID            string               `json:"clip_id"`
	PlausibilityScore float64              `json:"plausibility_score"`
	Verdict           plausibility.Verdict `json:"verdict"`
	Explanation       string               `json:"explanation"`
	FlaggedObjects    []FlaggedObject      `json:"flagged_objects"`
	Evidence          *Evidence            `json:"evidence,omitempty"`
}

type FlaggedObject struct {
	ObjectID string `json:"object_id"`
	Reason   string `json:"reason"`
}

type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Details string `json:"details,omitempty"`
}

type ModelEvidence struct {
	Provider    string   `json:"provider"`
	ModelName   string   `json:"model_name"`
	RawResponse string   `json:"raw_response,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Verdict     *string  `json:"verdict,omitempty"`
}

type Evidence struct {
	Checks []CheckResult  `json:"checks"`
	Model  *ModelEvidence `json:"model,omitempty"`
}

// Check returns the named check, if present.
func (o *Output) Check(name string) (CheckResult, bool) {
	if o.Evidence == nil {
		return CheckResult{}, false
	}
	for _, c := range o.Evidence.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// FlaggedIDs returns the set of flagged object ids.
func (o *Output) FlaggedIDs() map[string]bool {
	ids := make(map[string]bool, len(o.FlaggedObjects))
	for _, f := range o.FlaggedObjects {
		ids[f.ObjectID] = true
	}
	return ids
}

// TruncateRunes shortens s to at most n characters.
func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Path returns the report location for a clip under the outputs root.
func Path(outputsDir, clipID string) string {
	return filepath.Join(outputsDir, "reports", SanitizeName(clipID)+"_verdict.json")
}

// OverlayPath returns the overlay video location for a clip under the
// outputs root.
func OverlayPath(outputsDir, clipID string) string {
	return filepath.Join(outputsDir, "videos", SanitizeName(clipID)+"_overlay.mp4")
}

// Write stores the document as indented JSON, creating parent directories.
// The data goes to a uniquely named temporary file that is renamed into
// place, so concurrent writers of the same path never see a partial file.
func Write(out *Output, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize report: %w", err)
	}
	return nil
}

// Read loads a previously written report.
func Read(path string) (*Output, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &out, nil
}
