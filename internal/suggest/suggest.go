// Package suggest turns per-chunk classifier predictions into model
// suggested annotations. Low-confidence chunks become silence, runs of the
// same label merge into one segment and silence is dropped.
package suggest

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/logger"
)

const (
	DefaultThreshold    = 0.5
	DefaultSilenceLabel = "silence"
)

// Prediction is the top class of one audio chunk
type Prediction struct {
	StartTime  float64 `json:"start_time" yaml:"start_time"`
	EndTime    float64 `json:"end_time" yaml:"end_time"`
	Label      string  `json:"label" yaml:"label"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Segment is a merged run of chunks sharing one label
type Segment struct {
	StartTime float64 `json:"start_time" yaml:"start_time"`
	EndTime   float64 `json:"end_time" yaml:"end_time"`
	Label     string  `json:"label" yaml:"label"`
}

// Config controls merging. Zero values take defaults.
type Config struct {
	Threshold    float64
	SilenceLabel string
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if strings.TrimSpace(c.SilenceLabel) == "" {
		c.SilenceLabel = DefaultSilenceLabel
	}
	return c
}

// Merge sorts predictions by start time, replaces labels below the
// threshold with silence and joins consecutive chunks of the same label.
// Invalid chunks are skipped.
func Merge(preds []Prediction, cfg Config) []Segment {
	cfg = cfg.withDefaults()
	log := logger.Global().Module("suggest")

	sorted := slices.Clone(preds)
	slices.SortStableFunc(sorted, func(a, b Prediction) int {
		switch {
		case a.StartTime < b.StartTime:
			return -1
		case a.StartTime > b.StartTime:
			return 1
		}
		return 0
	})

	var segments []Segment
	for _, p := range sorted {
		if p.StartTime < 0 || p.EndTime <= p.StartTime {
			log.Debug("skipping invalid prediction",
				logger.Float64("start_time", p.StartTime),
				logger.Float64("end_time", p.EndTime))
			continue
		}

		label := strings.TrimSpace(p.Label)
		if label == "" || p.Confidence < cfg.Threshold {
			label = cfg.SilenceLabel
		}
		start, end := round2(p.StartTime), round2(p.EndTime)

		if n := len(segments); n > 0 && segments[n-1].Label == label {
			segments[n-1].EndTime = max(segments[n-1].EndTime, end)
			continue
		}
		segments = append(segments, Segment{StartTime: start, EndTime: end, Label: label})
	}
	return segments
}

// Records converts segments to unlabeled model suggestions, dropping silence
func Records(segments []Segment, cfg Config) []annotation.Record {
	cfg = cfg.withDefaults()
	records := make([]annotation.Record, 0, len(segments))
	for _, s := range segments {
		if s.Label == cfg.SilenceLabel {
			continue
		}
		records = append(records, annotation.Record{
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			Attributes: []annotation.AttributeValue{},
			ModelLabel: s.Label,
		})
	}
	return records
}

// Load reads predictions from a .json, .yaml or .yml file
func Load(path string) ([]Prediction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("suggest").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes predictions. ext selects the format; anything other than
// .json is read as YAML.
func Parse(data []byte, ext string) ([]Prediction, error) {
	var preds []Prediction
	var err error
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&preds)
	} else {
		err = yaml.Unmarshal(data, &preds)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("suggest").
			Category(errors.CategoryFileParsing).
			Context("format", strings.TrimPrefix(strings.ToLower(ext), ".")).
			Build()
	}
	return preds, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
