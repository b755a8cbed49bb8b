package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DateLayout = "2006-01-02"

// Pipeline is the optional YAML file layered on top of the environment.
type Pipeline struct {
	OutputDir      string       `yaml:"output_dir"`
	ICD10CodesFile string       `yaml:"icd10_codes_file"`
	Tables         TablesSpec   `yaml:"tables"`
	Windows        WindowsSpec  `yaml:"windows"`
	Matching       MatchingSpec `yaml:"matching"`
	Cache          CacheSpec    `yaml:"cache"`

	SevereChronicCodes []CodeEntry `yaml:"severe_chronic_codes"`
}

type TablesSpec struct {
	Source string `yaml:"source"`
	Dir    string `yaml:"dir"`
}

type DateRange struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type WindowsSpec struct {
	Diagnosis  DateRange `yaml:"diagnosis"`
	Birth      DateRange `yaml:"birth"`
	MaxAgeDays int       `yaml:"max_age_days"`
}

type MatchingSpec struct {
	Policy string `yaml:"policy"`
	Ratio  int    `yaml:"ratio"`
}

type CacheSpec struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	Keying  string `yaml:"keying"`
	TTL     string `yaml:"ttl"`
}

type CodeEntry struct {
	Label string   `yaml:"label"`
	Codes []string `yaml:"codes"`
}

func LoadPipeline(path string) (Pipeline, error) {
	var p Pipeline
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return p, fmt.Errorf("read pipeline config: %w", err)
	}
	if err := yaml.Unmarshal(content, &p); err != nil {
		return p, fmt.Errorf("parse pipeline config %s: %w", path, err)
	}
	if _, _, err := p.Windows.Diagnosis.Parse(); err != nil {
		return p, fmt.Errorf("windows.diagnosis: %w", err)
	}
	if _, _, err := p.Windows.Birth.Parse(); err != nil {
		return p, fmt.Errorf("windows.birth: %w", err)
	}
	if p.Cache.TTL != "" {
		if _, err := time.ParseDuration(p.Cache.TTL); err != nil {
			return p, fmt.Errorf("cache.ttl: %w", err)
		}
	}
	return p, nil
}

// Apply overrides environment settings with the non-empty values of the file.
func (p Pipeline) Apply(cfg *Config) {
	if p.OutputDir != "" {
		cfg.OutputDir = p.OutputDir
	}
	if p.ICD10CodesFile != "" {
		cfg.ICD10CodesFile = p.ICD10CodesFile
	}
	if p.Tables.Source != "" {
		cfg.TableSource = p.Tables.Source
	}
	if p.Tables.Dir != "" {
		cfg.TablesDir = p.Tables.Dir
	}
	if p.Matching.Policy != "" {
		cfg.MatchPolicy = p.Matching.Policy
	}
	if p.Matching.Ratio > 0 {
		cfg.MatchRatio = p.Matching.Ratio
	}
	if p.Cache.Backend != "" {
		cfg.CacheBackend = p.Cache.Backend
	}
	if p.Cache.Dir != "" {
		cfg.CacheDir = p.Cache.Dir
	}
	if p.Cache.Keying != "" {
		cfg.CacheKeying = p.Cache.Keying
	}
	if d, err := time.ParseDuration(p.Cache.TTL); err == nil && p.Cache.TTL != "" {
		cfg.CacheTTL = d
	}
}

// Parse returns zero times for an unset range; a half-set range is an error.
func (r DateRange) Parse() (time.Time, time.Time, error) {
	if r.Start == "" && r.End == "" {
		return time.Time{}, time.Time{}, nil
	}
	if r.Start == "" || r.End == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("both start and end are required")
	}
	start, err := time.Parse(DateLayout, r.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(DateLayout, r.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s before start %s", r.End, r.Start)
	}
	return start, end, nil
}
