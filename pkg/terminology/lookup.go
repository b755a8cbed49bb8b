package terminology

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	csvLabelColumn = "Diagnoses"
	csvCodesColumn = "ICD10-codes"
)

// Entry is one row of a severe-chronic code list: a disease label and the
// codes or START-END ranges that belong to it.
type Entry struct {
	Label string   `yaml:"label" json:"label"`
	Codes []string `yaml:"codes" json:"codes"`
}

type codeFile struct {
	Entries []Entry `yaml:"entries"`
}

// Lookup maps diagnosis codes to disease labels. It is a value: the map is
// never exposed, so a Lookup cannot change after Expand returns it.
type Lookup struct {
	codes map[string]string
}

// Expand registers every code of every entry. A range START-END registers
// only its two boundary codes, never the codes between them. Later entries
// win when a code is listed twice.
func Expand(entries []Entry) Lookup {
	codes := make(map[string]string)
	for _, entry := range entries {
		for _, raw := range entry.Codes {
			for _, code := range expandCode(raw) {
				codes[code] = entry.Label
			}
		}
	}
	return Lookup{codes: codes}
}

// ExpandMap accepts the code-to-label form, e.g. {"A00-A09": "intestinal"}.
func ExpandMap(source map[string]string) Lookup {
	keys := make([]string, 0, len(source))
	for k := range source {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Label: source[k], Codes: SplitCodes(k)})
	}
	return Expand(entries)
}

// SplitCodes splits a ';' separated code cell.
func SplitCodes(cell string) []string {
	var out []string
	for _, part := range strings.Split(cell, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func expandCode(raw string) []string {
	code := strings.TrimSpace(raw)
	if code == "" {
		return nil
	}
	start, end, found := strings.Cut(code, "-")
	if !found {
		return []string{code}
	}
	var out []string
	if s := strings.TrimSpace(start); s != "" {
		out = append(out, s)
	}
	if e := strings.TrimSpace(end); e != "" {
		out = append(out, e)
	}
	return out
}

func (l Lookup) Contains(code string) bool {
	_, ok := l.codes[code]
	return ok
}

func (l Lookup) Label(code string) (string, bool) {
	label, ok := l.codes[code]
	return label, ok
}

func (l Lookup) Len() int {
	return len(l.codes)
}

func (l Lookup) Codes() []string {
	out := make([]string, 0, len(l.codes))
	for code := range l.codes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Map returns a copy of the code-to-label mapping.
func (l Lookup) Map() map[string]string {
	out := make(map[string]string, len(l.codes))
	for k, v := range l.codes {
		out[k] = v
	}
	return out
}

// ReadCSV reads the register code list layout with "Diagnoses" and
// "ICD10-codes" columns, codes separated by ';'.
func ReadCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("code list empty")
		}
		return nil, err
	}
	labelIdx, codesIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case csvLabelColumn:
			labelIdx = i
		case csvCodesColumn:
			codesIdx = i
		}
	}
	if labelIdx < 0 || codesIdx < 0 {
		return nil, fmt.Errorf("code list requires %q and %q columns", csvLabelColumn, csvCodesColumn)
	}

	var entries []Entry
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if labelIdx >= len(record) || codesIdx >= len(record) {
			continue
		}
		entries = append(entries, Entry{
			Label: strings.TrimSpace(record[labelIdx]),
			Codes: SplitCodes(record[codesIdx]),
		})
	}
	return entries, nil
}

func ReadYAML(r io.Reader) ([]Entry, error) {
	var file codeFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("code list empty")
		}
		return nil, err
	}
	return file.Entries, nil
}

// LoadFile picks the reader from the file extension.
func LoadFile(path string) (Lookup, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Lookup{}, err
	}
	defer f.Close()

	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err = ReadYAML(f)
	case ".csv":
		entries, err = ReadCSV(f)
	default:
		return Lookup{}, fmt.Errorf("unsupported code list format %q", filepath.Ext(path))
	}
	if err != nil {
		return Lookup{}, fmt.Errorf("load code list %s: %w", path, err)
	}
	return Expand(entries), nil
}
