// Package sysfs reads the kernel attribute files the sensor and GPU
// backends rely on. Every function takes absolute paths so callers can point
// it at a synthetic tree in tests.
package sysfs

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ReadString reads a single-line attribute and returns its trimmed content
func ReadString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

// ReadFloat reads a numeric attribute
func ReadFloat(path string) (float64, error) {
	value, err := ReadString(path)
	if err != nil {
		return 0, err
	}

	return strconv.ParseFloat(value, 64)
}

// ReadHex reads an attribute such as a PCI vendor ID ("0x1002")
func ReadHex(path string) (uint64, error) {
	value, err := ReadString(path)
	if err != nil {
		return 0, err
	}

	return strconv.ParseUint(strings.TrimPrefix(strings.ToLower(value), "0x"), 16, 32)
}

// IndexedEntries returns the entries of dir named prefix<N>, ordered by N.
// Names with anything other than digits after the prefix are skipped.
func IndexedEntries(dir, prefix string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	type indexed struct {
		name  string
		index int
	}

	var found []indexed
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		index, err := strconv.Atoi(name[len(prefix):])
		if err != nil || index < 0 {
			continue
		}
		found = append(found, indexed{name: name, index: index})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })

	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.name
	}

	return names
}

// Hwmon is one hardware monitoring directory
type Hwmon struct {
	Dir  string
	Name string
}

// Hwmons lists the hwmon<N> directories below dir. dir is either
// <sys>/class/hwmon or a device's hwmon directory.
func Hwmons(dir string) []Hwmon {
	var hwmons []Hwmon
	for _, entry := range IndexedEntries(dir, "hwmon") {
		path := filepath.Join(dir, entry)
		name, _ := ReadString(filepath.Join(path, "name"))
		hwmons = append(hwmons, Hwmon{Dir: path, Name: name})
	}

	return hwmons
}

// TempInput is one temp<N>_input attribute with its optional label
type TempInput struct {
	Index int
	Label string
	Path  string
}

// Temperatures lists temp<N>_input attributes ordered by N
func (h Hwmon) Temperatures() []TempInput {
	matches, _ := filepath.Glob(filepath.Join(h.Dir, "temp*_input"))

	var inputs []TempInput
	for _, match := range matches {
		base := filepath.Base(match)
		index, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, "temp"), "_input"))
		if err != nil {
			continue
		}
		label, _ := ReadString(filepath.Join(h.Dir, "temp"+strconv.Itoa(index)+"_label"))
		inputs = append(inputs, TempInput{Index: index, Label: label, Path: match})
	}

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Index < inputs[j].Index })

	return inputs
}

// Temperature returns a reading in °C. It prefers an input whose label
// contains one of labels (case-insensitive), then temp1, then the first
// readable input.
func (h Hwmon) Temperature(labels ...string) (float64, bool) {
	inputs := h.Temperatures()

	for _, want := range labels {
		for _, in := range inputs {
			if strings.Contains(strings.ToLower(in.Label), want) {
				if v, ok := readMilli(in.Path); ok {
					return v, true
				}
			}
		}
	}

	for _, in := range inputs {
		if in.Index == 1 {
			if v, ok := readMilli(in.Path); ok {
				return v, true
			}
		}
	}

	for _, in := range inputs {
		if v, ok := readMilli(in.Path); ok {
			return v, true
		}
	}

	return 0, false
}

// HasInput reports whether the attribute file exists
func (h Hwmon) HasInput(name string) bool {
	_, err := os.Stat(filepath.Join(h.Dir, name))
	return err == nil
}

func readMilli(path string) (float64, bool) {
	v, err := ReadFloat(path)
	if err != nil {
		return 0, false
	}

	return v / 1000, true
}
