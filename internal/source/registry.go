package source

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed stations.yaml
var defaultStations []byte

type Station struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

// Registry is the static set of station keys the adapter will fetch. It is
// immutable once loaded.
type Registry struct {
	stations map[string]Station
}

func DefaultRegistry() *Registry {
	r, err := ParseRegistry(bytes.NewReader(defaultStations))
	if err != nil {
		panic(fmt.Sprintf("source: embedded station registry: %v", err))
	}
	return r
}

// LoadRegistry reads the registry from path, or returns the embedded one when
// path is empty.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open station registry: %w", err)
	}
	defer f.Close()
	r, err := ParseRegistry(f)
	if err != nil {
		return nil, fmt.Errorf("station registry %s: %w", path, err)
	}
	return r, nil
}

func ParseRegistry(in io.Reader) (*Registry, error) {
	var doc struct {
		Stations []Station `yaml:"stations"`
	}
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(doc.Stations) == 0 {
		return nil, errors.New("no stations")
	}
	r := &Registry{stations: make(map[string]Station, len(doc.Stations))}
	for i, st := range doc.Stations {
		st.Key = strings.TrimSpace(st.Key)
		st.Name = strings.TrimSpace(st.Name)
		if !validKey(st.Key) {
			return nil, fmt.Errorf("stations[%d]: invalid key %q (expected digits)", i, st.Key)
		}
		if _, dup := r.stations[st.Key]; dup {
			return nil, fmt.Errorf("stations[%d]: duplicate key %q", i, st.Key)
		}
		r.stations[st.Key] = st
	}
	return r, nil
}

func (r *Registry) Lookup(key string) (Station, bool) {
	st, ok := r.stations[key]
	return st, ok
}

// Keys returns every registered key in ascending order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.stations))
	for k := range r.stations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validKey(key string) bool {
	if key == "" || len(key) > 10 {
		return false
	}
	for _, c := range key {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
