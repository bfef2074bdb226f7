package metadata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tablemesh/tablemesh-engine/pkg/models"
)

// JoinPathSegment is one hop of a declared dimension join-path.
type JoinPathSegment struct {
	From             string `json:"from" yaml:"from"`
	To               string `json:"to" yaml:"to"`
	On               string `json:"on,omitempty" yaml:"on,omitempty"`
	RelationshipType string `json:"relationship_type,omitempty" yaml:"relationship_type,omitempty"`
}

// DimensionPath is a named join-path declared for a dimension, e.g. the hops
// needed to reach a customer dimension from a fact table.
type DimensionPath struct {
	Name     string            `json:"name" yaml:"name"`
	Segments []JoinPathSegment `json:"segments" yaml:"segments"`
}

// LineageEdge is a table-to-table edge recovered from lineage analysis.
type LineageEdge struct {
	FromTable string `json:"from_table" yaml:"from_table"`
	ToTable   string `json:"to_table" yaml:"to_table"`
	On        string `json:"on,omitempty" yaml:"on,omitempty"`
}

// Snapshot is the metadata a resolver instance is built from: table
// descriptors, declared dimension join-paths, and lineage edges. A snapshot is
// immutable once loaded; graph construction is a pure function of it.
type Snapshot struct {
	Tables         []models.TableDescriptor `json:"tables" yaml:"tables"`
	DimensionPaths []DimensionPath          `json:"dimension_paths,omitempty" yaml:"dimension_paths,omitempty"`
	LineageEdges   []LineageEdge            `json:"lineage_edges,omitempty" yaml:"lineage_edges,omitempty"`

	byName map[string]*models.TableDescriptor
}

// LoadSnapshot reads a metadata snapshot from a YAML file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata snapshot: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse metadata snapshot: %w", err)
	}
	snap.buildIndex()
	return &snap, nil
}

// NewSnapshot builds a snapshot from already-materialized descriptors.
func NewSnapshot(tables []models.TableDescriptor, paths []DimensionPath, lineage []LineageEdge) *Snapshot {
	snap := &Snapshot{
		Tables:         tables,
		DimensionPaths: paths,
		LineageEdges:   lineage,
	}
	snap.buildIndex()
	return snap
}

func (s *Snapshot) buildIndex() {
	s.byName = make(map[string]*models.TableDescriptor, len(s.Tables))
	for i := range s.Tables {
		s.byName[NormalizeName(s.Tables[i].Name)] = &s.Tables[i]
	}
}

// Table looks up a table descriptor by name. Lookup is tolerant: it tries the
// normalized name first, then a singular/plural match.
func (s *Snapshot) Table(name string) (*models.TableDescriptor, bool) {
	if s.byName == nil {
		s.buildIndex()
	}
	if t, ok := s.byName[NormalizeName(name)]; ok {
		return t, true
	}
	for i := range s.Tables {
		if NamesMatch(s.Tables[i].Name, name) {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// CanonicalName resolves a table reference to the snapshot's declared table
// name, or returns the reference unchanged when unknown.
func (s *Snapshot) CanonicalName(name string) string {
	if t, ok := s.Table(name); ok {
		return t.Name
	}
	return name
}

// HasTable reports whether the snapshot declares the table.
func (s *Snapshot) HasTable(name string) bool {
	_, ok := s.Table(name)
	return ok
}

// TableNames returns all declared table names in snapshot order.
func (s *Snapshot) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i := range s.Tables {
		names[i] = s.Tables[i].Name
	}
	return names
}
