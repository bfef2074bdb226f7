package services

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/metadata"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
)

// joinKeyPriority is the ordered list of common key names used to infer an
// ON-expression when an edge declares none.
var joinKeyPriority = []string{"order_id", "loan_id", "customer_id", "id", "uuid"}

// RelationshipGraph is the adjacency structure the path finder searches. Table
// names are interned to integer IDs and edges live in an index-based adjacency
// list, so the hot path never hashes strings. Construction is a pure function
// of the metadata snapshot; the only permitted mutation afterwards is
// appending learner-supplied edges.
type RelationshipGraph struct {
	mu         sync.RWMutex
	tableIDs   map[string]int // normalized name -> id
	tableNames []string       // id -> declared name
	adjacency  [][]int        // id -> edge indexes, in construction order
	edges      []models.RelationshipEdge

	logger *zap.Logger
}

// BuildRelationshipGraph builds the graph from a metadata snapshot plus any
// pre-existing learned joins. Edges naming a table absent from the snapshot
// are silently skipped; missing-table detection belongs to the validator.
func BuildRelationshipGraph(snap *metadata.Snapshot, learned []*models.LearnedJoin, logger *zap.Logger) *RelationshipGraph {
	g := &RelationshipGraph{
		tableIDs: make(map[string]int, len(snap.Tables)),
		logger:   logger.Named("relationship-graph"),
	}

	for i := range snap.Tables {
		g.internTable(snap.Tables[i].Name)
	}

	for _, path := range snap.DimensionPaths {
		for _, seg := range path.Segments {
			g.addDeclaredEdge(snap, seg.From, seg.To, seg.On, seg.RelationshipType, models.EdgeOriginMetadata)
		}
	}
	for _, edge := range snap.LineageEdges {
		g.addDeclaredEdge(snap, edge.FromTable, edge.ToTable, edge.On, "", models.EdgeOriginLineage)
	}
	for _, lj := range learned {
		g.AppendLearnedEdge(lj)
	}

	g.logger.Debug("Built relationship graph",
		zap.Int("tables", len(g.tableNames)),
		zap.Int("edges", len(g.edges)))
	return g
}

func (g *RelationshipGraph) internTable(name string) int {
	key := metadata.NormalizeName(name)
	if id, ok := g.tableIDs[key]; ok {
		return id
	}
	id := len(g.tableNames)
	g.tableIDs[key] = id
	g.tableNames = append(g.tableNames, name)
	g.adjacency = append(g.adjacency, nil)
	return id
}

func (g *RelationshipGraph) tableID(name string) (int, bool) {
	id, ok := g.tableIDs[metadata.NormalizeName(name)]
	return id, ok
}

// addDeclaredEdge adds a snapshot-declared edge in both directions. The
// relationship type is taken from the declaration when present, otherwise
// inferred from the table descriptors.
func (g *RelationshipGraph) addDeclaredEdge(snap *metadata.Snapshot, from, to, on, relationshipType, origin string) {
	fromDesc, fromOK := snap.Table(from)
	toDesc, toOK := snap.Table(to)
	if !fromOK || !toOK {
		g.logger.Debug("Skipping edge naming unknown table",
			zap.String("from", from), zap.String("to", to))
		return
	}

	if relationshipType == "" {
		relationshipType = inferRelationshipType(fromDesc, toDesc)
	}
	if on == "" {
		on = inferOnExpression(fromDesc, toDesc)
	}

	g.appendEdgePair(fromDesc.Name, toDesc.Name, on, relationshipType, origin, 0)
}

// AppendLearnedEdge folds a learner-supplied join into the graph. Learned
// edges are append-only and carry a fixed low weight so they are always
// preferred over freshly inferred paths. Joins naming unknown tables are
// ignored with a warning.
func (g *RelationshipGraph) AppendLearnedEdge(lj *models.LearnedJoin) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.tableID(lj.TableA); !ok {
		g.logger.Warn("Learned join names unknown table", zap.String("table", lj.TableA))
		return
	}
	if _, ok := g.tableID(lj.TableB); !ok {
		g.logger.Warn("Learned join names unknown table", zap.String("table", lj.TableB))
		return
	}

	g.appendEdgePair(lj.TableA, lj.TableB, lj.On, lj.RelationshipType(lj.TableA),
		models.EdgeOriginLearned, models.LearnedEdgeWeight)
}

// appendEdgePair appends the forward and reverse edges for a relationship.
// fixedWeight overrides the type-derived weight when non-zero (learned edges).
func (g *RelationshipGraph) appendEdgePair(from, to, on, relationshipType, origin string, fixedWeight float64) {
	fromID, _ := g.tableID(from)
	toID, _ := g.tableID(to)

	forward := models.RelationshipEdge{
		FromTable:        from,
		ToTable:          to,
		On:               on,
		RelationshipType: relationshipType,
		CardinalitySafe:  models.IsCardinalitySafe(relationshipType),
		Weight:           models.RelationshipWeight(relationshipType),
		Origin:           origin,
	}
	reverseType := models.ReverseRelationship(relationshipType)
	reverse := models.RelationshipEdge{
		FromTable:        to,
		ToTable:          from,
		On:               on,
		RelationshipType: reverseType,
		CardinalitySafe:  models.IsCardinalitySafe(reverseType),
		Weight:           models.RelationshipWeight(reverseType),
		Origin:           origin,
	}
	if fixedWeight > 0 {
		forward.Weight = fixedWeight
		reverse.Weight = fixedWeight
	}

	g.adjacency[fromID] = append(g.adjacency[fromID], len(g.edges))
	g.edges = append(g.edges, forward)
	g.adjacency[toID] = append(g.adjacency[toID], len(g.edges))
	g.edges = append(g.edges, reverse)
}

// EdgesFrom returns the outgoing edges of a table in construction order.
// The returned slice is a copy; callers may not mutate graph state through it.
func (g *RelationshipGraph) EdgesFrom(table string) []models.RelationshipEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.tableID(table)
	if !ok {
		return nil
	}
	edges := make([]models.RelationshipEdge, 0, len(g.adjacency[id]))
	for _, edgeIdx := range g.adjacency[id] {
		edges = append(edges, g.edges[edgeIdx])
	}
	return edges
}

// HasTable reports whether the graph interned the table.
func (g *RelationshipGraph) HasTable(table string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.tableID(table)
	return ok
}

// TableCount returns the number of interned tables. Path search recursion is
// bounded by this count via the visited set.
func (g *RelationshipGraph) TableCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tableNames)
}

// EdgeCount returns the number of directed edges.
func (g *RelationshipGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// ConnectedComponent is a group of tables connected by relationship edges.
type ConnectedComponent struct {
	Tables []string
	Size   int
}

// Connectivity identifies the connected components of the graph using DFS.
// Returns components sorted by size (largest first) and the island tables
// that have no relationships at all.
func (g *RelationshipGraph) Connectivity() ([]ConnectedComponent, []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make([]bool, len(g.tableNames))
	var components []ConnectedComponent
	var islands []string

	for id := range g.tableNames {
		if visited[id] {
			continue
		}
		component := g.dfs(id, visited)
		if len(component) == 1 {
			islands = append(islands, component[0])
			continue
		}
		components = append(components, ConnectedComponent{
			Tables: component,
			Size:   len(component),
		})
	}

	// Sort components by size (largest first); few components expected
	for i := 0; i < len(components); i++ {
		for j := i + 1; j < len(components); j++ {
			if components[j].Size > components[i].Size {
				components[i], components[j] = components[j], components[i]
			}
		}
	}

	return components, islands
}

func (g *RelationshipGraph) dfs(start int, visited []bool) []string {
	var component []string
	stack := []int{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}
		visited[current] = true
		component = append(component, g.tableNames[current])

		for _, edgeIdx := range g.adjacency[current] {
			toID, ok := g.tableID(g.edges[edgeIdx].ToTable)
			if ok && !visited[toID] {
				stack = append(stack, toID)
			}
		}
	}
	return component
}

// inferRelationshipType classifies an edge before weighting. Dimension-like
// tables with a single-column primary key bias toward many_to_one (into the
// dimension) or one_to_many (out of it); composite-primary-key tables default
// to many_to_many.
func inferRelationshipType(from, to *models.TableDescriptor) string {
	if from.HasCompositePK() || to.HasCompositePK() {
		return models.RelationshipManyToMany
	}
	if isDimensionLike(to) && to.HasSingleColumnPK() {
		return models.RelationshipManyToOne
	}
	if isDimensionLike(from) && from.HasSingleColumnPK() {
		return models.RelationshipOneToMany
	}
	return models.RelationshipManyToOne
}

// isDimensionLike reports whether a table should anchor dimension-biased
// heuristics: either explicitly tagged, or carrying a reference-style name.
func isDimensionLike(t *models.TableDescriptor) bool {
	if t.IsDimension() {
		return true
	}
	name := strings.ToLower(t.Name)
	if strings.HasPrefix(name, "dim_") {
		return true
	}
	for _, suffix := range []string{"_master", "_dim", "_type", "_status", "_lookup"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// inferOnExpression derives an ON-expression by intersecting both tables'
// column sets against the priority key list, falling back to id = id.
func inferOnExpression(from, to *models.TableDescriptor) string {
	for _, key := range joinKeyPriority {
		if from.HasColumn(key) && to.HasColumn(key) {
			return fmt.Sprintf("%s.%s = %s.%s", from.Name, key, to.Name, key)
		}
	}
	return fmt.Sprintf("%s.id = %s.id", from.Name, to.Name)
}
