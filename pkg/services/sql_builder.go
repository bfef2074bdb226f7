package services

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/apperrors"
	"github.com/tablemesh/tablemesh-engine/pkg/metadata"
	"github.com/tablemesh/tablemesh-engine/pkg/models"
	sqlx "github.com/tablemesh/tablemesh-engine/pkg/sql"
)

// ResolvedDimension is a group-by dimension resolved to a SQL expression.
type ResolvedDimension struct {
	Name       string
	Expression string
	Alias      string
	Kind       string // "physical" or "computed"
}

// DimensionResolver maps a dimension name to a SQL expression over the joined
// tables. The snapshot-backed default resolves physical columns; callers can
// plug in semantic-layer resolvers.
type DimensionResolver interface {
	ResolveDimension(name string, tables []string) (*ResolvedDimension, bool)
}

// JoinTypeResolver decides INNER vs LEFT for each join.
type JoinTypeResolver interface {
	JoinType(joinTable string, intent *models.QueryIntent) string
}

// snapshotDimensionResolver resolves a qualified dimension against the table
// it names, and a bare column name to the first joined table carrying it.
type snapshotDimensionResolver struct {
	snapshot *metadata.Snapshot
}

// NewSnapshotDimensionResolver returns the default, snapshot-backed resolver.
func NewSnapshotDimensionResolver(snapshot *metadata.Snapshot) DimensionResolver {
	return &snapshotDimensionResolver{snapshot: snapshot}
}

func (r *snapshotDimensionResolver) ResolveDimension(name string, tables []string) (*ResolvedDimension, bool) {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		// The qualifier pins the owning table. Scanning other tables for the
		// column would silently change the dimension's grain whenever another
		// joined table happens to share the column name.
		owner, column := name[:idx], name[idx+1:]
		t, ok := r.snapshot.Table(owner)
		if !ok || !t.HasColumn(column) {
			return nil, false
		}
		return &ResolvedDimension{
			Name:       name,
			Expression: fmt.Sprintf("%s.%s", t.Name, column),
			Alias:      column,
			Kind:       "physical",
		}, true
	}

	for _, table := range tables {
		t, ok := r.snapshot.Table(table)
		if !ok || !t.HasColumn(name) {
			continue
		}
		return &ResolvedDimension{
			Name:       name,
			Expression: fmt.Sprintf("%s.%s", t.Name, name),
			Alias:      name,
			Kind:       "physical",
		}, true
	}
	return nil, false
}

// filterJoinTypeResolver emits INNER when the intent filters on the joined
// table (the filter would void LEFT's row preservation anyway) and LEFT
// otherwise, so optional dimensions never shrink the result set.
type filterJoinTypeResolver struct{}

// NewFilterJoinTypeResolver returns the default join-type policy.
func NewFilterJoinTypeResolver() JoinTypeResolver {
	return filterJoinTypeResolver{}
}

func (filterJoinTypeResolver) JoinType(joinTable string, intent *models.QueryIntent) string {
	var filtered func(filters []models.FilterSpec) bool
	filtered = func(filters []models.FilterSpec) bool {
		for _, f := range filters {
			if metadata.NamesMatch(f.Table, joinTable) {
				return true
			}
			if filtered(f.Or) {
				return true
			}
		}
		return false
	}
	if filtered(intent.Filters) {
		return "INNER JOIN"
	}
	return "LEFT JOIN"
}

// BuildResult is the outcome of SQL generation.
type BuildResult struct {
	SQL          string
	JoinTypes    map[string]string // table -> join type used
	DroppedJoins []string          // tables whose joins were dropped as unrenderable
}

// SQLBuilder renders a fixed, validated intent into a single SQL statement.
// The builder assumes the fixer ran first: it never repairs, only renders,
// and the one thing it refuses outright is a filter value that fails the
// injection screen.
type SQLBuilder struct {
	snapshot   *metadata.Snapshot
	dimensions DimensionResolver
	joinTypes  JoinTypeResolver
	logger     *zap.Logger
}

// NewSQLBuilder creates a builder. Nil resolvers fall back to the defaults.
func NewSQLBuilder(snapshot *metadata.Snapshot, dimensions DimensionResolver, joinTypes JoinTypeResolver, logger *zap.Logger) *SQLBuilder {
	if dimensions == nil {
		dimensions = NewSnapshotDimensionResolver(snapshot)
	}
	if joinTypes == nil {
		joinTypes = NewFilterJoinTypeResolver()
	}
	return &SQLBuilder{
		snapshot:   snapshot,
		dimensions: dimensions,
		joinTypes:  joinTypes,
		logger:     logger.Named("sql-builder"),
	}
}

var aggregatePattern = regexp.MustCompile(`(?i)^\s*(?:SUM|COUNT|AVG|MIN|MAX)\s*\(`)

// Build renders the intent. Positional aliases t1..tn are assigned in join
// order (t1 is always the base table); every qualified reference in the intent
// is rewritten to its alias so the emitted SQL is self-consistent.
func (b *SQLBuilder) Build(intent *models.QueryIntent) (*BuildResult, error) {
	if intent.BaseTable == "" {
		return nil, apperrors.ErrMissingBaseTable
	}

	aliases := b.assignAliases(intent)
	result := &BuildResult{JoinTypes: make(map[string]string)}

	fromClause, err := b.buildFrom(intent, aliases, result)
	if err != nil {
		return nil, err
	}

	var selectClause, groupClause, orderClause string
	if intent.QueryType == models.QueryTypeMetric && intent.Metric != nil {
		selectClause, groupClause = b.buildMetricSelect(intent, aliases)
	} else {
		selectClause = b.buildRelationalSelect(intent, aliases)
	}

	whereClause, err := b.buildWhere(intent.Filters, aliases)
	if err != nil {
		return nil, err
	}

	if len(intent.OrderBy) > 0 {
		parts := make([]string, len(intent.OrderBy))
		for i, expr := range intent.OrderBy {
			parts[i] = b.rewriteRefs(expr, aliases)
		}
		orderClause = "ORDER BY " + strings.Join(parts, ", ")
	}

	var sb strings.Builder
	sb.WriteString(selectClause)
	sb.WriteString("\n")
	sb.WriteString(fromClause)
	for _, clause := range []string{whereClause, groupClause, orderClause} {
		if clause != "" {
			sb.WriteString("\n")
			sb.WriteString(clause)
		}
	}

	result.SQL = sb.String()
	return result, nil
}

// assignAliases maps normalized table names to positional aliases.
func (b *SQLBuilder) assignAliases(intent *models.QueryIntent) map[string]string {
	aliases := map[string]string{metadata.NormalizeName(intent.BaseTable): "t1"}
	for i, j := range intent.Joins {
		aliases[metadata.NormalizeName(j.Table)] = fmt.Sprintf("t%d", i+2)
	}
	return aliases
}

// rewriteRefs replaces every qualified table.column reference with its
// positional alias. Unqualified references and references to tables outside
// the intent pass through untouched.
func (b *SQLBuilder) rewriteRefs(expr string, aliases map[string]string) string {
	return anyQualifiedRefPattern.ReplaceAllStringFunc(expr, func(ref string) string {
		m := anyQualifiedRefPattern.FindStringSubmatch(ref)
		table, column := m[1], m[2]
		if alias, ok := b.lookupAlias(table, aliases); ok {
			return alias + "." + column
		}
		return ref
	})
}

var anyQualifiedRefPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*\.\s*([A-Za-z_][A-Za-z0-9_]*)`)

// lookupAlias finds the alias for a table reference, tolerating singular and
// plural spellings of the same table.
func (b *SQLBuilder) lookupAlias(table string, aliases map[string]string) (string, bool) {
	if alias, ok := aliases[metadata.NormalizeName(table)]; ok {
		return alias, true
	}
	for name, alias := range aliases {
		if metadata.NamesMatch(name, table) {
			return alias, true
		}
	}
	return "", false
}

// buildFrom renders the FROM clause with one JOIN line per intent join. A join
// whose ON-clause is empty, or degenerates to no comparison after alias
// rewriting, cannot be rendered as valid SQL; it is dropped and recorded.
func (b *SQLBuilder) buildFrom(intent *models.QueryIntent, aliases map[string]string, result *BuildResult) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FROM %s t1", b.snapshot.CanonicalName(intent.BaseTable))

	for i, join := range intent.Joins {
		on := strings.TrimSpace(b.rewriteRefs(join.On, aliases))
		if on == "" || !strings.Contains(on, "=") {
			b.logger.Warn("Dropping unrenderable join",
				zap.String("table", join.Table), zap.String("on", join.On))
			result.DroppedJoins = append(result.DroppedJoins, join.Table)
			continue
		}

		joinType := b.joinTypes.JoinType(join.Table, intent)
		result.JoinTypes[join.Table] = joinType
		fmt.Fprintf(&sb, "\n%s %s t%d ON %s", joinType, b.snapshot.CanonicalName(join.Table), i+2, on)
	}
	return sb.String(), nil
}

// buildMetricSelect renders the SELECT and GROUP BY of a metric query. Every
// group-by dimension is resolved to an expression; the GROUP BY clause reuses
// the exact same expression text as the SELECT list so the two can never
// drift apart. The metric expression is wrapped in SUM unless it already is
// an aggregate.
func (b *SQLBuilder) buildMetricSelect(intent *models.QueryIntent, aliases map[string]string) (string, string) {
	tables := append([]string{intent.BaseTable}, intent.JoinTables()...)

	var selects, groups []string
	for _, name := range intent.GroupBy {
		dim := b.resolveDimension(intent, name, tables)
		expr := b.rewriteRefs(dim.Expression, aliases)
		selects = append(selects, fmt.Sprintf("%s AS %s", expr, dim.Alias))
		groups = append(groups, expr)
	}

	metricExpr := b.rewriteRefs(intent.Metric.SQLExpression, aliases)
	if !aggregatePattern.MatchString(metricExpr) {
		metricExpr = fmt.Sprintf("SUM(%s)", metricExpr)
	}
	metricAlias := intent.Metric.Name
	if metricAlias == "" {
		metricAlias = "metric"
	}
	selects = append(selects, fmt.Sprintf("%s AS %s", metricExpr, metricAlias))

	selectClause := "SELECT " + strings.Join(selects, ", ")
	groupClause := ""
	if len(groups) > 0 {
		groupClause = "GROUP BY " + strings.Join(groups, ", ")
	}
	return selectClause, groupClause
}

// resolveDimension resolves a group-by name: intent-level computed dimensions
// win, then the dimension resolver; a name nothing resolves is rendered as
// written so the database reports the real problem instead of the engine
// guessing.
func (b *SQLBuilder) resolveDimension(intent *models.QueryIntent, name string, tables []string) *ResolvedDimension {
	for _, cd := range intent.ComputedDimensions {
		if strings.EqualFold(cd.Name, name) {
			return &ResolvedDimension{
				Name:       name,
				Expression: cd.SQLExpression,
				Alias:      cd.Name,
				Kind:       "computed",
			}
		}
	}
	if dim, ok := b.dimensions.ResolveDimension(name, tables); ok {
		return dim
	}

	b.logger.Debug("Unresolvable group-by dimension rendered verbatim", zap.String("name", name))
	alias := name
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		alias = name[idx+1:]
	}
	return &ResolvedDimension{Name: name, Expression: name, Alias: alias, Kind: "physical"}
}

// buildRelationalSelect renders the SELECT list of a row-level query. Bare
// column names are qualified by the first intent table that owns them.
func (b *SQLBuilder) buildRelationalSelect(intent *models.QueryIntent, aliases map[string]string) string {
	if len(intent.Columns) == 0 {
		return "SELECT t1.*"
	}

	tables := append([]string{intent.BaseTable}, intent.JoinTables()...)
	parts := make([]string, 0, len(intent.Columns))
	for _, col := range intent.Columns {
		if strings.Contains(col, ".") || strings.Contains(col, "(") {
			parts = append(parts, b.rewriteRefs(col, aliases))
			continue
		}
		parts = append(parts, b.qualifyColumn(col, tables, aliases))
	}
	return "SELECT " + strings.Join(parts, ", ")
}

// qualifyColumn prefixes a bare column with the alias of the first table that
// owns it, defaulting to the base table.
func (b *SQLBuilder) qualifyColumn(col string, tables []string, aliases map[string]string) string {
	for _, table := range tables {
		if t, ok := b.snapshot.Table(table); ok && t.HasColumn(col) {
			if alias, ok := b.lookupAlias(t.Name, aliases); ok {
				return alias + "." + col
			}
		}
	}
	return "t1." + col
}

// buildWhere renders the WHERE clause. Conditions are ANDed; an Or group
// renders as one parenthesized OR chain. String values are screened for SQL
// injection before quoting and a hit aborts the whole build.
func (b *SQLBuilder) buildWhere(filters []models.FilterSpec, aliases map[string]string) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	conditions, err := b.renderFilters(filters, aliases)
	if err != nil {
		return "", err
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), nil
}

func (b *SQLBuilder) renderFilters(filters []models.FilterSpec, aliases map[string]string) ([]string, error) {
	var conditions []string
	for _, f := range filters {
		if len(f.Or) > 0 {
			parts, err := b.renderFilters(f.Or, aliases)
			if err != nil {
				return nil, err
			}
			if len(parts) > 0 {
				conditions = append(conditions, "("+strings.Join(parts, " OR ")+")")
			}
			continue
		}

		cond, err := b.renderFilter(f, aliases)
		if err != nil {
			return nil, err
		}
		if cond != "" {
			conditions = append(conditions, cond)
		}
	}
	return conditions, nil
}

// renderFilter renders one predicate.
func (b *SQLBuilder) renderFilter(f models.FilterSpec, aliases map[string]string) (string, error) {
	target := b.filterTarget(f, aliases)
	if target == "" {
		return "", nil
	}

	operator := strings.ToUpper(strings.TrimSpace(f.Operator))
	if operator == "" {
		operator = "="
	}

	switch operator {
	case "IS NULL", "IS NOT NULL":
		return fmt.Sprintf("%s %s", target, operator), nil
	case "IN", "NOT IN":
		values := f.Values
		if len(values) == 0 && f.Value != nil {
			values = []any{f.Value}
		}
		rendered := make([]string, 0, len(values))
		for _, v := range values {
			lit, err := b.renderValue(f, v)
			if err != nil {
				return "", err
			}
			rendered = append(rendered, lit)
		}
		if len(rendered) == 0 {
			return "", nil
		}
		return fmt.Sprintf("%s %s (%s)", target, operator, strings.Join(rendered, ", ")), nil
	default:
		lit, err := b.renderValue(f, f.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", target, operator, lit), nil
	}
}

// filterTarget renders the left-hand side of a predicate: the (possibly
// COALESCEd) column reference wrapped by the filter's function chain, e.g.
// Function "LOWER(TRIM)" yields LOWER(TRIM(col)).
func (b *SQLBuilder) filterTarget(f models.FilterSpec, aliases map[string]string) string {
	qualify := func(col string) string {
		if strings.Contains(col, ".") {
			return b.rewriteRefs(col, aliases)
		}
		if f.Table != "" {
			if alias, ok := b.lookupAlias(f.Table, aliases); ok {
				return alias + "." + col
			}
			return f.Table + "." + col
		}
		return "t1." + col
	}

	var target string
	switch {
	case len(f.Columns) > 0:
		cols := make([]string, len(f.Columns))
		for i, c := range f.Columns {
			cols[i] = qualify(c)
		}
		target = "COALESCE(" + strings.Join(cols, ", ") + ")"
	case f.Column != "":
		target = qualify(f.Column)
	default:
		return ""
	}

	if f.Function != "" {
		chain := strings.Split(f.Function, "(")
		// Innermost function is last in the chain text, so apply right-to-left.
		for i := len(chain) - 1; i >= 0; i-- {
			fn := strings.TrimSpace(strings.TrimSuffix(chain[i], ")"))
			if fn == "" {
				continue
			}
			target = strings.ToUpper(fn) + "(" + target + ")"
		}
	}
	return target
}

// renderValue renders a literal. Strings are injection-screened and quoted
// with doubled single quotes; numbers and booleans render bare.
func (b *SQLBuilder) renderValue(f models.FilterSpec, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "NULL", nil
	case string:
		if check := sqlx.CheckFilterValue(f.Column, v); check != nil {
			return "", fmt.Errorf("filter value for %q (fingerprint %s): %w",
				f.Column, check.Fingerprint, apperrors.ErrUnsafeFilterValue)
		}
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case float64:
		// JSON numbers arrive as float64; render integers without a decimal.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v)), nil
		}
		return fmt.Sprintf("%v", v), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}
