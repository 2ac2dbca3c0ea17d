// Package query implements NL→SQL synthesis, chart rendering, and insights
// generation against a catalog dataset (C10, spec.md §4.10).
package query

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/deckgen/deckgen/data/catalog"
	"github.com/deckgen/deckgen/internal/telemetry"
	"github.com/deckgen/deckgen/internal/toolerr"
)

// Input is the data.query tool's params (spec.md §4.10, §6).
type Input struct {
	DatasetID string `json:"dataset_id"`
	Question  string `json:"question"`
	Sheet     string `json:"sheet,omitempty"`
	LimitRows int    `json:"limit_rows,omitempty"`
}

// ParamsSchema is the data.query JSON Schema, registered with
// jsonrpc.RegisterWithSchema so unknown params are rejected (spec.md §4.1
// "forbid-extra").
const ParamsSchema = `{
	"type": "object",
	"properties": {
		"dataset_id": {"type": "string"},
		"question": {"type": "string"},
		"sheet": {"type": "string"},
		"limit_rows": {"type": "integer"}
	},
	"required": ["dataset_id", "question"],
	"additionalProperties": false
}`

// Result is the data.query tool's output (spec.md §4.10, §6).
type Result struct {
	ChartPNGPath string   `json:"chart_png_path,omitempty"`
	TableMD      string   `json:"table_md"`
	Insights     []string `json:"insights"`
	SQL          string   `json:"sql"`
}

const (
	defaultLimitRows = 100_000
	maxLimitRows     = 100_000
	hardLimit        = 5000
)

var sqlGuard = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|REPLACE|MERGE)\b`)
var limitClause = regexp.MustCompile(`(?i)\blimit\b`)
var lineComment = regexp.MustCompile(`(?m)--.*?$`)
var blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)

// InsightsBackend asks an LLM for terse bullets summarizing a query result.
// Optional: Tool falls back to canned insights when nil or on error.
type InsightsBackend interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SQLBackend asks an LLM to synthesize a SELECT statement when no
// pattern matches (spec.md §4.10 step 3). Optional: Tool falls back to a
// heuristic query when nil or on error.
type SQLBackend interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Tool implements data.query.
type Tool struct {
	cat      *catalog.Catalog
	sqlLLM   SQLBackend
	insights InsightsBackend
	outDir   string
	log      telemetry.Logger
	tracer   telemetry.Tracer
}

// Option configures a Tool.
type Option func(*Tool)

func WithSQLBackend(b SQLBackend) Option { return func(t *Tool) { t.sqlLLM = b } }
func WithInsightsBackend(b InsightsBackend) Option { return func(t *Tool) { t.insights = b } }
func WithTelemetry(log telemetry.Logger, tracer telemetry.Tracer) Option {
	return func(t *Tool) {
		if log != nil {
			t.log = log
		}
		if tracer != nil {
			t.tracer = tracer
		}
	}
}

// New constructs a Tool. outDir is the root chart output directory
// (suggested: out/images/charts).
func New(cat *catalog.Catalog, outDir string, opts ...Option) *Tool {
	t := &Tool{
		cat:    cat,
		outDir: outDir,
		log:    telemetry.NewNoopLogger(),
		tracer: telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type column struct {
	Name  string
	Dtype string
}

// Ask runs the full §4.10 algorithm. Failure beyond the load phase never
// propagates: a degraded Result is returned instead (spec.md §4.10 final
// paragraph).
func (t *Tool) Ask(ctx context.Context, in Input) (Result, error) {
	ctx, span := t.tracer.Start(ctx, "query.ask")
	defer span.End()

	limitRows := in.LimitRows
	if limitRows <= 0 {
		limitRows = defaultLimitRows
	}
	if limitRows > maxLimitRows {
		limitRows = maxLimitRows
	}

	table, cols, err := t.loadSchema(in.DatasetID, in.Sheet)
	if err != nil {
		return Result{}, err
	}

	sqlText := t.synthesizeSQL(ctx, in.Question, cols)
	sqlText, err = sanitize(sqlText, limitRows)
	if err != nil {
		t.log.Warn(ctx, "data query rejected unsafe SQL, using fallback", "error", err.Error())
		sqlText = fallbackQuery(cols)
		sqlText, _ = sanitize(sqlText, limitRows)
	}

	rewritten := rewriteTableAlias(sqlText, table)
	db := t.cat.QueryHandle()
	if _, err := db.ExecContext(ctx, "EXPLAIN "+rewritten); err != nil {
		t.log.Warn(ctx, "sql validation failed, falling back", "sql", rewritten, "error", err.Error())
		sqlText = fmt.Sprintf("SELECT * FROM t LIMIT %d", minInt(50, limitRows))
		rewritten = rewriteTableAlias(sqlText, table)
	}

	rows, colNames, err := runQuery(ctx, db, rewritten, limitRows)
	if err != nil {
		return degradedResult(in.Question, err), nil
	}

	chartPath := ""
	if path, err := t.renderChart(in.DatasetID, in.Question, colNames, rows); err != nil {
		t.log.Warn(ctx, "chart render failed", "error", err.Error())
	} else {
		chartPath = path
	}

	return Result{
		ChartPNGPath: chartPath,
		TableMD:      toTableMD(colNames, rows),
		Insights:     t.buildInsights(ctx, in.Question, colNames, rows),
		SQL:          sqlText,
	}, nil
}

func (t *Tool) loadSchema(datasetID, sheet string) (table string, cols []column, err error) {
	ds, ok, err := t.cat.Get(datasetID)
	if err != nil {
		return "", nil, fmt.Errorf("query: load dataset: %w", err)
	}
	if !ok {
		return "", nil, toolerr.New(toolerr.ResourceMissing, fmt.Sprintf("dataset %q not found", datasetID))
	}
	table, err = t.cat.TableFor(datasetID, sheet)
	if err != nil {
		return "", nil, err
	}
	sheetName := sheet
	if sheetName == "" && len(ds.Sheets) > 0 {
		sheetName = ds.Sheets[0].Name
	}
	for _, s := range ds.Sheets {
		if s.Name == sheetName {
			for _, c := range s.Columns {
				cols = append(cols, column{Name: c.Name, Dtype: c.Dtype})
			}
			break
		}
	}
	return table, cols, nil
}

func degradedResult(question string, err error) Result {
	msg := err.Error()
	if len(msg) > 100 {
		msg = msg[:100]
	}
	return Result{
		SQL:     "-- Failed: " + question,
		TableMD: "Error processing query: " + msg,
		Insights: []string{
			"Could not process: " + question,
			"Error: " + msg,
		},
	}
}

// --- NL2SQL synthesis (spec.md §4.10 steps 2-3) ---

var (
	groupByPattern = regexp.MustCompile(`\b(\w+)\s+by\s+(\w+)`)
	topNPattern    = regexp.MustCompile(`\btop\s+(\d+)\s+(\w+)(?:\s+by\s+(\w+))?`)
	sumPattern     = regexp.MustCompile(`\b(?:total|sum)\s+(\w+)`)
	avgPattern     = regexp.MustCompile(`\b(?:average|avg)\s+(\w+)`)
)

func (t *Tool) synthesizeSQL(ctx context.Context, question string, cols []column) string {
	q := strings.ToLower(strings.TrimSpace(question))
	colNames := columnNames(cols)

	// "top N <x> by <col>" is a top-N question ordered by <col>, not a group-by.
	if m := groupByPattern.FindStringSubmatch(q); m != nil && !topNPattern.MatchString(q) {
		return buildGroupByQuery(m[1], m[2], colNames)
	}
	if m := topNPattern.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		target := m[2]
		if m[3] != "" {
			target = m[3]
		}
		return buildTopNQuery(n, target, colNames)
	}
	if m := sumPattern.FindStringSubmatch(q); m != nil {
		return buildSumQuery(m[1], colNames)
	}
	if m := avgPattern.FindStringSubmatch(q); m != nil {
		return buildAvgQuery(m[1], colNames)
	}

	if t.sqlLLM != nil {
		if sqlText, err := t.llmSQL(ctx, question, cols); err == nil {
			return sqlText
		}
	}
	return fallbackQuery(cols)
}

func (t *Tool) llmSQL(ctx context.Context, question string, cols []column) (string, error) {
	var schema strings.Builder
	for _, c := range cols {
		fmt.Fprintf(&schema, "- %s (%s)\n", c.Name, c.Dtype)
	}
	system := "You are a SQL generator for a table t. Return ONLY a SELECT or WITH statement, no DDL/DML, no prose."
	user := fmt.Sprintf("Table t columns:\n%s\nQuestion: %s\nAlways include LIMIT 5000 if not present.", schema.String(), question)
	text, err := t.sqlLLM.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return stripSQLFence(text), nil
}

func stripSQLFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var synonymMap = map[string][]string{
	"sales":     {"total", "revenue", "amount", "sales"},
	"total":     {"total", "amount", "revenue", "sales"},
	"revenue":   {"total", "revenue", "amount", "sales"},
	"company":   {"company", "customer", "client", "name"},
	"companies": {"company", "customer", "client", "name"},
}

func findBestColumnMatch(target string, colNames []string) string {
	targetLower := strings.ToLower(target)

	if preferred, ok := synonymMap[targetLower]; ok {
		for _, p := range preferred {
			for _, col := range colNames {
				if strings.Contains(strings.ToLower(col), strings.ToLower(p)) {
					return col
				}
			}
		}
	}
	for _, col := range colNames {
		if strings.ToLower(col) == targetLower {
			return col
		}
	}
	for _, col := range colNames {
		lc := strings.ToLower(col)
		if strings.Contains(lc, targetLower) || strings.Contains(targetLower, lc) {
			return col
		}
	}
	if len(colNames) > 0 {
		return colNames[0]
	}
	return "id"
}

func buildSumQuery(targetCol string, colNames []string) string {
	target := findBestColumnMatch(targetCol, colNames)
	return fmt.Sprintf("SELECT SUM(%s) as total_%s FROM t", quoteCol(target), sanitizeAlias(target))
}

func buildAvgQuery(targetCol string, colNames []string) string {
	target := findBestColumnMatch(targetCol, colNames)
	return fmt.Sprintf("SELECT AVG(%s) as avg_%s FROM t", quoteCol(target), sanitizeAlias(target))
}

func buildGroupByQuery(measureCol, groupCol string, colNames []string) string {
	measure := findBestColumnMatch(measureCol, colNames)
	group := findBestColumnMatch(groupCol, colNames)
	return fmt.Sprintf("SELECT %s, SUM(%s) as total_%s FROM t GROUP BY %s ORDER BY 2 DESC LIMIT 10",
		quoteCol(group), quoteCol(measure), sanitizeAlias(measure), quoteCol(group))
}

func buildTopNQuery(n int, col string, colNames []string) string {
	target := findBestColumnMatch(col, colNames)
	return fmt.Sprintf("SELECT * FROM t ORDER BY %s DESC LIMIT %d", quoteCol(target), minInt(n, 100))
}

func fallbackQuery(cols []column) string {
	var cat, num string
	for _, c := range cols {
		if !isNumericDtype(c.Dtype) && cat == "" {
			cat = c.Name
		}
		if isNumericDtype(c.Dtype) && num == "" {
			num = c.Name
		}
	}
	if cat != "" && num != "" {
		return fmt.Sprintf("SELECT %s AS category, SUM(%s) AS value FROM t GROUP BY 1 ORDER BY 2 DESC LIMIT 10",
			quoteCol(cat), quoteCol(num))
	}
	return "SELECT * FROM t LIMIT 50"
}

func isNumericDtype(dtype string) bool {
	d := strings.ToLower(dtype)
	return strings.Contains(d, "int") || strings.Contains(d, "float") ||
		strings.Contains(d, "double") || strings.Contains(d, "decimal") || strings.Contains(d, "real")
}

func columnNames(cols []column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func quoteCol(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sanitizeAlias(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, name)
}

// --- Sanitization (spec.md §4.10 step 4, invariant 5) ---

func sanitize(stmt string, limitRows int) (string, error) {
	s := lineComment.ReplaceAllString(stmt, "")
	s = blockComment.ReplaceAllString(s, "")
	if sqlGuard.MatchString(s) {
		return "", fmt.Errorf("query: only SELECT/WITH statements are allowed")
	}
	s = strings.TrimSpace(s)
	if !limitClause.MatchString(s) {
		s = strings.TrimRight(s, "; \t\n") + fmt.Sprintf(" LIMIT %d", minInt(hardLimit, limitRows))
	}
	return s, nil
}

// rewriteTableAlias replaces the synthesized "t" table reference with the
// real backing SQLite table name.
func rewriteTableAlias(stmt, table string) string {
	re := regexp.MustCompile(`(?i)\bFROM\s+t\b`)
	return re.ReplaceAllString(stmt, "FROM "+table)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// --- Execution ---

func runQuery(ctx context.Context, db *sql.DB, stmt string, limitRows int) ([][]any, []string, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, nil, fmt.Errorf("query: execute: %w", err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]any
	for rows.Next() {
		if len(out) >= limitRows {
			break
		}
		vals := make([]any, len(colNames))
		ptrs := make([]any, len(colNames))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		out = append(out, vals)
	}
	return out, colNames, rows.Err()
}

// --- Markdown table ---

func toTableMD(cols []string, rows [][]any) string {
	maxRows, maxCols := 12, 6
	if len(cols) > maxCols {
		cols = cols[:maxCols]
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	sep := make([]string, len(cols))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for i, row := range rows {
		if i >= maxRows {
			break
		}
		cells := make([]string, len(cols))
		for j := range cols {
			if j < len(row) {
				cells[j] = formatCell(row[j])
			}
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// --- Chart kind + rendering (spec.md §4.10 steps 7-8) ---

type chartKind string

const (
	chartSingleValueBar chartKind = "single_value_bar"
	chartSingleColBar   chartKind = "single_col_bar"
	chartLine           chartKind = "line"
	chartBar            chartKind = "bar"
	chartTable          chartKind = "table"
)

func chooseChart(cols []string, rows [][]any) chartKind {
	n := len(rows)
	switch {
	case len(cols) == 1 && n == 1:
		return chartSingleValueBar
	case len(cols) == 1 && n > 1:
		return chartSingleColBar
	case len(cols) >= 2 && n > 1:
		if looksDatetime(firstColValues(cols, rows, 0)) {
			return chartLine
		}
		return chartBar
	default:
		return chartTable
	}
}

func firstColValues(cols []string, rows [][]any, idx int) []any {
	vals := make([]any, len(rows))
	for i, r := range rows {
		if idx < len(r) {
			vals[i] = r[idx]
		}
	}
	return vals
}

func looksDatetime(vals []any) bool {
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			if b, ok2 := v.([]byte); ok2 {
				s = string(b)
			} else {
				return false
			}
		}
		if !strings.Contains(s, "-") || len(s) < 8 {
			return false
		}
	}
	return len(vals) > 0
}

func firstNumericColumnIndex(rows [][]any) int {
	if len(rows) == 0 {
		return -1
	}
	for i := range rows[0] {
		if isNumericValue(rows[0][i]) {
			return i
		}
	}
	return -1
}

func isNumericValue(v any) bool {
	switch v.(type) {
	case int64, float64, int, float32:
		return true
	default:
		return false
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	default:
		return 0
	}
}

func (t *Tool) renderChart(datasetID, question string, cols []string, rows [][]any) (string, error) {
	kind := chooseChart(cols, rows)
	if kind == chartTable {
		return "", nil
	}

	dir := filepath.Join(t.outDir, datasetID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	hash := sha256.Sum256([]byte(question))
	name := hex.EncodeToString(hash[:])[:8] + ".png"
	path := filepath.Join(dir, name)

	img, err := renderChartImage(kind, cols, rows)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// --- Insights (spec.md §4.10 step 9) ---

func (t *Tool) buildInsights(ctx context.Context, question string, cols []string, rows [][]any) []string {
	if t.insights == nil {
		return []string{
			fmt.Sprintf("Answered: %s", question),
			fmt.Sprintf("Found %d results", len(rows)),
		}
	}

	sample := rows
	if len(sample) > 10 {
		sample = sample[:10]
	}
	var csv strings.Builder
	csv.WriteString(strings.Join(cols, ","))
	csv.WriteString("\n")
	for _, row := range sample {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		csv.WriteString(strings.Join(cells, ","))
		csv.WriteString("\n")
	}

	system := "Write 2-4 short, factual bullets (<=350 chars total) answering the question from the sample rows."
	user := fmt.Sprintf("Q: %s\n\nCSV:\n%s", question, csv.String())
	text, err := t.insights.Complete(ctx, system, user)
	if err != nil {
		t.log.Warn(ctx, "insights backend failed, using fallback", "error", err.Error())
		return []string{
			fmt.Sprintf("Answered: %s", question),
			fmt.Sprintf("Found %d results with %d columns", len(rows), len(cols)),
		}
	}

	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		b := strings.TrimSpace(trimBulletPrefix(line))
		if b != "" {
			bullets = append(bullets, b)
		}
		if len(bullets) == 4 {
			break
		}
	}
	if len(bullets) == 0 {
		return []string{fmt.Sprintf("Result has %d rows.", len(rows))}
	}
	return bullets
}

var bulletPrefix = regexp.MustCompile(`^[-*\d.\s]+`)

func trimBulletPrefix(line string) string {
	return bulletPrefix.ReplaceAllString(line, "")
}

// sortedColumns returns a sorted copy of cols.
func sortedColumns(cols []string) []string {
	out := append([]string(nil), cols...)
	sort.Strings(out)
	return out
}
