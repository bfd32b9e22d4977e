package bench

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// QueryType tags a workload statement by how the backend treats it.
type QueryType int

const (
	SelectType QueryType = iota
	DescribeType
	ConstructType
	UpdateType
)

func (t QueryType) String() string {
	switch t {
	case SelectType:
		return "SELECT"
	case DescribeType:
		return "DESCRIBE"
	case ConstructType:
		return "CONSTRUCT"
	case UpdateType:
		return "UPDATE"
	}
	return "UNKNOWN"
}

// ParseQueryType accepts the names printed by String, case-insensitively.
func ParseQueryType(s string) (QueryType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SELECT":
		return SelectType, true
	case "DESCRIBE":
		return DescribeType, true
	case "CONSTRUCT", "ASK":
		return ConstructType, true
	case "UPDATE", "INSERT", "DELETE":
		return UpdateType, true
	}
	return SelectType, false
}

// Excluded is the elapsed-time sentinel for outcomes that must not touch any
// statistic: ignored queries, update queries skipped during warmup and
// generate-only runs.
const Excluded = -1.0

// Key addresses a query by the mix it belongs to and its 1-based number
// inside that mix.
type Key struct {
	Mix int
	Nr  int
}

type ParamSpec struct {
	Name string
	Kind string
}

// Query is one workload statement. It is immutable once the workload is
// loaded; execution state lives in Bound and statistics live in the Mix.
type Query struct {
	Key         Key
	Index       int // global 1-based index, stable across the whole workload
	Type        QueryType
	Name        string // template identifier, e.g. "query3"
	Group       string
	Template    string
	Description string
	Params      []ParamSpec
	RowNames    []string
	Ignored     bool
}

type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Bound is a query with its parameters substituted for one execution.
type Bound struct {
	Query  *Query
	Params []Param
	Text   string
}

// Bind substitutes every delim-wrapped parameter name in the template.
func (q *Query) Bind(params []Param, delim string) *Bound {
	pairs := make([]string, 0, 2*len(params))
	for _, p := range params {
		pairs = append(pairs, delim+p.Name+delim, p.Value)
	}
	text := q.Template
	if len(pairs) > 0 {
		text = strings.NewReplacer(pairs...).Replace(text)
	}
	return &Bound{Query: q, Params: params, Text: text}
}

// Outcome is what a backend reports for one execution. Timeouts and
// server-side query errors are outcomes; a lost connection is an error.
type Outcome struct {
	Elapsed  time.Duration
	Result   int // row count for SELECT, bytes or affected rows otherwise
	TimedOut bool
	Failed   bool
	Err      error
}

// Canonical is a comparable rendering of a query result, recorded in
// qualification snapshots.
type Canonical struct {
	Query   int
	Type    QueryType
	Columns []string
	Rows    [][]string
	Size    int
}

// Conn is the capability every backend adapter provides. A Conn is owned by
// exactly one client and never shared.
type Conn interface {
	Execute(ctx context.Context, q *Bound) (Outcome, error)
	// Validate returns nil when the query type has no canonical form.
	Validate(ctx context.Context, q *Bound) (*Canonical, error)
	// Close is idempotent.
	Close() error
}

type ParameterPool interface {
	ParametersForQuery(q *Query) ([]Param, error)
}

// Observer receives every measured execution; used for metrics export.
type Observer interface {
	ObserveQuery(q *Query, out Outcome)
}

// Segment is the run order of one query mix, in local query numbers.
type Segment struct {
	Mix   int
	Group string
	Order []int
}

// Workload is the loaded, immutable set of queries and their run order.
type Workload struct {
	Queries  []*Query // sorted by Index
	Segments []Segment
	Size     int // number of global query slots, including unused numbers

	byKey map[Key]*Query
}

func NewWorkload(queries []*Query, segments []Segment, size int) (*Workload, error) {
	w := &Workload{
		Queries:  append([]*Query(nil), queries...),
		Segments: segments,
		Size:     size,
		byKey:    make(map[Key]*Query, len(queries)),
	}
	sort.Slice(w.Queries, func(i, j int) bool { return w.Queries[i].Index < w.Queries[j].Index })

	for _, q := range w.Queries {
		if q.Index < 1 || q.Index > size {
			return nil, errors.Errorf("query %s of mix %d has index %d outside 1..%d", q.Name, q.Key.Mix, q.Index, size)
		}
		if _, dup := w.byKey[q.Key]; dup {
			return nil, errors.Errorf("duplicate query %d in mix %d", q.Key.Nr, q.Key.Mix)
		}
		w.byKey[q.Key] = q
	}
	for _, seg := range segments {
		if len(seg.Order) == 0 {
			return nil, errors.Errorf("mix %d has an empty run order", seg.Mix)
		}
		for _, nr := range seg.Order {
			if _, ok := w.byKey[Key{Mix: seg.Mix, Nr: nr}]; !ok {
				return nil, errors.Errorf("mix %d references unknown query %d", seg.Mix, nr)
			}
		}
	}
	return w, nil
}

func (w *Workload) Lookup(k Key) (*Query, bool) {
	q, ok := w.byKey[k]
	return q, ok
}

// RunOrder flattens every segment into global query indices.
func (w *Workload) RunOrder() []int {
	var order []int
	for _, seg := range w.Segments {
		for _, nr := range seg.Order {
			order = append(order, w.byKey[Key{Mix: seg.Mix, Nr: nr}].Index)
		}
	}
	return order
}

// IgnoreFlags is indexed by global index - 1.
func (w *Workload) IgnoreFlags() []bool {
	flags := make([]bool, w.Size)
	for _, q := range w.Queries {
		flags[q.Index-1] = q.Ignored
	}
	return flags
}

type RunParams struct {
	Warmups int
	Runs    int
	Timeout time.Duration

	PeriodSize int     // query mixes per measurement period
	Window     int     // periods compared by the ramp-up detector
	Threshold  float64 // fractional spread that counts as steady

	Generate bool
	Delim    string // parameter placeholder delimiter, "%" or "@"
}
