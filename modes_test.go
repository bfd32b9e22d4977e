package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querymix-bench/lite"
	"querymix-bench/qual"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// sqliteWorkload lays out a two-query SQL use case and a seeded database in
// dir and returns the endpoint.
func sqliteWorkload(t *testing.T, dir string) string {
	t.Helper()
	files := map[string]string{
		"usecase.txt":             "querymix=mix\n",
		"mix/querymix.txt":        "1 2",
		"mix/query1.txt":          "SELECT id FROM product WHERE id <= @Limit@",
		"mix/query1desc.txt":      "Limit=Integer\nquerytype=SELECT\n",
		"mix/query1valid.txt":     "id\n",
		"mix/query2.txt":          "SELECT id, label FROM product WHERE id = @Product@",
		"mix/query2desc.txt":      "Product=Product\nquerytype=SELECT\n",
		"mix/query2valid.txt":     "label\n",
		"td_data/dictionary.yaml": "scalefactor: 3\nintegermax: 3\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	endpoint := "sqlite:" + filepath.Join(dir, "bench.db")
	ctx := context.Background()
	conn, err := lite.Connect(ctx, endpoint, 0)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.DB().ExecContext(ctx, `CREATE TABLE product (id INTEGER PRIMARY KEY, label TEXT)`)
	require.NoError(t, err)
	_, err = conn.DB().ExecContext(ctx, `INSERT INTO product VALUES (1, 'alpha'), (2, 'beta'), (3, 'gamma')`)
	require.NoError(t, err)
	return endpoint
}

func TestSingleClientRunAgainstSQLite(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	endpoint := sqliteWorkload(t, dir)

	err := newApp().Run([]string{"querymix-bench", "-runs", "4", "-w", "1", "-sql", "-ucf", "usecase.txt", "-o", "result.json", "-metrics", "bench.prom", endpoint})
	require.NoError(t, err)

	raw, err := os.ReadFile("result.json")
	require.NoError(t, err)
	rep := jsoniter.Get(raw)
	assert.Equal(t, 4, rep.Get("runs").ToInt())
	assert.Equal(t, 3, rep.Get("scale_factor").ToInt())
	assert.Equal(t, 4, rep.Get("queries", 0, "count").ToInt())
	assert.Equal(t, 4, rep.Get("queries", 1, "count").ToInt())
	assert.Equal(t, 1.0, rep.Get("queries", 1, "avg_result").ToFloat64())

	trace, err := os.ReadFile(traceFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(trace)), "\n")
	assert.Len(t, lines, 1+(1+4)*2)

	prom, err := os.ReadFile("bench.prom")
	require.NoError(t, err)
	assert.Contains(t, string(prom), "querymix_query_mix_runs 4")
}

func TestGenerateNeedsNoBackend(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	sqliteWorkload(t, dir)

	require.NoError(t, newApp().Run([]string{"querymix-bench", "-runs", "3", "-w", "0", "-sql", "-gen", "-ucf", "usecase.txt"}))

	trace, err := os.ReadFile(traceFile)
	require.NoError(t, err)
	assert.Contains(t, string(trace), "SELECT id FROM product WHERE id <= ")
	_, err = os.Stat("benchmark_result.xml")
	assert.True(t, os.IsNotExist(err))
}

func TestQualificationRun(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	endpoint := sqliteWorkload(t, dir)
	args := []string{"querymix-bench", "-q", "-sql", "-ucf", "usecase.txt", "-qf", "run.qual", endpoint}

	require.NoError(t, newApp().Run(args))

	r, err := qual.Open("run.qual")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 15, r.Header.Runs)
	assert.Equal(t, 2, r.Header.QueryCount)
	assert.Equal(t, []int{1, 2}, r.Header.RunOrder)

	n := 0
	for {
		c, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.NotEmpty(t, c.Rows, "query %d", c.Query)
		if c.Query == 2 {
			assert.Equal(t, []string{"label"}, c.Columns)
			assert.Len(t, c.Rows, 1)
		}
		n++
	}
	assert.Equal(t, 30, n)

	err = newApp().Run(args)
	require.Error(t, err)
	assert.True(t, errors.Is(err, qual.ErrExists))
	assert.Equal(t, 1, exitCode(err))
}
