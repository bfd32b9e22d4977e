package workload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querymix-bench/bench"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestLoadConcatenatesQueryMixes(t *testing.T) {
	dir := t.TempDir()
	explore := filepath.Join(dir, "explore")
	update := filepath.Join(dir, "update")
	writeFiles(t, dir, map[string]string{
		"usecase.txt":               "querymix=" + explore + "\nQueryMix=" + update + "\nother=ignored\n",
		"explore/querymix.txt":      "1 2 3\n1 3",
		"explore/ignoreQueries.txt": "3 9",
		"explore/query1.txt":        "SELECT * WHERE { %Product% ?p ?o }",
		"explore/query1desc.txt":    "Product=Product\nquerytype=SELECT\n",
		"explore/query2.txt":        "DESCRIBE %Review%",
		"explore/query2desc.txt":    "Review = Review\nquerytype = DESCRIBE\n",
		"explore/query3.txt":        "SELECT ?x WHERE { ?x ?p %Word% } LIMIT %Limit%",
		"explore/query3desc.txt":    "# two parameters\nWord=Word\nLimit=Integer\n",
		"update/querymix.txt":       "2",
		"update/query2.txt":         "INSERT DATA { %Data% }",
		"update/query2desc.txt":     "Data=UpdateTransactionData\nquerytype=INSERT\n",
	})

	w, err := Load(filepath.Join(dir, "usecase.txt"), Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, w.Size)
	assert.Equal(t, []int{1, 2, 3, 1, 3, 5}, w.RunOrder())
	assert.Equal(t, []bool{false, false, true, false, false}, w.IgnoreFlags())

	q3, ok := w.Lookup(bench.Key{Mix: 0, Nr: 3})
	require.True(t, ok)
	assert.Equal(t, "query3", q3.Name)
	assert.Equal(t, "explore", q3.Group)
	assert.Equal(t, bench.SelectType, q3.Type)
	assert.Equal(t, []bench.ParamSpec{{Name: "Word", Kind: "Word"}, {Name: "Limit", Kind: "Integer"}}, q3.Params)

	q2, ok := w.Lookup(bench.Key{Mix: 0, Nr: 2})
	require.True(t, ok)
	assert.Equal(t, bench.DescribeType, q2.Type)

	upd, ok := w.Lookup(bench.Key{Mix: 1, Nr: 2})
	require.True(t, ok)
	assert.Equal(t, 5, upd.Index)
	assert.Equal(t, bench.UpdateType, upd.Type)
	assert.Equal(t, "update", upd.Group)

	_, ok = w.Lookup(bench.Key{Mix: 1, Nr: 1})
	assert.False(t, ok)
}

func TestLoadRejectsMalformedUseCase(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"usecase.txt": "querymix=a=b\n"})
	_, err := Load(filepath.Join(dir, "usecase.txt"), Options{})
	require.Error(t, err)

	writeFiles(t, dir, map[string]string{"empty.txt": "other=x\n"})
	_, err = Load(filepath.Join(dir, "empty.txt"), Options{})
	require.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.txt"), Options{})
	require.Error(t, err)
}

func TestLoadReadsRowNamesForQualification(t *testing.T) {
	dir := t.TempDir()
	mix := filepath.Join(dir, "mix")
	writeFiles(t, dir, map[string]string{
		"usecase.txt":        "querymix=" + mix + "\n",
		"mix/querymix.txt":   "1",
		"mix/query1.txt":     "SELECT id, label FROM product",
		"mix/query1desc.txt": "querytype=SELECT\n",
	})

	_, err := Load(filepath.Join(dir, "usecase.txt"), Options{Qualification: true})
	require.Error(t, err)

	writeFiles(t, dir, map[string]string{"mix/query1valid.txt": "id\nlabel\n"})
	w, err := Load(filepath.Join(dir, "usecase.txt"), Options{Qualification: true})
	require.NoError(t, err)
	q, _ := w.Lookup(bench.Key{Mix: 0, Nr: 1})
	assert.Equal(t, []string{"id", "label"}, q.RowNames)
}

func TestLoadRejectsUnknownQueryType(t *testing.T) {
	dir := t.TempDir()
	mix := filepath.Join(dir, "mix")
	writeFiles(t, dir, map[string]string{
		"usecase.txt":        "querymix=" + mix + "\n",
		"mix/querymix.txt":   "1",
		"mix/query1.txt":     "MERGE",
		"mix/query1desc.txt": "querytype=MERGE\n",
	})
	_, err := Load(filepath.Join(dir, "usecase.txt"), Options{})
	require.Error(t, err)
}
