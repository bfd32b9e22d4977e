// Package workload reads a use case: the list of query mix directories and,
// for each of them, the run order, ignore list and query templates.
package workload

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"querymix-bench/bench"
)

type Options struct {
	// Qualification also reads query<N>valid.txt row names.
	Qualification bool
}

// Load reads the use case file and every query mix it lists. Query mix
// directories are resolved relative to the working directory.
func Load(useCaseFile string, opts Options) (*bench.Workload, error) {
	dirs, err := readUseCase(useCaseFile)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, errors.Errorf("use case file %s lists no query mix", useCaseFile)
	}

	var (
		queries  []*bench.Query
		segments []bench.Segment
		offset   int
	)
	for mix, dir := range dirs {
		order, err := readInts(filepath.Join(dir, "querymix.txt"))
		if err != nil {
			return nil, errors.Wrapf(err, "reading query mix of %s", dir)
		}
		if len(order) == 0 {
			return nil, errors.Errorf("query mix %s is empty", dir)
		}
		maxNr := 0
		for _, nr := range order {
			if nr < 1 {
				return nil, errors.Errorf("query mix %s: invalid query number %d", dir, nr)
			}
			if nr > maxNr {
				maxNr = nr
			}
		}

		ignored, err := readIgnore(filepath.Join(dir, "ignoreQueries.txt"), maxNr)
		if err != nil {
			return nil, err
		}

		group := filepath.Base(filepath.Clean(dir))
		seen := make(map[int]bool, maxNr)
		for _, nr := range order {
			if seen[nr] {
				continue
			}
			seen[nr] = true
			q, err := readQuery(dir, nr, opts)
			if err != nil {
				return nil, err
			}
			q.Key = bench.Key{Mix: mix, Nr: nr}
			q.Index = offset + nr
			q.Group = group
			q.Ignored = ignored[nr]
			queries = append(queries, q)
		}
		segments = append(segments, bench.Segment{Mix: mix, Group: group, Order: order})
		offset += maxNr
		log.WithField("dir", dir).Debugf("loaded query mix: %d queries, %d per run", len(seen), len(order))
	}
	return bench.NewWorkload(queries, segments, offset)
}

func readUseCase(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening use case file")
	}
	defer f.Close()

	var dirs []string
	sc := bufio.NewScanner(f)
	for ln := 1; sc.Scan(); ln++ {
		line := sc.Text()
		parts := strings.Split(line, "=")
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid entry in use case file %s line %d: %q", path, ln, line)
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "querymix") {
			dirs = append(dirs, strings.TrimSpace(parts[1]))
		}
	}
	return dirs, errors.Wrap(sc.Err(), "reading use case file")
}

func readInts(path string) ([]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, tok := range strings.Fields(string(raw)) {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", path)
		}
		out = append(out, n)
	}
	return out, nil
}

// readIgnore returns flags indexed by local query number. A missing file
// ignores nothing; numbers outside 1..maxNr are skipped.
func readIgnore(path string, maxNr int) ([]bool, error) {
	flags := make([]bool, maxNr+1)
	nrs, err := readInts(path)
	if os.IsNotExist(errors.Cause(err)) {
		return flags, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading ignore list")
	}
	for _, nr := range nrs {
		if nr > 0 && nr <= maxNr {
			flags[nr] = true
		}
	}
	return flags, nil
}

func readQuery(dir string, nr int, opts Options) (*bench.Query, error) {
	name := fmt.Sprintf("query%d", nr)
	tmpl, err := os.ReadFile(filepath.Join(dir, name+".txt"))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s template", name)
	}
	q := &bench.Query{Name: name, Template: string(tmpl), Type: bench.SelectType}

	descPath := filepath.Join(dir, name+"desc.txt")
	desc, err := os.ReadFile(descPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s description", name)
	}
	q.Description = string(desc)
	for _, line := range strings.Split(q.Description, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, errors.Errorf("%s: invalid description line %q", descPath, line)
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if strings.EqualFold(k, "querytype") {
			t, ok := bench.ParseQueryType(v)
			if !ok {
				return nil, errors.Errorf("%s: unknown query type %q", descPath, v)
			}
			q.Type = t
			continue
		}
		q.Params = append(q.Params, bench.ParamSpec{Name: k, Kind: v})
	}

	if opts.Qualification {
		rows, err := os.ReadFile(filepath.Join(dir, name+"valid.txt"))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s qualification info", name)
		}
		q.RowNames = strings.Fields(string(rows))
	}
	return q, nil
}
