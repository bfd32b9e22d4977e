package params

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// DictionaryFile is the reference data file inside the data directory.
const DictionaryFile = "dictionary.yaml"

// UpdateSeparator delimits transactions in an update dataset file.
const UpdateSeparator = "#__SEP__"

const dateLayout = "2006-01-02"

// Reference describes the generated dataset the workload runs against.
type Reference struct {
	ScaleFactor     int      `yaml:"scalefactor"`
	Namespace       string   `yaml:"namespace"`
	ProductTypes    int      `yaml:"producttypes"`
	ProductFeatures int      `yaml:"productfeatures"`
	Offers          int      `yaml:"offers"`
	Reviews         int      `yaml:"reviews"`
	IntegerMax      int      `yaml:"integermax"`
	PropertyMin     int      `yaml:"propertymin"`
	PropertyMax     int      `yaml:"propertymax"`
	Words           []string `yaml:"words"`
	Countries       []string `yaml:"countries"`
	CurrentDate     string   `yaml:"currentdate"`

	current time.Time
}

func (r *Reference) normalize() error {
	if r.ScaleFactor < 1 {
		return errors.Errorf("scalefactor must be positive, got %d", r.ScaleFactor)
	}
	if r.Namespace == "" {
		r.Namespace = "http://example.org/bench/"
	}
	if r.ProductTypes < 1 {
		r.ProductTypes = 1
	}
	if r.ProductFeatures < 1 {
		r.ProductFeatures = 1
	}
	if r.Offers < 1 {
		r.Offers = 20 * r.ScaleFactor
	}
	if r.Reviews < 1 {
		r.Reviews = 10 * r.ScaleFactor
	}
	if r.IntegerMax < 1 {
		r.IntegerMax = 500
	}
	if r.PropertyMin < 1 {
		r.PropertyMin = 1
	}
	if r.PropertyMax < r.PropertyMin {
		r.PropertyMax = r.PropertyMin + 1999
	}
	if r.CurrentDate == "" {
		r.current = time.Date(2008, 6, 20, 0, 0, 0, 0, time.UTC)
		r.CurrentDate = r.current.Format(dateLayout)
		return nil
	}
	t, err := time.Parse(dateLayout, r.CurrentDate)
	if err != nil {
		return errors.Wrap(err, "parsing currentdate")
	}
	r.current = t
	return nil
}

// Dataset loads reference data on first use and shares it read-only between
// every pool of the process.
type Dataset struct {
	dir        string
	updateFile string

	refOnce sync.Once
	ref     *Reference
	refErr  error

	updOnce sync.Once
	blocks  []string
	updErr  error
}

func NewDataset(dir, updateFile string) *Dataset {
	return &Dataset{dir: dir, updateFile: updateFile}
}

func (d *Dataset) Reference() (*Reference, error) {
	d.refOnce.Do(func() {
		path := filepath.Join(d.dir, DictionaryFile)
		raw, err := os.ReadFile(path)
		if err != nil {
			d.refErr = errors.Wrap(err, "reading reference data")
			return
		}
		var ref Reference
		if err := yaml.Unmarshal(raw, &ref); err != nil {
			d.refErr = errors.Wrapf(err, "parsing %s", path)
			return
		}
		if err := ref.normalize(); err != nil {
			d.refErr = errors.Wrapf(err, "validating %s", path)
			return
		}
		d.ref = &ref
	})
	return d.ref, d.refErr
}

// UpdateBlocks returns the transactions of the update dataset in file order.
func (d *Dataset) UpdateBlocks() ([]string, error) {
	d.updOnce.Do(func() {
		if d.updateFile == "" {
			d.updErr = errors.New("query needs update transactions but no update dataset was given")
			return
		}
		d.blocks, d.updErr = readBlocks(d.updateFile)
	})
	return d.blocks, d.updErr
}

func readBlocks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening update dataset")
	}
	defer f.Close()

	var (
		blocks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			blocks = append(blocks, s)
		}
		cur.Reset()
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == UpdateSeparator {
			flush()
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading update dataset")
	}
	flush()
	return blocks, nil
}
