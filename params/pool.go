package params

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"querymix-bench/bench"
)

// Mode selects how resources are rendered into query text.
type Mode int

const (
	// HTTP renders resources as IRIs under the dataset namespace.
	HTTP Mode = iota
	// SQL renders resources as numeric ids.
	SQL
)

const xsdDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"

// Pool draws query parameters for one client. It is not safe for concurrent
// use; every client owns its own Pool over the shared Dataset.
type Pool struct {
	data    *Dataset
	seed    int64
	client  int
	clients int
	mode    Mode

	ref  *Reference
	rng  *rand.Rand
	next int // update transactions handed out so far
}

// New creates a pool for client (0-based) out of clients. Draws are fully
// determined by seed, the dataset scale factor, client and call order.
func New(data *Dataset, seed int64, client, clients int, mode Mode) *Pool {
	if clients < 1 {
		clients = 1
	}
	return &Pool{data: data, seed: seed, client: client, clients: clients, mode: mode}
}

// ScaleFactor loads the reference data if needed.
func (p *Pool) ScaleFactor() (int, error) {
	if err := p.init(); err != nil {
		return 0, err
	}
	return p.ref.ScaleFactor, nil
}

func (p *Pool) init() error {
	if p.rng != nil {
		return nil
	}
	ref, err := p.data.Reference()
	if err != nil {
		return err
	}
	p.ref = ref
	p.rng = rand.New(rand.NewSource(deriveSeed(p.seed, ref.ScaleFactor, p.client)))
	return nil
}

func deriveSeed(seed int64, scale, client int) int64 {
	return seed*1000003 + int64(scale)*7919 + int64(client)*104729
}

func (p *Pool) ParametersForQuery(q *bench.Query) ([]bench.Param, error) {
	if err := p.init(); err != nil {
		return nil, err
	}
	out := make([]bench.Param, 0, len(q.Params))
	for _, spec := range q.Params {
		v, err := p.value(spec.Kind)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %s of %s", spec.Name, q.Name)
		}
		out = append(out, bench.Param{Name: spec.Name, Value: v})
	}
	return out, nil
}

func (p *Pool) value(kind string) (string, error) {
	r := p.ref
	switch strings.ToLower(kind) {
	case "integer":
		return strconv.Itoa(1 + p.rng.Intn(r.IntegerMax)), nil
	case "productpropertynumericvalue":
		return strconv.Itoa(r.PropertyMin + p.rng.Intn(r.PropertyMax-r.PropertyMin+1)), nil
	case "product":
		return p.resource("Product", 1+p.rng.Intn(r.ScaleFactor)), nil
	case "offer":
		return p.resource("Offer", 1+p.rng.Intn(r.Offers)), nil
	case "review":
		return p.resource("Review", 1+p.rng.Intn(r.Reviews)), nil
	case "producttype":
		return p.resource("ProductType", 1+p.rng.Intn(r.ProductTypes)), nil
	case "productfeature":
		return p.resource("ProductFeature", 1+p.rng.Intn(r.ProductFeatures)), nil
	case "word":
		if len(r.Words) == 0 {
			return "", errors.New("reference data has no words")
		}
		return r.Words[p.rng.Intn(len(r.Words))], nil
	case "country":
		if len(r.Countries) == 0 {
			return "", errors.New("reference data has no countries")
		}
		c := r.Countries[p.rng.Intn(len(r.Countries))]
		if p.mode == SQL {
			return c, nil
		}
		return "<" + r.Namespace + "countries/" + c + ">", nil
	case "currentdate":
		return p.date(0), nil
	case "date":
		return p.date(1 + p.rng.Intn(365)), nil
	case "updatetransactiondata":
		return p.update()
	}
	return "", errors.Errorf("unknown parameter kind %q", kind)
}

func (p *Pool) resource(class string, id int) string {
	if p.mode == SQL {
		return strconv.Itoa(id)
	}
	return "<" + p.ref.Namespace + "instances/" + class + strconv.Itoa(id) + ">"
}

func (p *Pool) date(daysBack int) string {
	d := p.ref.current.AddDate(0, 0, -daysBack)
	if p.mode == SQL {
		return d.Format(dateLayout)
	}
	return `"` + d.Format("2006-01-02T15:04:05") + `"^^<` + xsdDateTime + `>`
}

// update hands out transactions client, client+clients, client+2*clients...
func (p *Pool) update() (string, error) {
	blocks, err := p.data.UpdateBlocks()
	if err != nil {
		return "", err
	}
	i := p.client + p.next*p.clients
	if i >= len(blocks) {
		return "", errors.Errorf("update dataset exhausted after %d transactions for client %d", p.next, p.client)
	}
	p.next++
	return blocks[i], nil
}
