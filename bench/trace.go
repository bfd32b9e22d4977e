package bench

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PeriodLog appends "<period>\t<runtimeSeconds>" lines, flushed per record.
type PeriodLog struct {
	w *bufio.Writer
}

func NewPeriodLog(w io.Writer) *PeriodLog {
	return &PeriodLog{w: bufio.NewWriter(w)}
}

func (l *PeriodLog) Append(period int, runtime float64) error {
	if _, err := fmt.Fprintf(l.w, "%d\t%s\n", period, strconv.FormatFloat(runtime, 'f', -1, 64)); err != nil {
		return err
	}
	return l.w.Flush()
}

type TraceHeader struct {
	Generated string `json:"generated"`
	DataName  string `json:"data_name"`
	Warmups   int    `json:"warmups"`
	Runs      int    `json:"runs"`
	RunID     string `json:"run_id"`
}

// TraceRecord describes one executed, non-ignored query occurrence.
type TraceRecord struct {
	QueryNumber int     `json:"query_number"`
	RunLoop     int     `json:"run_loop"` // negative for warmup runs
	QueryInLoop int     `json:"query_in_loop"`
	Group       string  `json:"group"`
	Query       string  `json:"query"`
	Template    string  `json:"template"`
	Params      []Param `json:"params"`
}

// Trace writes newline-delimited JSON: the header, then one line per record.
type Trace struct {
	w   *bufio.Writer
	enc *jsoniter.Encoder
}

func NewTrace(w io.Writer, h TraceHeader) (*Trace, error) {
	bw := bufio.NewWriter(w)
	t := &Trace{w: bw, enc: json.NewEncoder(bw)}
	t.enc.SetEscapeHTML(false)
	if err := t.write(h); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trace) Append(rec TraceRecord) error {
	if rec.Params == nil {
		rec.Params = []Param{}
	}
	return t.write(rec)
}

func (t *Trace) write(v interface{}) error {
	if err := t.enc.Encode(v); err != nil {
		return err
	}
	return t.w.Flush()
}
