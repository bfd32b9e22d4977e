// Package qual stores qualification snapshots: the run configuration followed
// by the canonical result of every validated query, as an lz4-compressed
// msgpack stream.
package qual

import (
	"io"
	"os"

	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"

	"querymix-bench/bench"
)

// ErrExists is returned by Create when the snapshot file is already present.
var ErrExists = errors.New("qualification file already exists")

type Header struct {
	QueryCount  int
	Seed        int64
	ScaleFactor int
	Runs        int
	RunOrder    []int
	Ignore      []bool
}

type Writer struct {
	f   *os.File
	zw  *lz4.Writer
	enc *msgpack.Encoder
}

// Check fails with ErrExists if path is taken. Used as a pre-flight before
// any query executes.
func Check(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Wrap(ErrExists, path)
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "checking qualification file")
	}
	return nil
}

// Create opens a new snapshot and writes its header.
func Create(path string, h Header) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		return nil, errors.Wrap(ErrExists, path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "creating qualification file")
	}
	zw := lz4.NewWriter(f)
	w := &Writer{f: f, zw: zw, enc: msgpack.NewEncoder(zw)}
	for _, v := range []interface{}{h.QueryCount, h.Seed, h.ScaleFactor, h.Runs, h.RunOrder, h.Ignore} {
		if err := w.enc.Encode(v); err != nil {
			w.Close()
			return nil, errors.Wrap(err, "writing qualification header")
		}
	}
	return w, nil
}

func (w *Writer) WriteResult(c *bench.Canonical) error {
	return w.enc.Encode(c)
}

func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	zerr := w.zw.Close()
	ferr := w.f.Close()
	w.f = nil
	if zerr != nil {
		return zerr
	}
	return ferr
}

type Reader struct {
	f   *os.File
	dec *msgpack.Decoder

	Header Header
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening qualification file")
	}
	r := &Reader{f: f, dec: msgpack.NewDecoder(lz4.NewReader(f))}
	h := &r.Header
	for _, v := range []interface{}{&h.QueryCount, &h.Seed, &h.ScaleFactor, &h.Runs, &h.RunOrder, &h.Ignore} {
		if err := r.dec.Decode(v); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "reading qualification header")
		}
	}
	return r, nil
}

// Next returns the next recorded result, or io.EOF after the last one.
func (r *Reader) Next() (*bench.Canonical, error) {
	var c bench.Canonical
	if err := r.dec.Decode(&c); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "reading qualification result")
	}
	return &c, nil
}

func (r *Reader) Close() error {
	return r.f.Close()
}
