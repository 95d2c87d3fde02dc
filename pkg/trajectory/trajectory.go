// Package trajectory stores recorded group feedback as a CBOR stream: one
// header item followed by one item per sample, so a recording can be
// appended to sample by sample and replayed in its original order.
package trajectory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/gwillem/amber/pkg/actuator"
)

// DefaultFile is the trajectory path used when none is given.
const DefaultFile = "data.rpd"

const (
	magic   = "amber-trajectory"
	version = 1
)

// ErrFormat is returned for files that are not trajectories or were
// written by an unsupported version.
var ErrFormat = errors.New("not a trajectory file")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("trajectory: cbor encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trajectory: cbor decoder mode: %v", err))
	}
}

// Header describes a recording.
type Header struct {
	Magic   string        `cbor:"1,keyasint"`
	Version int           `cbor:"2,keyasint"`
	ID      string        `cbor:"3,keyasint"`
	Axes    int           `cbor:"4,keyasint"`
	Cadence time.Duration `cbor:"5,keyasint"`
	Created time.Time     `cbor:"6,keyasint"`
}

// NewHeader returns a header for a fresh recording of axes axes sampled
// every cadence.
func NewHeader(axes int, cadence time.Duration) Header {
	return Header{
		Magic:   magic,
		Version: version,
		ID:      uuid.NewString(),
		Axes:    axes,
		Cadence: cadence,
		Created: time.Now().UTC(),
	}
}

// Point is one recorded group sample.
type Point struct {
	// Offset is the time since the recording started.
	Offset time.Duration `cbor:"1,keyasint"`
	CVP    actuator.CVP  `cbor:"2,keyasint"`
}

// Writer appends points to a trajectory file. It is safe for concurrent use.
type Writer struct {
	file    *os.File
	encoder *cbor.Encoder
	header  Header
	count   int

	mu     sync.Mutex
	closed bool
}

// Create truncates or creates path and writes the header.
func Create(path string, h Header) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("create trajectory: %w", err)
	}
	w := &Writer{
		file:    f,
		encoder: encMode.NewEncoder(f),
		header:  h,
	}
	if err := w.encoder.Encode(h); err != nil {
		f.Close()
		return nil, fmt.Errorf("write trajectory header: %w", err)
	}
	return w, nil
}

// Header returns the header written by Create.
func (w *Writer) Header() Header {
	return w.header
}

// Append writes one point. Points with a different axis count are rejected.
func (w *Writer) Append(p Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if p.CVP.Len() != w.header.Axes {
		return fmt.Errorf("append point: %d axes, recording has %d", p.CVP.Len(), w.header.Axes)
	}
	if err := w.encoder.Encode(p); err != nil {
		return fmt.Errorf("append point: %w", err)
	}
	w.count++
	return nil
}

// Count returns how many points were appended.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes the file to disk and closes it. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("sync trajectory: %w", err)
	}
	return w.file.Close()
}

// Reader iterates over the points of a trajectory file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	header  Header
}

// Open opens path and reads its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trajectory: %w", err)
	}
	r := &Reader{file: f, decoder: decMode.NewDecoder(f)}
	if err := r.decoder.Decode(&r.header); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}
	if r.header.Magic != magic || r.header.Version != version {
		f.Close()
		return nil, fmt.Errorf("%w: %s: magic %q version %d", ErrFormat, path, r.header.Magic, r.header.Version)
	}
	return r, nil
}

// Header returns the recording header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next point, or io.EOF after the last one.
func (r *Reader) Next() (Point, error) {
	var p Point
	if err := r.decoder.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return Point{}, io.EOF
		}
		return Point{}, fmt.Errorf("read point: %w", err)
	}
	if p.CVP.Len() != r.header.Axes {
		return Point{}, fmt.Errorf("read point: %d axes, recording has %d", p.CVP.Len(), r.header.Axes)
	}
	return p, nil
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll loads a whole recording.
func ReadAll(path string) (Header, []Point, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer r.Close()

	var points []Point
	for {
		p, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.header, points, nil
		}
		if err != nil {
			return Header{}, nil, err
		}
		points = append(points, p)
	}
}
