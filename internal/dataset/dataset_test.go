package dataset

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/animus-labs/animus-tracking/internal/platform/objectstore"
)

// pickleBuilder emits protocol 2 opcodes for lists, tuples and numbers.
type pickleBuilder struct {
	bytes.Buffer
}

func newPickle() *pickleBuilder {
	b := &pickleBuilder{}
	b.Write([]byte{0x80, 0x02})
	return b
}

func (b *pickleBuilder) float(v float64) {
	b.WriteByte('G')
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], math.Float64bits(v))
	b.Write(raw[:])
}

func (b *pickleBuilder) smallInt(v uint8) {
	b.WriteByte('K')
	b.WriteByte(v)
}

func (b *pickleBuilder) list(items func()) {
	b.WriteByte(']')
	b.WriteByte('(')
	items()
	b.WriteByte('e')
}

func (b *pickleBuilder) tuple2() {
	b.WriteByte(0x86)
}

func (b *pickleBuilder) stop() []byte {
	b.WriteByte('.')
	return b.Bytes()
}

func pairPickle(rows [][]float64, y []float64) []byte {
	b := newPickle()
	b.list(func() {
		for _, row := range rows {
			b.list(func() {
				for _, v := range row {
					b.float(v)
				}
			})
		}
	})
	b.list(func() {
		for _, v := range y {
			b.float(v)
		}
	})
	b.tuple2()
	return b.stop()
}

func TestDecodeFloatPair(t *testing.T) {
	raw := pairPickle([][]float64{{1, 2}, {3, 4}, {5, 6}}, []float64{0.5, 1.5, 2.5})
	pair, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode() err=%v", err)
	}
	r, c := pair.X.Dims()
	if r != 3 || c != 2 {
		t.Fatalf("dims=%dx%d", r, c)
	}
	if pair.X.At(2, 1) != 6 || pair.Y[1] != 1.5 {
		t.Fatalf("unexpected values X[2,1]=%v y[1]=%v", pair.X.At(2, 1), pair.Y[1])
	}
}

func TestDecodeIntegerValues(t *testing.T) {
	b := newPickle()
	b.list(func() {
		b.list(func() { b.smallInt(7) })
	})
	b.list(func() { b.smallInt(3) })
	b.tuple2()
	pair, err := Decode(bytes.NewReader(b.stop()))
	if err != nil {
		t.Fatalf("Decode() err=%v", err)
	}
	if pair.X.At(0, 0) != 7 || pair.Y[0] != 3 {
		t.Fatalf("pair=%v %v", pair.X.At(0, 0), pair.Y)
	}
}

func TestDecodeRejectsRaggedRows(t *testing.T) {
	raw := pairPickle([][]float64{{1, 2}, {3}}, []float64{1, 2})
	if _, err := Decode(bytes.NewReader(raw)); err == nil {
		t.Fatalf("expected ragged row error")
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	raw := pairPickle([][]float64{{1}, {2}}, []float64{1})
	if _, err := Decode(bytes.NewReader(raw)); err == nil {
		t.Fatalf("expected length mismatch error")
	}
}

func TestDecodeRejectsNonTuple(t *testing.T) {
	b := newPickle()
	b.float(1)
	if _, err := Decode(bytes.NewReader(b.stop())); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestDecodeRejectsNumpyArrays(t *testing.T) {
	b := newPickle()
	b.WriteString("cnumpy.core.multiarray\n_reconstruct\n")
	b.WriteByte(')')
	b.WriteByte('R')
	_, err := Decode(bytes.NewReader(b.stop()))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if !strings.Contains(err.Error(), "numpy.core.multiarray._reconstruct") {
		t.Fatalf("error does not name the class: %v", err)
	}
}

func writeSplits(t *testing.T, dir string, features map[Split]int) {
	t.Helper()
	for split, cols := range features {
		row := make([]float64, cols)
		raw := pairPickle([][]float64{row, row}, []float64{1, 2})
		if err := os.WriteFile(filepath.Join(dir, split.Filename()), raw, 0o644); err != nil {
			t.Fatalf("write %s: %v", split, err)
		}
	}
}

func TestLoadAllFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSplits(t, dir, map[Split]int{SplitTrain: 2, SplitValidation: 2, SplitTest: 2})
	splits, err := LoadAll(context.Background(), FileSource{Dir: dir})
	if err != nil {
		t.Fatalf("LoadAll() err=%v", err)
	}
	if splits.Train.Rows() != 2 || splits.Test.Rows() != 2 {
		t.Fatalf("splits=%+v", splits)
	}
}

func TestLoadAllFeatureMismatch(t *testing.T) {
	dir := t.TempDir()
	writeSplits(t, dir, map[Split]int{SplitTrain: 2, SplitValidation: 3, SplitTest: 2})
	if _, err := LoadAll(context.Background(), FileSource{Dir: dir}); err == nil {
		t.Fatalf("expected feature mismatch")
	}
}

func TestLoadMissingSplit(t *testing.T) {
	_, err := Load(context.Background(), FileSource{Dir: t.TempDir()}, SplitTrain)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
}

func TestObjectSource(t *testing.T) {
	store, err := objectstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() err=%v", err)
	}
	ctx := context.Background()
	raw := pairPickle([][]float64{{1}}, []float64{2})
	if err := store.Put(ctx, "data", "taxi/train.pkl", bytes.NewReader(raw), int64(len(raw)), "application/octet-stream"); err != nil {
		t.Fatalf("Put() err=%v", err)
	}
	bucket, prefix, err := ParseObjectURI("s3://data/taxi/")
	if err != nil {
		t.Fatalf("ParseObjectURI() err=%v", err)
	}
	src := ObjectSource{Store: store, Bucket: bucket, Prefix: prefix}
	if src.String() != "s3://data/taxi" {
		t.Fatalf("String()=%q", src.String())
	}
	pair, err := Load(ctx, src, SplitTrain)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if pair.Y[0] != 2 {
		t.Fatalf("y=%v", pair.Y)
	}
	if _, err := Load(ctx, src, SplitTest); !errors.Is(err, objectstore.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestParseObjectURI(t *testing.T) {
	if !IsObjectURI(" S3://b/p") || IsObjectURI("./output") {
		t.Fatalf("IsObjectURI mismatch")
	}
	if _, _, err := ParseObjectURI("s3:///nobucket"); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}
