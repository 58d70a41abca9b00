package grid

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// fileMagic starts every serialized grid.
var fileMagic = [8]byte{'P', 'A', 'P', 'L', 'G', 'R', 'I', 'D'}

// zstdMagic is the standard zstd frame header.
var zstdMagic = [4]byte{0x28, 0xb5, 0x2f, 0xfd}

const fileVersion uint64 = 1

const (
	subgridTagEmpty uint8 = iota
	subgridTagInterp
	subgridTagImport
)

// ErrBadFormat reports an unreadable or unsupported serialized grid.
var ErrBadFormat = fmt.Errorf("unrecognized grid format")

type binWriter struct {
	w   io.Writer
	err error
}

func (bw *binWriter) u8(v uint8)    { bw.write(v) }
func (bw *binWriter) u64(v uint64)  { bw.write(v) }
func (bw *binWriter) i64(v int64)   { bw.write(v) }
func (bw *binWriter) f64(v float64) { bw.write(v) }

func (bw *binWriter) write(v any) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

func (bw *binWriter) str(s string) {
	bw.u64(uint64(len(s)))
	if bw.err != nil {
		return
	}
	_, bw.err = io.WriteString(bw.w, s)
}

func (bw *binWriter) floats(values []float64) {
	bw.u64(uint64(len(values)))
	for _, v := range values {
		bw.f64(v)
	}
}

func (bw *binWriter) ints(values []int) {
	bw.u64(uint64(len(values)))
	for _, v := range values {
		bw.i64(int64(v))
	}
}

type binReader struct {
	r   io.Reader
	err error
}

func (br *binReader) read(v any) {
	if br.err != nil {
		return
	}
	br.err = binary.Read(br.r, binary.LittleEndian, v)
}

func (br *binReader) u8() uint8    { var v uint8; br.read(&v); return v }
func (br *binReader) u64() uint64  { var v uint64; br.read(&v); return v }
func (br *binReader) i64() int64   { var v int64; br.read(&v); return v }
func (br *binReader) f64() float64 { var v float64; br.read(&v); return v }

// maxSliceLen guards length prefixes against corrupted or hostile input.
const maxSliceLen = 1 << 32

func (br *binReader) length() int {
	n := br.u64()
	if br.err == nil && n > maxSliceLen {
		br.err = fmt.Errorf("length prefix %d exceeds limit: %w", n, ErrBadFormat)
	}
	return int(n)
}

func (br *binReader) str() string {
	n := br.length()
	if br.err != nil {
		return ""
	}
	buf := make([]byte, n)
	_, br.err = io.ReadFull(br.r, buf)
	return string(buf)
}

func (br *binReader) floats() []float64 {
	n := br.length()
	if br.err != nil {
		return nil
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = br.f64()
	}
	return values
}

func (br *binReader) ints() []int {
	n := br.length()
	if br.err != nil {
		return nil
	}
	values := make([]int, n)
	for i := range values {
		values[i] = int(br.i64())
	}
	return values
}

// Write serializes the grid uncompressed.
func (g *Grid) Write(w io.Writer) error {
	bw := &binWriter{w: w}
	bw.write(fileMagic)
	bw.u64(fileVersion)

	keys := make([]string, 0, len(g.metadata))
	for key := range g.metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	bw.u64(uint64(len(keys)))
	for _, key := range keys {
		bw.str(key)
		bw.str(g.metadata[key])
	}

	bw.u64(uint64(g.pidBasis))

	bw.u64(uint64(len(g.convolutions)))
	for _, conv := range g.convolutions {
		bw.u64(uint64(conv.Type))
		bw.i64(int64(conv.PID))
	}

	bw.u64(uint64(len(g.orders)))
	for _, order := range g.orders {
		bw.u8(order.AlphaS)
		bw.u8(order.Alpha)
		bw.u8(order.LogXiR)
		bw.u8(order.LogXiF)
		bw.u8(order.LogXiA)
	}

	bw.u64(uint64(len(g.channels)))
	for _, channel := range g.channels {
		terms := channel.Terms()
		bw.u64(uint64(len(terms)))
		for _, term := range terms {
			bw.u64(uint64(len(term.PIDs)))
			for _, pid := range term.PIDs {
				bw.i64(int64(pid))
			}
			bw.f64(term.Factor)
		}
	}

	bw.floats(g.bwfl.FillLimits())
	bins := g.bwfl.Bins()
	bw.u64(uint64(len(bins)))
	for _, bin := range bins {
		limits := bin.Limits()
		bw.u64(uint64(len(limits)))
		for _, limit := range limits {
			bw.f64(limit[0])
			bw.f64(limit[1])
		}
		bw.f64(bin.Normalization())
	}

	bw.u64(uint64(len(g.kinematics)))
	for _, kin := range g.kinematics {
		bw.u64(uint64(kin.Kind))
		bw.u64(uint64(kin.Index))
	}

	for _, form := range []ScaleFuncForm{g.scales.Ren, g.scales.Fac, g.scales.Frg} {
		bw.u64(uint64(form.Kind))
		bw.u64(uint64(form.Idx1))
		bw.u64(uint64(form.Idx2))
	}

	bw.u64(uint64(len(g.interps)))
	for _, interp := range g.interps {
		bw.f64(interp.min)
		bw.f64(interp.max)
		bw.u64(uint64(interp.nodes))
		bw.u64(uint64(interp.order))
		bw.u64(uint64(interp.reweight))
		bw.u64(uint64(interp.mapping))
		bw.u64(uint64(interp.method))
	}

	g.eachSubgrid(func(_, _, _ int, subgrid Subgrid) {
		writeSubgrid(bw, subgrid)
	})
	return bw.err
}

// WriteCompressed serializes the grid wrapped in a zstd frame.
func (g *Grid) WriteCompressed(w io.Writer) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := g.Write(enc); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func writeSubgrid(bw *binWriter, subgrid Subgrid) {
	switch s := subgrid.(type) {
	case EmptySubgrid:
		bw.u8(subgridTagEmpty)
	case *InterpSubgrid:
		bw.u8(subgridTagInterp)
		writePackedArray(bw, s.array)
		bw.floats(s.staticNodes)
		bw.u64(uint64(len(s.staticOff)))
		for _, off := range s.staticOff {
			if off {
				bw.u8(1)
			} else {
				bw.u8(0)
			}
		}
	case *ImportSubgrid:
		bw.u8(subgridTagImport)
		writePackedArray(bw, s.array)
		bw.u64(uint64(len(s.nodeValues)))
		for _, nodes := range s.nodeValues {
			bw.floats(nodes)
		}
	default:
		if bw.err == nil {
			bw.err = fmt.Errorf("cannot serialize subgrid type %T", subgrid)
		}
	}
}

func writePackedArray(bw *binWriter, array *PackedArray) {
	bw.ints(array.shape)
	bw.floats(array.entries)
	bw.ints(array.startIndices)
	bw.ints(array.lengths)
}

// Read deserializes a grid, transparently decompressing zstd input.
func Read(r io.Reader) (*Grid, error) {
	buffered := bufio.NewReader(r)
	head, err := buffered.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if bytes.Equal(head, zstdMagic[:]) {
		dec, err := zstd.NewReader(buffered)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return readPlain(dec)
	}
	return readPlain(buffered)
}

func readPlain(r io.Reader) (*Grid, error) {
	br := &binReader{r: r}

	var magic [8]byte
	br.read(&magic)
	if br.err == nil && magic != fileMagic {
		return nil, fmt.Errorf("bad magic %q: %w", magic[:], ErrBadFormat)
	}
	version := br.u64()
	if br.err == nil && version != fileVersion {
		return nil, fmt.Errorf("unsupported version %d: %w", version, ErrBadFormat)
	}

	metadata := make(map[string]string)
	for i, n := 0, br.length(); i < n && br.err == nil; i++ {
		key := br.str()
		metadata[key] = br.str()
	}

	pidBasis := PidBasis(br.u64())

	convolutions := make([]Conv, br.length())
	for i := range convolutions {
		convolutions[i] = Conv{Type: ConvType(br.u64()), PID: int32(br.i64())}
	}

	orders := make([]Order, br.length())
	for i := range orders {
		orders[i] = Order{
			AlphaS: br.u8(),
			Alpha:  br.u8(),
			LogXiR: br.u8(),
			LogXiF: br.u8(),
			LogXiA: br.u8(),
		}
	}

	channels := make([]Channel, br.length())
	for i := range channels {
		terms := make([]ChannelTerm, br.length())
		for t := range terms {
			pids := make([]int32, br.length())
			for p := range pids {
				pids[p] = int32(br.i64())
			}
			terms[t] = ChannelTerm{PIDs: pids, Factor: br.f64()}
		}
		if br.err != nil {
			return nil, br.err
		}
		channels[i] = NewChannel(terms)
	}

	fillLimits := br.floats()
	bins := make([]Bin, br.length())
	for i := range bins {
		limits := make([][2]float64, br.length())
		for d := range limits {
			limits[d][0] = br.f64()
			limits[d][1] = br.f64()
		}
		normalization := br.f64()
		if br.err != nil {
			return nil, br.err
		}
		bins[i] = NewBin(limits, normalization)
	}

	kinematics := make([]Kinematics, br.length())
	for i := range kinematics {
		kinematics[i] = Kinematics{Kind: KinematicsKind(br.u64()), Index: int(br.u64())}
	}

	var forms [3]ScaleFuncForm
	for i := range forms {
		forms[i] = ScaleFuncForm{
			Kind: ScaleFuncKind(br.u64()),
			Idx1: int(br.u64()),
			Idx2: int(br.u64()),
		}
	}
	scales := Scales{Ren: forms[0], Fac: forms[1], Frg: forms[2]}

	interps := make([]Interp, br.length())
	for i := range interps {
		interps[i] = Interp{
			min:      br.f64(),
			max:      br.f64(),
			nodes:    int(br.u64()),
			order:    int(br.u64()),
			reweight: ReweightMeth(br.u64()),
			mapping:  Map(br.u64()),
			method:   InterpMeth(br.u64()),
		}
	}
	if br.err != nil {
		return nil, br.err
	}

	bwfl, err := NewBinsWithFillLimits(bins, fillLimits)
	if err != nil {
		return nil, err
	}

	g := &Grid{
		pidBasis:     pidBasis,
		channels:     channels,
		orders:       orders,
		bwfl:         bwfl,
		convolutions: convolutions,
		interps:      interps,
		kinematics:   kinematics,
		scales:       scales,
		metadata:     metadata,
	}
	g.subgrids = emptySubgrids(len(orders), bwfl.Len(), len(channels))

	for o := range g.subgrids {
		for b := range g.subgrids[o] {
			for c := range g.subgrids[o][b] {
				subgrid, err := readSubgrid(br, interps)
				if err != nil {
					return nil, err
				}
				g.subgrids[o][b][c] = subgrid
			}
		}
	}
	return g, br.err
}

func readSubgrid(br *binReader, interps []Interp) (Subgrid, error) {
	tag := br.u8()
	if br.err != nil {
		return nil, br.err
	}
	switch tag {
	case subgridTagEmpty:
		return EmptySubgrid{}, nil
	case subgridTagInterp:
		array := readPackedArray(br)
		staticNodes := br.floats()
		staticOff := make([]bool, br.length())
		for i := range staticOff {
			staticOff[i] = br.u8() != 0
		}
		if br.err != nil {
			return nil, br.err
		}
		return &InterpSubgrid{
			array:       array,
			interps:     append([]Interp(nil), interps...),
			staticNodes: staticNodes,
			staticOff:   staticOff,
		}, nil
	case subgridTagImport:
		array := readPackedArray(br)
		nodeValues := make([][]float64, br.length())
		for i := range nodeValues {
			nodeValues[i] = br.floats()
		}
		if br.err != nil {
			return nil, br.err
		}
		return NewImportSubgrid(array, nodeValues), nil
	}
	return nil, fmt.Errorf("unknown subgrid tag %d: %w", tag, ErrBadFormat)
}

func readPackedArray(br *binReader) *PackedArray {
	return &PackedArray{
		shape:        br.ints(),
		entries:      br.floats(),
		startIndices: br.ints(),
		lengths:      br.ints(),
	}
}
