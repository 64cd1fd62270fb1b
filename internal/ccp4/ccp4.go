// SPDX-License-Identifier: MIT

// Package ccp4 reads and writes CCP4-format electron density maps.
//
// The format is a fixed 1024-byte header of 256 four-byte words, an
// optional block of 80-character symmetry records, and the voxel data.
// Only the modes that occur in PanDDA output are supported: 0 (int8),
// 1 (int16) and 2 (IEEE float32). Data is decoded to float32 in memory
// regardless of the on-disk mode.
package ccp4

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Data modes as stored in header word 4.
const (
	ModeInt8    int32 = 0
	ModeInt16   int32 = 1
	ModeFloat32 int32 = 2
)

const (
	headerSize = 1024
	magicWord  = "MAP "

	// Machine stamp first bytes: little-endian IEEE is 0x44 0x41,
	// big-endian IEEE is 0x11 0x11.
	stampLittle = 0x44
	stampBig    = 0x11

	// SymRecordSize is the length of one symmetry operator record.
	SymRecordSize = 80

	// maxSymBytes bounds the symmetry block a header may declare. No
	// spacegroup has more than 192 operators, so anything larger is a
	// corrupt or hostile header.
	maxSymBytes = 192 * SymRecordSize
)

var (
	// ErrBadMagic indicates header word 53 is not "MAP ".
	ErrBadMagic = errors.New("ccp4: bad magic, not a CCP4 map")
	// ErrUnsupportedMode indicates a data mode this package cannot decode.
	ErrUnsupportedMode = errors.New("ccp4: unsupported data mode")
	// ErrTruncated indicates the file ended before the declared data size.
	ErrTruncated = errors.New("ccp4: truncated map file")
)

// Header is the decoded CCP4 map header. Field names follow the format
// documentation rather than Go style where the two conflict, so that the
// mapping to the on-disk words stays obvious.
type Header struct {
	NC, NR, NS       int32      // axis extents (columns, rows, sections)
	Mode             int32      // data mode
	NCStart          int32      // start offsets on each axis
	NRStart, NSStart int32
	NX, NY, NZ       int32      // sampling intervals along the cell edges
	Cell             [6]float32 // a, b, c (Å), alpha, beta, gamma (deg)
	MapC, MapR, MapS int32      // axis order, 1=X 2=Y 3=Z
	AMin             float32
	AMax             float32
	AMean            float32
	ISpg             int32 // spacegroup number
	NSymBt           int32 // bytes of symmetry records following the header
	LSkFlg           int32
	SkwMat           [9]float32
	SkwTrn           [3]float32
	Extra            [15]int32 // words 38-52, preserved verbatim
	ARMS             float32
	NLabl            int32
	Labels           [800]byte // 10 x 80-char text labels
}

// Map is a fully decoded CCP4 map: header, symmetry block and voxels.
type Map struct {
	Header Header
	// Sym holds the raw symmetry records (NSymBt bytes).
	Sym []byte
	// Data holds NC*NR*NS voxels in file order, decoded to float32.
	Data []float32
}

// Voxels returns the number of data points declared by the header.
func (h *Header) Voxels() (int, error) {
	if h.NC < 0 || h.NR < 0 || h.NS < 0 {
		return 0, fmt.Errorf("ccp4: negative grid extent %dx%dx%d", h.NC, h.NR, h.NS)
	}
	n := int64(h.NC) * int64(h.NR) * int64(h.NS)
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("ccp4: grid extent %dx%dx%d overflows", h.NC, h.NR, h.NS)
	}
	return int(n), nil
}

func modeSize(mode int32) (int, error) {
	switch mode {
	case ModeInt8:
		return 1, nil
	case ModeInt16:
		return 2, nil
	case ModeFloat32:
		return 4, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedMode, mode)
	}
}

// ReadFile opens and decodes a map file.
func ReadFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open map: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

// Decode reads a complete CCP4 map from r.
func Decode(r io.Reader) (*Map, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	if !bytes.Equal(raw[208:212], []byte(magicWord)) {
		return nil, ErrBadMagic
	}

	order := detectByteOrder(raw)

	var h Header
	h.NC = getInt32(raw, 0, order)
	h.NR = getInt32(raw, 4, order)
	h.NS = getInt32(raw, 8, order)
	h.Mode = getInt32(raw, 12, order)
	h.NCStart = getInt32(raw, 16, order)
	h.NRStart = getInt32(raw, 20, order)
	h.NSStart = getInt32(raw, 24, order)
	h.NX = getInt32(raw, 28, order)
	h.NY = getInt32(raw, 32, order)
	h.NZ = getInt32(raw, 36, order)
	for i := range h.Cell {
		h.Cell[i] = getFloat32(raw, 40+4*i, order)
	}
	h.MapC = getInt32(raw, 64, order)
	h.MapR = getInt32(raw, 68, order)
	h.MapS = getInt32(raw, 72, order)
	h.AMin = getFloat32(raw, 76, order)
	h.AMax = getFloat32(raw, 80, order)
	h.AMean = getFloat32(raw, 84, order)
	h.ISpg = getInt32(raw, 88, order)
	h.NSymBt = getInt32(raw, 92, order)
	h.LSkFlg = getInt32(raw, 96, order)
	for i := range h.SkwMat {
		h.SkwMat[i] = getFloat32(raw, 100+4*i, order)
	}
	for i := range h.SkwTrn {
		h.SkwTrn[i] = getFloat32(raw, 136+4*i, order)
	}
	for i := range h.Extra {
		h.Extra[i] = getInt32(raw, 148+4*i, order)
	}
	h.ARMS = getFloat32(raw, 216, order)
	h.NLabl = getInt32(raw, 220, order)
	copy(h.Labels[:], raw[224:1024])

	if _, err := modeSize(h.Mode); err != nil {
		return nil, err
	}
	if h.NSymBt < 0 || h.NSymBt > maxSymBytes {
		return nil, fmt.Errorf("ccp4: implausible symmetry block size %d", h.NSymBt)
	}

	sym := make([]byte, h.NSymBt)
	if _, err := io.ReadFull(r, sym); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("read symmetry block: %w", err)
	}

	data, err := decodeData(r, &h, order)
	if err != nil {
		return nil, err
	}

	return &Map{Header: h, Sym: sym, Data: data}, nil
}

func decodeData(r io.Reader, h *Header, order binary.ByteOrder) ([]float32, error) {
	n, err := h.Voxels()
	if err != nil {
		return nil, err
	}
	size, err := modeSize(h.Mode)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, n*size)
	if _, err := io.ReadFull(r, raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("read data block: %w", err)
	}

	data := make([]float32, n)
	switch h.Mode {
	case ModeInt8:
		for i := 0; i < n; i++ {
			data[i] = float32(int8(raw[i]))
		}
	case ModeInt16:
		for i := 0; i < n; i++ {
			data[i] = float32(int16(order.Uint16(raw[2*i:])))
		}
	case ModeFloat32:
		for i := 0; i < n; i++ {
			data[i] = math.Float32frombits(order.Uint32(raw[4*i:]))
		}
	}
	return data, nil
}

// WriteFile encodes m to the named file, creating or truncating it.
// Callers that need atomic replacement should encode to a temp file
// themselves; the jobs package does this via renameio.
func WriteFile(path string, m *Map) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create map: %w", err)
	}
	if err := Encode(f, m); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close map: %w", err)
	}
	return nil
}

// Encode writes m to w in little-endian byte order with a matching
// machine stamp. The header's NSymBt is forced to len(m.Sym) so the
// two can never disagree on disk.
func Encode(w io.Writer, m *Map) error {
	h := m.Header // copy; encoding must not mutate the caller's map
	h.NSymBt = int32(len(m.Sym))

	n, err := h.Voxels()
	if err != nil {
		return err
	}
	if n != len(m.Data) {
		return fmt.Errorf("ccp4: header declares %d voxels, map holds %d", n, len(m.Data))
	}
	size, err := modeSize(h.Mode)
	if err != nil {
		return err
	}

	order := binary.LittleEndian
	raw := make([]byte, headerSize)
	putInt32(raw, 0, h.NC, order)
	putInt32(raw, 4, h.NR, order)
	putInt32(raw, 8, h.NS, order)
	putInt32(raw, 12, h.Mode, order)
	putInt32(raw, 16, h.NCStart, order)
	putInt32(raw, 20, h.NRStart, order)
	putInt32(raw, 24, h.NSStart, order)
	putInt32(raw, 28, h.NX, order)
	putInt32(raw, 32, h.NY, order)
	putInt32(raw, 36, h.NZ, order)
	for i, v := range h.Cell {
		putFloat32(raw, 40+4*i, v, order)
	}
	putInt32(raw, 64, h.MapC, order)
	putInt32(raw, 68, h.MapR, order)
	putInt32(raw, 72, h.MapS, order)
	putFloat32(raw, 76, h.AMin, order)
	putFloat32(raw, 80, h.AMax, order)
	putFloat32(raw, 84, h.AMean, order)
	putInt32(raw, 88, h.ISpg, order)
	putInt32(raw, 92, h.NSymBt, order)
	putInt32(raw, 96, h.LSkFlg, order)
	for i, v := range h.SkwMat {
		putFloat32(raw, 100+4*i, v, order)
	}
	for i, v := range h.SkwTrn {
		putFloat32(raw, 136+4*i, v, order)
	}
	for i, v := range h.Extra {
		putInt32(raw, 148+4*i, v, order)
	}
	copy(raw[208:212], magicWord)
	raw[212] = stampLittle
	raw[213] = 0x41
	putFloat32(raw, 216, h.ARMS, order)
	putInt32(raw, 220, h.NLabl, order)
	copy(raw[224:1024], h.Labels[:])

	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if len(m.Sym) > 0 {
		if _, err := w.Write(m.Sym); err != nil {
			return fmt.Errorf("write symmetry block: %w", err)
		}
	}

	buf := make([]byte, n*size)
	switch h.Mode {
	case ModeInt8:
		for i, v := range m.Data {
			buf[i] = byte(int8(clamp(v, math.MinInt8, math.MaxInt8)))
		}
	case ModeInt16:
		for i, v := range m.Data {
			order.PutUint16(buf[2*i:], uint16(int16(clamp(v, math.MinInt16, math.MaxInt16))))
		}
	case ModeFloat32:
		for i, v := range m.Data {
			order.PutUint32(buf[4*i:], math.Float32bits(v))
		}
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write data block: %w", err)
	}
	return nil
}

func clamp(v float32, lo, hi int) int {
	r := int(math.Round(float64(v)))
	if r < lo {
		return lo
	}
	if r > hi {
		return hi
	}
	return r
}

// IdentitySymRecord returns the single 80-character "X,  Y,  Z"
// operator record a P 1 symmetry block carries.
func IdentitySymRecord() []byte {
	rec := make([]byte, SymRecordSize)
	for i := range rec {
		rec[i] = ' '
	}
	copy(rec, "X,  Y,  Z")
	return rec
}

// SetSpacegroup sets ISPG to num and rewrites the symmetry block to
// match. P 1 gets the single identity operator, the same rewrite gemmi
// performs for event maps; any other group gets an empty block, since
// the operator lists are not tabulated here.
func (m *Map) SetSpacegroup(num int32) {
	m.Header.ISpg = num
	if num != SpacegroupP1 {
		m.Sym = nil
		m.Header.NSymBt = 0
		return
	}
	m.Sym = IdentitySymRecord()
	m.Header.NSymBt = SymRecordSize
}

// SetSpacegroupP1 forces the map into spacegroup P 1.
func (m *Map) SetSpacegroupP1() {
	m.SetSpacegroup(SpacegroupP1)
}

// UpdateHeader sets the data mode and, when updateStats is true, recomputes
// AMin/AMax/AMean/ARMS from the decoded data. It mirrors gemmi's
// update_ccp4_header(mode, update_stats).
func (m *Map) UpdateHeader(mode int32, updateStats bool) error {
	if _, err := modeSize(mode); err != nil {
		return err
	}
	m.Header.Mode = mode
	if updateStats {
		m.Header.AMin, m.Header.AMax, m.Header.AMean, m.Header.ARMS = Stats(m.Data)
	}
	return nil
}

// Stats returns min, max, mean and population RMS deviation of data.
// An empty slice yields all zeros.
func Stats(data []float32) (amin, amax, amean, arms float32) {
	if len(data) == 0 {
		return 0, 0, 0, 0
	}
	minV := float64(data[0])
	maxV := float64(data[0])
	var sum float64
	for _, v := range data {
		f := float64(v)
		if f < minV {
			minV = f
		}
		if f > maxV {
			maxV = f
		}
		sum += f
	}
	mean := sum / float64(len(data))
	var sq float64
	for _, v := range data {
		d := float64(v) - mean
		sq += d * d
	}
	rms := math.Sqrt(sq / float64(len(data)))
	return float32(minV), float32(maxV), float32(mean), float32(rms)
}

// detectByteOrder inspects the machine stamp, falling back to a mode-word
// plausibility check for files with a zeroed stamp.
func detectByteOrder(raw []byte) binary.ByteOrder {
	switch raw[212] {
	case stampLittle:
		return binary.LittleEndian
	case stampBig:
		return binary.BigEndian
	}
	// Old writers leave the stamp empty. The mode word is tiny, so the
	// wrong byte order turns it into a huge value.
	if mode := int32(binary.LittleEndian.Uint32(raw[12:16])); mode >= 0 && mode <= 6 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func getInt32(b []byte, off int, order binary.ByteOrder) int32 {
	return int32(order.Uint32(b[off:]))
}

func getFloat32(b []byte, off int, order binary.ByteOrder) float32 {
	return math.Float32frombits(order.Uint32(b[off:]))
}

func putInt32(b []byte, off int, v int32, order binary.ByteOrder) {
	order.PutUint32(b[off:], uint32(v))
}

func putFloat32(b []byte, off int, v float32, order binary.ByteOrder) {
	order.PutUint32(b[off:], math.Float32bits(v))
}
