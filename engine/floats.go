package engine

import (
	"encoding/binary"
	"math"

	fjord "github.com/fjordsim/fjord"
)

// ReadFloat64s decodes n little-endian float64 values starting at ptr
// into dst. len(dst) must be at least n.
func ReadFloat64s(mem fjord.Memory, ptr uint32, dst []float64, n int) error {
	raw, err := mem.Read(ptr, uint32(n*8))
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint64(raw[i*8:])
		dst[i] = math.Float64frombits(bits)
	}
	return nil
}

// WriteFloat64s encodes src as little-endian float64 values at ptr.
func WriteFloat64s(mem fjord.Memory, ptr uint32, src []float64) error {
	raw := make([]byte, len(src)*8)
	for i, v := range src {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	return mem.Write(ptr, raw)
}

// ReadString decodes a packed fat pointer (pointer in the upper 32 bits,
// length in the lower 32) returned by an engine export.
func ReadString(mem fjord.Memory, packed uint64) (string, error) {
	ptr := uint32(packed >> 32)
	length := uint32(packed)
	if length == 0 {
		return "", nil
	}
	raw, err := mem.Read(ptr, length)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
