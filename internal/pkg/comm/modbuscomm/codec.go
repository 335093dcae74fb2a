package modbuscomm

import (
	"encoding/binary"
	"math"
)

// encode converts a float64 into register bytes
func encode(val float64, register Register) []byte {
	bytes := make([]byte, 2*sizeOf(register.DataType))
	endian := byteOrder(register.Endianness)
	switch register.DataType {
	case u16:
		endian.PutUint16(bytes, uint16(val))
	case i16:
		endian.PutUint16(bytes, uint16(int16(val)))
	case u32:
		endian.PutUint32(bytes, uint32(val))
	case i32:
		endian.PutUint32(bytes, uint32(int32(val)))
	case f32:
		endian.PutUint32(bytes, math.Float32bits(float32(val)))
	case u64:
		endian.PutUint64(bytes, uint64(val))
	case i64:
		endian.PutUint64(bytes, uint64(int64(val)))
	case f64:
		endian.PutUint64(bytes, math.Float64bits(val))
	}
	return bytes
}

// decode converts register bytes into a float64. Short responses decode to 0.
func decode(bytes []byte, register Register) float64 {
	if len(bytes) < int(2*sizeOf(register.DataType)) {
		return 0
	}
	endian := byteOrder(register.Endianness)
	switch register.DataType {
	case u16:
		return float64(endian.Uint16(bytes))
	case i16:
		return float64(int16(endian.Uint16(bytes)))
	case u32:
		return float64(endian.Uint32(bytes))
	case i32:
		return float64(int32(endian.Uint32(bytes)))
	case f32:
		return float64(math.Float32frombits(endian.Uint32(bytes)))
	case u64:
		return float64(endian.Uint64(bytes))
	case i64:
		return float64(int64(endian.Uint64(bytes)))
	case f64:
		return math.Float64frombits(endian.Uint64(bytes))
	}
	return 0
}

func byteOrder(e Endian) binary.ByteOrder {
	if e == littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// sizeOf returns the number of u16 registers for the datatype
func sizeOf(t DataType) uint16 {
	switch t {
	case u16, i16:
		return 1
	case u32, i32, f32:
		return 2
	case u64, i64, f64:
		return 4
	}
	return 0
}
