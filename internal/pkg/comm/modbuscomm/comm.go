package modbuscomm

import "errors"

// ErrNoRegister is returned when a name matches no register.
var ErrNoRegister = errors.New("register name not found in register array")

// ModbusComm reads and writes named registers of a target.
type ModbusComm interface {
	Read([]Register) (map[string]float64, error)
	Write([]Register, map[string]float64) error
}

// DataType defines the type of Modbus register for encoding/decoding
type DataType string

// Constants of DataType
const (
	u16 DataType = "u16"
	u32 DataType = "u32"
	u64 DataType = "u64"
	i16 DataType = "i16"
	i32 DataType = "i32"
	i64 DataType = "i64"
	f32 DataType = "f32"
	f64 DataType = "f64"
)

// Access is the register read/write type
type Access string

const (
	ro Access = "read-only"
	wo Access = "write-only"
	rw Access = "read-write"
)

// Endian byte order of Modbus register for encoding/decoding
type Endian string

// Constants of Endian
const (
	littleEndian Endian = "little"
	bigEndian    Endian = "big"
)

// Register maps a simulation input onto a holding register. Scale and Offset
// convert the raw register value: value = raw*Scale + Offset.
type Register struct {
	Name       string   `json:"Name"`
	Address    uint16   `json:"Address"`
	DataType   DataType `json:"DataType"`
	AccessType Access   `json:"Access"`
	Endianness Endian   `json:"Endianness"`
	Scale      float64  `json:"Scale"`
	Offset     float64  `json:"Offset"`
}

// value converts a raw register reading.
func (r Register) value(raw float64) float64 {
	scale := r.Scale
	if scale == 0 {
		scale = 1
	}
	return raw*scale + r.Offset
}

// FilterRegisters returns registers from array with matching access type
func FilterRegisters(r []Register, a Access) []Register {
	filtered := make([]Register, 0)
	for _, reg := range r {
		if reg.AccessType == a || reg.AccessType == rw {
			filtered = append(filtered, reg)
		}
	}
	return filtered
}

func findIndexByName(registers []Register, name string) (int, error) {
	for index, register := range registers {
		if register.Name == name {
			return index, nil
		}
	}
	return -1, ErrNoRegister
}
