package pcode

// Symbol is a compiler-produced entry describing one variable.
type Symbol struct {
	Name   string `json:"name" cbor:"1,keyasint"`
	Addr   uint32 `json:"addr" cbor:"2,keyasint"`
	Type   string `json:"type" cbor:"3,keyasint"`
	Global bool   `json:"global" cbor:"4,keyasint"`
}

// MemInit presets one memory cell before the program starts.
type MemInit struct {
	Addr  uint32 `json:"addr" cbor:"1,keyasint"`
	Value int32  `json:"value" cbor:"2,keyasint"`
}
