package sdrcache

// Stamp identifies a revision of the BMC's sensor data repository. The
// cache is valid only while the BMC reports the same stamp.
type Stamp struct {
	RecordCount  uint16
	LastAddition uint32
	LastErase    uint32
}

// Record is one raw SDR entry, header included.
type Record struct {
	ID   uint16
	Type uint8
	Data []byte
}
