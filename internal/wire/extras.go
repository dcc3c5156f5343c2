package wire

import "encoding/binary"

// StoreExtras is the 8-byte extras payload for SET/ADD/REPLACE.
type StoreExtras struct {
	Flags      uint32
	Expiration uint32
}

// DecodeStoreExtras parses an 8-byte SET/ADD/REPLACE extras block.
func DecodeStoreExtras(buf []byte) StoreExtras {
	return StoreExtras{
		Flags:      binary.BigEndian.Uint32(buf[0:4]),
		Expiration: binary.BigEndian.Uint32(buf[4:8]),
	}
}

// Encode writes the extras back out, e.g. for echoing flags on a GET response.
func (e StoreExtras) Encode(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], e.Flags)
	binary.BigEndian.PutUint32(buf[4:8], e.Expiration)
}

// DeltaExtras is the 20-byte extras payload for INCREMENT/DECREMENT.
type DeltaExtras struct {
	Delta      uint64
	Initial    uint64
	Expiration uint32
}

// DecodeDeltaExtras parses a 20-byte INCREMENT/DECREMENT extras block.
func DecodeDeltaExtras(buf []byte) DeltaExtras {
	return DeltaExtras{
		Delta:      binary.BigEndian.Uint64(buf[0:8]),
		Initial:    binary.BigEndian.Uint64(buf[8:16]),
		Expiration: binary.BigEndian.Uint32(buf[16:20]),
	}
}

// GetResponseExtras is the 4-byte flags-only extras block on a GET/GETK
// response.
type GetResponseExtras struct {
	Flags uint32
}

func (e GetResponseExtras) Encode(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], e.Flags)
}
