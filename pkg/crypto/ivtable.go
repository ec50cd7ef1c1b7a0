package crypto

import "encoding/binary"

// ivEntry is the decoded form of one IVTable slot (§4.7): the current
// IV/HMAC pair used to authenticate the live ciphertext, and the previous
// pair kept around so a crash between the metadata write and the data
// write can be detected and recovered from.
type ivEntry struct {
	ivCurrent    uint32
	hmacCurrent  [hmacSize]byte
	ivPrevious   uint32
	hmacPrevious [hmacSize]byte
}

func decodeEntry(buf []byte) ivEntry {
	var e ivEntry

	e.ivCurrent = binary.LittleEndian.Uint32(buf[0:4])
	copy(e.hmacCurrent[:], buf[4:4+hmacSize])
	e.ivPrevious = binary.LittleEndian.Uint32(buf[4+hmacSize : 8+hmacSize])
	copy(e.hmacPrevious[:], buf[8+hmacSize:8+2*hmacSize])

	return e
}

func (e ivEntry) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], e.ivCurrent)
	copy(buf[4:4+hmacSize], e.hmacCurrent[:])
	binary.LittleEndian.PutUint32(buf[4+hmacSize:8+hmacSize], e.ivPrevious)
	copy(buf[8+hmacSize:8+2*hmacSize], e.hmacPrevious[:])
}

// readEntry decodes the IVTable slot for data page i out of its metadata
// page's raw bytes.
func readEntry(metadataPage []byte, i int) ivEntry {
	off := entryOffsetWithinMetadataPage(i)
	return decodeEntry(metadataPage[off : off+entrySize])
}

// writeEntry encodes e into data page i's slot within metadataPage.
func writeEntry(metadataPage []byte, i int, e ivEntry) {
	off := entryOffsetWithinMetadataPage(i)
	e.encode(metadataPage[off : off+entrySize])
}
