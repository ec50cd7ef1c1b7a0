package alloc

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Header is the fixed preamble of a pakdb file: magic, format version, and
// the two top-ref slots the transaction manager swaps between on commit
// (§4.3's crash-safe commit sequence). All integers are little-endian; all
// refs are 8-byte file offsets, matching the on-disk layout described in the
// external interfaces section.
const (
	magic          = "PAK1"
	formatVersion  = uint16(1)
	headerSize     = 64
	headerCRCField = 60 // offset of the trailing CRC32-C
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Header mirrors the on-disk layout byte for byte.
type Header struct {
	FormatVersion  uint16
	TopRefSelector uint8    // 0 or 1: which of TopRef[2] is current
	TopRef         [2]uint64
	Version        uint64 // monotonically increasing commit version
	Salt           uint32 // lets the lock file's ring buffer detect stale readers
	FileSize       uint64
	HistoryRef     uint64 // §4.9: history ref committed atomically with TopRef
}

// EncodeHeader serializes h into a headerSize-byte buffer with a trailing
// CRC32-Castagnoli checksum, following the same "zero the CRC field, hash,
// write the hash back" idiom the teacher's slotcache format uses.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.FormatVersion)
	buf[6] = h.TopRefSelector
	binary.LittleEndian.PutUint64(buf[8:16], h.TopRef[0])
	binary.LittleEndian.PutUint64(buf[16:24], h.TopRef[1])
	binary.LittleEndian.PutUint64(buf[24:32], h.Version)
	binary.LittleEndian.PutUint32(buf[32:36], h.Salt)
	binary.LittleEndian.PutUint64(buf[36:44], h.FileSize)
	binary.LittleEndian.PutUint64(buf[44:52], h.HistoryRef)

	crc := crc32.Checksum(buf[:headerCRCField], crcTable)
	binary.LittleEndian.PutUint32(buf[headerCRCField:headerCRCField+4], crc)

	return buf
}

// DecodeHeader parses and validates a headerSize-byte buffer produced by
// EncodeHeader, returning ErrInvalidDatabase on magic mismatch, unsupported
// format version, or a failed CRC check.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, fmt.Errorf("%w: short header (%d bytes)", ErrInvalidDatabase, len(buf))
	}

	if string(buf[0:4]) != magic {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrInvalidDatabase, buf[0:4])
	}

	wantCRC := binary.LittleEndian.Uint32(buf[headerCRCField : headerCRCField+4])
	gotCRC := crc32.Checksum(buf[:headerCRCField], crcTable)

	if wantCRC != gotCRC {
		return Header{}, fmt.Errorf("%w: header checksum mismatch", ErrInvalidDatabase)
	}

	h := Header{
		FormatVersion:  binary.LittleEndian.Uint16(buf[4:6]),
		TopRefSelector: buf[6],
		Version:        binary.LittleEndian.Uint64(buf[24:32]),
		Salt:           binary.LittleEndian.Uint32(buf[32:36]),
		FileSize:       binary.LittleEndian.Uint64(buf[36:44]),
		HistoryRef:     binary.LittleEndian.Uint64(buf[44:52]),
	}
	h.TopRef[0] = binary.LittleEndian.Uint64(buf[8:16])
	h.TopRef[1] = binary.LittleEndian.Uint64(buf[16:24])

	if h.FormatVersion != formatVersion {
		return Header{}, fmt.Errorf("%w: format version %d unsupported", ErrInvalidDatabase, h.FormatVersion)
	}

	if h.TopRefSelector > 1 {
		return Header{}, fmt.Errorf("%w: bad top-ref selector %d", ErrInvalidDatabase, h.TopRefSelector)
	}

	return h, nil
}

// CurrentTopRef returns the top ref the selector currently designates.
func (h Header) CurrentTopRef() uint64 {
	return h.TopRef[h.TopRefSelector]
}

// WithNewTopRef returns a copy of h with the *other* slot set to ref and
// selected as current, implementing the two-slot swap: the previously
// current slot is left untouched so a crash between fsync and slot-flip
// still finds a valid prior top ref.
func (h Header) WithNewTopRef(ref uint64, newVersion uint64) Header {
	next := h
	otherSlot := 1 - h.TopRefSelector
	next.TopRef[otherSlot] = ref
	next.TopRefSelector = otherSlot
	next.Version = newVersion

	return next
}
