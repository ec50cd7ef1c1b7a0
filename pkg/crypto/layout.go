package crypto

// PageSize is the size of one data or metadata page on disk.
const PageSize = 4096

// pagesPerGroup is the number of data pages covered by one metadata page
// (§4.7: "every 64 data pages are followed by one 4 KiB metadata page").
const pagesPerGroup = 64

// groupSize is the number of physical pages per group including its
// trailing metadata page.
const groupSize = pagesPerGroup + 1

// PagesPerGroup is pagesPerGroup exported for pkg/alloc, which must grow an
// encrypted file in whole-group increments so every data page it maps always
// has its metadata page mapped alongside it.
const PagesPerGroup = pagesPerGroup

// GroupLogicalBytes and GroupPhysicalBytes are the logical (plaintext-view)
// and physical (on-disk) byte span of one full page group, the unit
// pkg/alloc grows an encrypted file by.
const (
	GroupLogicalBytes  = PagesPerGroup * PageSize
	GroupPhysicalBytes = groupSize * PageSize
)

// entrySize is the encoded size of one IVTable entry: iv_current(4) +
// hmac_current(28) + iv_previous(4) + hmac_previous(28) = 64 bytes, so 64
// entries fill the 4096-byte metadata page exactly.
const entrySize = 4 + 28 + 4 + 28

// hmacSize is the truncated-to-full SHA-224 digest size used to
// authenticate each page.
const hmacSize = 28

// PhysicalOffset maps a logical (plaintext-view) file offset to its
// physical (on-disk) offset, accounting for one metadata page inserted
// every 65 physical pages, per §4.7's offset-mapping formula.
func PhysicalOffset(logical int64) int64 {
	a := logical/PageSize + 1
	ceilDiv := (a + 65 - 1) / 65

	return logical + ceilDiv*PageSize
}

// LogicalOffset is the inverse of PhysicalOffset.
func LogicalOffset(physical int64) int64 {
	return physical - (((physical/PageSize)+64)/65)*PageSize
}

// dataPagePhysicalOffset and metadataPagePhysicalOffset locate, for data page index i
// (0-based, logical page numbering), the physical byte offset of its
// ciphertext and of the metadata page holding its IVTable entry.
func dataPagePhysicalOffset(i int) int64 {
	group := i / pagesPerGroup
	within := i % pagesPerGroup

	return int64(group)*groupSize*PageSize + int64(within)*PageSize
}

func metadataPagePhysicalOffset(i int) int64 {
	group := i / pagesPerGroup

	return int64(group)*groupSize*PageSize + pagesPerGroup*PageSize
}

func entryOffsetWithinMetadataPage(i int) int {
	return (i % pagesPerGroup) * entrySize
}
