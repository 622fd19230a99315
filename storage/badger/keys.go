package badger

import (
	"encoding/binary"

	"github.com/poiesic/circulate/core"
)

// Key prefixes for different data types
const (
	bookPrefix          = "book:"
	bookOrderPrefix     = "bkord:"
	bookSeqPrefix       = "bkseq:"
	bookHolderCount     = "bkcnt:"
	borrowerPrefix      = "brwr:"
	borrowerHeldCount   = "brcnt:"
	indexPrefix         = "idx:"
	bookHoldersPrefix   = "co:b:"
	borrowerBooksPrefix = "co:u:"
	bookSeqName         = "seq:book"
)

func makeBookKey(isbn string) []byte {
	return []byte(bookPrefix + isbn)
}

func makeBorrowerKey(username string) []byte {
	return []byte(borrowerPrefix + username)
}

// makeBookOrderKey maps an ISBN to its insertion sequence number.
func makeBookOrderKey(isbn string) []byte {
	return []byte(bookOrderPrefix + isbn)
}

// makeBookSeqKey generates the insertion-order key for a book.
// Format: prefix:seq, BigEndian so lexicographic order is insertion order.
func makeBookSeqKey(seq uint64) []byte {
	buf := make([]byte, len(bookSeqPrefix)+8)
	offset := copy(buf, bookSeqPrefix)
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

func makeBookHolderCountKey(isbn string) []byte {
	return []byte(bookHolderCount + isbn)
}

func makeBorrowerHeldCountKey(username string) []byte {
	return []byte(borrowerHeldCount + username)
}

// makeFingerprintPrefix generates a fixed-width prefix for a free-form value.
// Format: prefix:fingerprint
func makeFingerprintPrefix(prefix, value string) []byte {
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], core.Fingerprint(value))
	return buf
}

// makeIndexPrefix generates the scan prefix for all keys indexed under value.
// Format: idx:attr:fingerprint(value)
func makeIndexPrefix(attr core.Attribute, value string) []byte {
	return makeFingerprintPrefix(indexPrefix+string(attr)+":", value)
}

// makeIndexKey generates an index entry key. The entry's value holds the
// attribute value so fingerprint collisions can be filtered on read.
// Format: idx:attr:fingerprint(value)key
func makeIndexKey(attr core.Attribute, value, key string) []byte {
	return append(makeIndexPrefix(attr, value), key...)
}

// makeHoldersPrefix generates the scan prefix for the borrowers of a book.
func makeHoldersPrefix(isbn string) []byte {
	return makeFingerprintPrefix(bookHoldersPrefix, isbn)
}

// makeHolderKey generates the book -> borrower ledger key. Its value is the ISBN.
func makeHolderKey(isbn, username string) []byte {
	return append(makeHoldersPrefix(isbn), username...)
}

// makeHeldPrefix generates the scan prefix for the books held by a borrower.
func makeHeldPrefix(username string) []byte {
	return makeFingerprintPrefix(borrowerBooksPrefix, username)
}

// makeHeldKey generates the borrower -> book ledger key. Its value is the username.
func makeHeldKey(username, isbn string) []byte {
	return append(makeHeldPrefix(username), isbn...)
}
