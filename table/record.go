package table

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// MaxUsernameLen and MaxEmailLen are the maximum payload lengths; each
	// field reserves one extra byte for a null terminator.
	MaxUsernameLen = 32
	MaxEmailLen    = 255

	usernameFieldSize = MaxUsernameLen + 1
	emailFieldSize    = MaxEmailLen + 1

	idOffset       = 0
	usernameOffset = idOffset + 4
	emailOffset    = usernameOffset + usernameFieldSize

	// RecordSize is the fixed in-memory and on-disk width of a record:
	// 4 (id) + 33 (username) + 256 (email) = 293 bytes. This is the sum
	// of field widths, not sizeof-with-padding.
	RecordSize = emailOffset + emailFieldSize
)

// ErrStringTooLong is returned when a field exceeds its maximum payload
// length, leaving no room for the null terminator.
var ErrStringTooLong = errors.New("table: string field too long")

// Record is the one fixed-width value type this store carries.
type Record struct {
	ID       uint32
	Username string
	Email    string
}

// Serialize writes r into dst, which must be exactly RecordSize bytes.
// Each string field is copied across its full field width — including
// the zero bytes past the terminator — rather than just its payload, so
// deserialize can recover the exact trailing bytes on a round trip.
func Serialize(r Record, dst []byte) error {
	if len(dst) != RecordSize {
		return errors.Errorf("table: serialize dst has length %d, want %d", len(dst), RecordSize)
	}
	if len(r.Username) > MaxUsernameLen {
		return errors.Wrapf(ErrStringTooLong, "username %q", r.Username)
	}
	if len(r.Email) > MaxEmailLen {
		return errors.Wrapf(ErrStringTooLong, "email %q", r.Email)
	}

	for i := range dst {
		dst[i] = 0
	}
	binary.LittleEndian.PutUint32(dst[idOffset:], r.ID)
	copy(dst[usernameOffset:usernameOffset+usernameFieldSize], r.Username)
	copy(dst[emailOffset:emailOffset+emailFieldSize], r.Email)
	return nil
}

// Deserialize reads a Record back out of src, which must be exactly
// RecordSize bytes.
func Deserialize(src []byte) (Record, error) {
	if len(src) != RecordSize {
		return Record{}, errors.Errorf("table: deserialize src has length %d, want %d", len(src), RecordSize)
	}
	r := Record{ID: binary.LittleEndian.Uint32(src[idOffset:])}
	r.Username = cString(src[usernameOffset : usernameOffset+usernameFieldSize])
	r.Email = cString(src[emailOffset : emailOffset+emailFieldSize])
	return r, nil
}

// cString trims a fixed-width, null-terminated byte field down to its
// payload: everything before the first zero byte.
func cString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return string(field[:i])
	}
	return string(field)
}
