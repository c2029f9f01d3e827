package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// Position tape tokens concatenate a fixed-width numeric location identifier
// with a zero-padded centimeter offset. A scan of "%000123450150" decodes to
// tape id 12345 at 150cm into the slot.
const (
	TapeIDWidth     = 8
	TapeOffsetWidth = 4
)

// Errors
var (
	ErrInvalidTape = errors.New("invalid position tape token")
)

// TapeScan is a decoded position-tape token
type TapeScan struct {
	TapeID   int64
	OffsetCm int
}

// EncodeTape renders a tape identifier and offset as the digits printed on
// the physical tape strip
func EncodeTape(tapeID int64, offsetCm int) string {
	return fmt.Sprintf("%0*d%0*d", TapeIDWidth, tapeID, TapeOffsetWidth, offsetCm)
}

// DecodeTape parses the digits of a position-tape scan
func DecodeTape(token string) (TapeScan, error) {
	if len(token) != TapeIDWidth+TapeOffsetWidth {
		return TapeScan{}, fmt.Errorf("%w: expected %d digits, got %d", ErrInvalidTape, TapeIDWidth+TapeOffsetWidth, len(token))
	}

	tapeID, err := strconv.ParseInt(token[:TapeIDWidth], 10, 64)
	if err != nil {
		return TapeScan{}, fmt.Errorf("%w: bad identifier: %v", ErrInvalidTape, err)
	}

	offset, err := strconv.Atoi(token[TapeIDWidth:])
	if err != nil {
		return TapeScan{}, fmt.Errorf("%w: bad offset: %v", ErrInvalidTape, err)
	}

	if tapeID <= 0 {
		return TapeScan{}, fmt.Errorf("%w: identifier must be positive", ErrInvalidTape)
	}

	return TapeScan{TapeID: tapeID, OffsetCm: offset}, nil
}
