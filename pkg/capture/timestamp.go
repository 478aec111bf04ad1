package capture

import (
	"math/bits"
	"time"
)

// tsUnit is a timestamp resolution: 10^-exp or 2^-exp seconds.
type tsUnit struct {
	base2 bool
	exp   uint8
}

var (
	unitMicro = tsUnit{exp: 6}
	unitNano  = tsUnit{exp: 9}
)

// parseTSResol decodes an if_tsresol option value. The high bit selects a
// power of two; otherwise the value is a negative power of ten.
func parseTSResol(v byte) (tsUnit, bool) {
	u := tsUnit{base2: v&0x80 != 0, exp: v & 0x7F}
	if u.base2 && u.exp > 63 || !u.base2 && u.exp > 19 {
		return tsUnit{}, false
	}
	return u, true
}

func (u tsUnit) perSecond() uint64 {
	if u.base2 {
		return 1 << u.exp
	}
	n := uint64(1)
	for i := uint8(0); i < u.exp; i++ {
		n *= 10
	}
	return n
}

// resolution returns the unit as a duration; 0 for sub-nanosecond units.
func (u tsUnit) resolution() time.Duration {
	per := u.perSecond()
	if per > uint64(time.Second) {
		return 0
	}
	return time.Duration(uint64(time.Second) / per)
}

// toTime converts a tick count since the epoch, plus an offset in seconds.
func (u tsUnit) toTime(ticks uint64, offset int64) time.Time {
	per := u.perSecond()
	sec, rem := ticks/per, ticks%per
	// rem < per, so the 128-bit quotient fits in 64 bits
	hi, lo := bits.Mul64(rem, uint64(time.Second))
	nsec, _ := bits.Div64(hi, lo, per)
	return time.Unix(int64(sec)+offset, int64(nsec)).UTC()
}
