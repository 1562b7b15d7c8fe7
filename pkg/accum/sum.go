package accum

import (
	"math"
	"math/big"
)

// Limb layout: the exact value of all finite additions is
//
//	sum(limbs[i] * 2^(limbBits*(base+i) - 1074))
//
// Every float64 is an integer multiple of 2^-1074, so the representation is
// exact. Limbs are signed and may temporarily exceed limbBits bits; normalize
// propagates carries.
const (
	limbBits = 32
	limbMask = 1<<limbBits - 1

	// Each addition puts less than 2^32 into a limb, so 2^30 additions
	// cannot overflow an int64 limb.
	maxPending = 1 << 30
)

// Sum is an exact accumulator for float64 values.
//
// The total it reports depends only on the multiset of values added, never
// on their order or on how additions were split across Sum values that were
// later merged. Finite values are summed exactly and rounded once in
// Float64. NaN and infinities are counted separately.
//
// The zero value is an empty sum. A Sum is not safe for concurrent use.
type Sum struct {
	limbs   []int64
	base    int
	pending int

	nan    int64
	posInf int64
	negInf int64
}

// Add adds v to the sum.
func (s *Sum) Add(v float64) {
	bits := math.Float64bits(v)
	exp := int(bits>>52) & 0x7ff
	mant := bits & (1<<52 - 1)

	if exp == 0x7ff {
		switch {
		case mant != 0:
			s.nan++
		case bits>>63 != 0:
			s.negInf++
		default:
			s.posInf++
		}
		return
	}
	if exp == 0 && mant == 0 {
		return
	}

	// v = ±mant * 2^(pos-1074).
	pos := exp - 1
	if exp == 0 {
		pos = 0
	} else {
		mant |= 1 << 52
	}

	idx := pos / limbBits
	shift := uint(pos % limbBits)
	l0 := int64((mant << shift) & limbMask)
	rest := mant >> (limbBits - shift)
	l1 := int64(rest & limbMask)
	l2 := int64(rest >> limbBits)

	if s.pending >= maxPending {
		s.normalize()
	}
	s.ensure(idx, idx+3)
	i := idx - s.base
	if bits>>63 != 0 {
		s.limbs[i] -= l0
		s.limbs[i+1] -= l1
		s.limbs[i+2] -= l2
	} else {
		s.limbs[i] += l0
		s.limbs[i+1] += l1
		s.limbs[i+2] += l2
	}
	s.pending++
}

// Merge adds every value accumulated in o to s. o is not modified.
func (s *Sum) Merge(o *Sum) {
	s.nan += o.nan
	s.posInf += o.posInf
	s.negInf += o.negInf
	if len(o.limbs) == 0 {
		return
	}

	if s.pending+o.pending >= maxPending {
		s.normalize()
		if o.pending >= maxPending {
			// Copy so o stays untouched.
			c := o.clone()
			c.normalize()
			o = c
		}
	}
	s.ensure(o.base, o.base+len(o.limbs))
	off := o.base - s.base
	for i, l := range o.limbs {
		s.limbs[off+i] += l
	}
	s.pending += o.pending
}

// Float64 returns the correctly rounded total. NaN wins over everything;
// opposing infinities yield NaN; a finite total outside the float64 range
// rounds to ±Inf.
func (s *Sum) Float64() float64 {
	switch {
	case s.nan > 0 || (s.posInf > 0 && s.negInf > 0):
		return math.NaN()
	case s.posInf > 0:
		return math.Inf(1)
	case s.negInf > 0:
		return math.Inf(-1)
	}

	var n big.Int
	var limb big.Int
	for i := len(s.limbs) - 1; i >= 0; i-- {
		n.Lsh(&n, limbBits)
		limb.SetInt64(s.limbs[i])
		n.Add(&n, &limb)
	}
	if n.Sign() == 0 {
		return 0
	}

	var f big.Float
	f.SetInt(&n)
	f.SetMantExp(&f, limbBits*s.base-1074)
	v, _ := f.Float64()
	return v
}

// IsZero reports whether nothing but zeros has been added.
func (s *Sum) IsZero() bool {
	if s.nan != 0 || s.posInf != 0 || s.negInf != 0 {
		return false
	}
	for _, l := range s.limbs {
		if l != 0 {
			return false
		}
	}
	return true
}

// ensure grows the limb window to cover limb indices [lo, hi).
func (s *Sum) ensure(lo, hi int) {
	if len(s.limbs) == 0 {
		// Leave headroom above for carries.
		s.base = lo
		s.limbs = make([]int64, hi-lo+2)
		return
	}
	curHi := s.base + len(s.limbs)
	if lo >= s.base && hi <= curHi {
		return
	}
	newLo := min(lo, s.base)
	newHi := max(hi, curHi)
	grown := make([]int64, newHi-newLo)
	copy(grown[s.base-newLo:], s.limbs)
	s.limbs = grown
	s.base = newLo
}

// normalize propagates carries so every limb but the top one lies in
// [0, 2^limbBits).
func (s *Sum) normalize() {
	if len(s.limbs) == 0 {
		s.pending = 0
		return
	}
	for i := 0; i < len(s.limbs)-1; i++ {
		carry := s.limbs[i] >> limbBits
		s.limbs[i] -= carry << limbBits
		s.limbs[i+1] += carry
	}
	top := s.limbs[len(s.limbs)-1]
	if top > limbMask || top < -limbMask {
		s.ensure(s.base, s.base+len(s.limbs)+1)
		n := len(s.limbs)
		carry := s.limbs[n-2] >> limbBits
		s.limbs[n-2] -= carry << limbBits
		s.limbs[n-1] += carry
	}
	s.pending = 1
}

func (s *Sum) clone() *Sum {
	c := *s
	c.limbs = append([]int64(nil), s.limbs...)
	return &c
}
