// Package numbits manipulates packed binary representations of line-number
// sets.
//
// To keep measurement files small, executed line sets are stored as a packed
// bitmap called a numbits: bit N set means line N was executed. The exact
// byte layout is an implementation detail of the store format; callers
// should use these functions rather than touching the bytes directly.
package numbits

// NumBits is a packed set of non-negative integers. The zero value is the
// empty set.
type NumBits []byte

// FromNums packs a set of line numbers into a NumBits. Negative numbers are
// not representable and must be filtered by the caller (the entry/exit
// sentinel never appears in a line set).
func FromNums(nums []int) NumBits {
	if len(nums) == 0 {
		return nil
	}
	max := 0
	for _, n := range nums {
		if n > max {
			max = n
		}
	}
	b := make(NumBits, max/8+1)
	for _, n := range nums {
		if n < 0 {
			continue
		}
		b[n/8] |= 1 << (n % 8)
	}
	return b
}

// Nums unpacks a NumBits into a sorted slice of line numbers.
func (nb NumBits) Nums() []int {
	var nums []int
	for i, byt := range nb {
		for bit := 0; bit < 8; bit++ {
			if byt&(1<<bit) != 0 {
				nums = append(nums, i*8+bit)
			}
		}
	}
	return nums
}

// Contains reports whether num is a member of the set.
func (nb NumBits) Contains(num int) bool {
	if num < 0 {
		return false
	}
	byt, bit := num/8, num%8
	if byt >= len(nb) {
		return false
	}
	return nb[byt]&(1<<bit) != 0
}

// Union returns a new NumBits holding every number present in either input.
func Union(a, b NumBits) NumBits {
	if len(b) > len(a) {
		a, b = b, a
	}
	if len(a) == 0 {
		return nil
	}
	out := make(NumBits, len(a))
	copy(out, a)
	for i, byt := range b {
		out[i] |= byt
	}
	return out
}

// AnyIntersection reports whether any number appears in both sets. This is
// cheaper than materializing the intersection.
func AnyIntersection(a, b NumBits) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i]&b[i] != 0 {
			return true
		}
	}
	return false
}

// Count returns the number of members in the set.
func (nb NumBits) Count() int {
	count := 0
	for _, byt := range nb {
		for ; byt != 0; byt &= byt - 1 {
			count++
		}
	}
	return count
}

// Equal reports whether two sets have the same members, ignoring trailing
// zero bytes.
func Equal(a, b NumBits) bool {
	if len(b) > len(a) {
		a, b = b, a
	}
	for i, byt := range a {
		var other byte
		if i < len(b) {
			other = b[i]
		}
		if byt != other {
			return false
		}
	}
	return true
}
