package tlsh

// quartiles returns the 25th, 50th and 75th percentile values of the effective
// buckets. It selects in place on a copy with repeated partitioning instead of
// sorting, reusing the pivots found while locating the median to narrow the
// searches for q1 and q3.
func quartiles(bucket *[buckets]uint32) (q1, q2, q3 uint32) {
	const (
		p1  = effBuckets/4 - 1
		p2  = effBuckets/2 - 1
		p3  = effBuckets - effBuckets/4 - 1
		end = effBuckets - 1
	)

	var cp [effBuckets]uint32
	copy(cp[:], bucket[:effBuckets])

	var cutLeft, cutRight [effBuckets + 1]int
	spl, spr := 0, 0

	for l, r := 0, end; ; {
		ret := partition(&cp, l, r)
		if ret > p2 {
			r = ret - 1
			cutRight[spr] = ret
			spr++
		} else if ret < p2 {
			l = ret + 1
			cutLeft[spl] = ret
			spl++
		} else {
			q2 = cp[p2]
			break
		}
	}

	cutLeft[spl] = p2 - 1
	cutRight[spr] = p2 + 1

	for i, l := 0, 0; i <= spl; i++ {
		r := cutLeft[i]
		if r > p1 {
			for {
				ret := partition(&cp, l, r)
				if ret > p1 {
					r = ret - 1
				} else if ret < p1 {
					l = ret + 1
				} else {
					q1 = cp[p1]
					break
				}
			}
			break
		} else if r < p1 {
			l = r
		} else {
			q1 = cp[p1]
			break
		}
	}

	for i, r := 0, end; i <= spr; i++ {
		l := cutRight[i]
		if l < p3 {
			for {
				ret := partition(&cp, l, r)
				if ret > p3 {
					r = ret - 1
				} else if ret < p3 {
					l = ret + 1
				} else {
					q3 = cp[p3]
					break
				}
			}
			break
		} else if l > p3 {
			r = l
		} else {
			q3 = cp[p3]
			break
		}
	}

	return q1, q2, q3
}

// partition places the middle element of buf[left:right+1] at its sorted
// position and returns that index.
func partition(buf *[effBuckets]uint32, left, right int) int {
	if left == right {
		return left
	}
	if left+1 == right {
		if buf[left] > buf[right] {
			buf[left], buf[right] = buf[right], buf[left]
		}
		return left
	}

	ret := left
	pivot := (left + right) >> 1
	val := buf[pivot]

	buf[pivot] = buf[right]
	buf[right] = val

	for i := left; i < right; i++ {
		if buf[i] < val {
			buf[ret], buf[i] = buf[i], buf[ret]
			ret++
		}
	}
	buf[right] = buf[ret]
	buf[ret] = val

	return ret
}
