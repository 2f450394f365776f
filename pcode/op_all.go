package pcode

// All returns every named operation in numeric order, except Unknown.
func All() (ret []Op) {
	for i := 1; i < (1 << OpBits); i++ {
		p := Op(i)
		if _, ok := opNames[p]; !ok {
			continue
		}
		ret = append(ret, p)
	}
	return ret
}

// AllConcurrency contains all the operations that can change which thread runs next
func AllConcurrency() (ret []Op) {
	for _, op := range All() {
		if op.IsConcurrency() {
			ret = append(ret, op)
		}
	}
	return ret
}
