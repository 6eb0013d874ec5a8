package ecc

import "math/big"

// Elements of GF(2^233) are polynomials over GF(2) held in a big.Int, bit i
// being the coefficient of z^i. Reduction is modulo z^233 + z^74 + 1.

const fieldBits = 233

var (
	one       = big.NewInt(1)
	reduction = new(big.Int).SetBit(new(big.Int).SetBit(new(big.Int).SetBit(new(big.Int), 233, 1), 74, 1), 0, 1)
)

func fieldAdd(a, b *big.Int) *big.Int {
	return new(big.Int).Xor(a, b)
}

// fieldReduce folds every term of degree >= 233 back into the field. It modifies a.
func fieldReduce(a *big.Int) *big.Int {
	tmp := new(big.Int)
	for a.BitLen() > fieldBits {
		shift := uint(a.BitLen() - 1 - fieldBits)
		a.Xor(a, tmp.Lsh(reduction, shift))
	}
	return a
}

func fieldMul(a, b *big.Int) *big.Int {
	acc := new(big.Int)
	tmp := new(big.Int)
	for i := 0; i < b.BitLen(); i++ {
		if b.Bit(i) == 1 {
			acc.Xor(acc, tmp.Lsh(a, uint(i)))
		}
	}
	return fieldReduce(acc)
}

func fieldSqr(a *big.Int) *big.Int {
	return fieldMul(a, a)
}

// fieldInv uses the binary polynomial extended Euclidean algorithm. a must be non-zero.
func fieldInv(a *big.Int) *big.Int {
	u := new(big.Int).Set(a)
	v := new(big.Int).Set(reduction)
	g1 := big.NewInt(1)
	g2 := new(big.Int)
	tmp := new(big.Int)

	for u.Cmp(one) != 0 {
		j := u.BitLen() - v.BitLen()
		if j < 0 {
			u, v = v, u
			g1, g2 = g2, g1
			j = -j
		}
		u.Xor(u, tmp.Lsh(v, uint(j)))
		g1.Xor(g1, tmp.Lsh(g2, uint(j)))
	}
	return fieldReduce(g1)
}

func fieldDiv(a, b *big.Int) *big.Int {
	return fieldMul(a, fieldInv(b))
}
