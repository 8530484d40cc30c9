package decoder

import "github.com/netcode-go/netcode/field"

// invert computes the inverse of the square matrix a over gf using
// Gauss-Jordan elimination with partial pivoting. It returns (nil, false)
// if a is singular (no non-zero pivot can be found for some column) rather
// than panicking — full decoding simply retries once more repairs arrive.
//
// The matrix is bounded by the loss window size, so a dense [][]uint32
// representation is appropriate; no sparse-matrix machinery is needed.
func invert(gf *field.Field, a [][]uint32) ([][]uint32, bool) {
	n := len(a)
	aug := make([][]uint32, n)
	for i := range aug {
		row := make([]uint32, 2*n)
		copy(row, a[i])
		row[n+i] = 1
		aug[i] = row
	}

	for col := 0; col < n; col++ {
		pivot := -1
		for r := col; r < n; r++ {
			if aug[r][col] != 0 {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			return nil, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		invPivot := gf.Invert(aug[col][col])
		for k := col; k < 2*n; k++ {
			aug[col][k] = gf.Multiply(aug[col][k], invPivot)
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for k := col; k < 2*n; k++ {
				aug[r][k] ^= gf.Multiply(factor, aug[col][k])
			}
		}
	}

	inv := make([][]uint32, n)
	for i := range inv {
		inv[i] = aug[i][n:]
	}
	return inv, true
}
