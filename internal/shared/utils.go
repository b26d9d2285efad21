// Package shared holds small helpers that do not belong to a single layer.
package shared

// WipeByteArray overwrites b with zeros. The CLI calls it on passwords once
// they have been sent. A nil slice is ignored.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
