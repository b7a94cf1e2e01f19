package object

// Blob is opaque byte content; it has no structure of its own.
type Blob struct {
	Content []byte
}

// NewBlob wraps raw content as a Blob.
func NewBlob(content []byte) *Blob {
	return &Blob{Content: content}
}

// Encode returns the blob's payload, which is simply its content.
func (b *Blob) Encode() []byte {
	return b.Content
}

// Size returns the blob's byte length.
func (b *Blob) Size() int64 {
	return int64(len(b.Content))
}
