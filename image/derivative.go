package image

// Derivative is the encoded outcome of a request.
type Derivative struct {
	Data []byte
	// Format is the format of Data, which may differ from the requested one.
	Format Format
}
