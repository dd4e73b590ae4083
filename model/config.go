package model

// Config sets the decoder dimensions. DecodingDim is the channel width the
// latent family carries end to end; the other dims size the hidden
// projections inside each block.
type Config struct {
	NLayers      int
	ShareUpDim   int
	ShareDownDim int
	DecodingDim  int
	SoftmaxDim   int
	CummaxDim    int
	ShiftDim     int
	NonlinearDim int
}

// DefaultConfig returns the dimensions used by the stock pipeline.
func DefaultConfig() Config {
	return Config{
		NLayers:      4,
		ShareUpDim:   16,
		ShareDownDim: 8,
		DecodingDim:  4,
		SoftmaxDim:   2,
		CummaxDim:    4,
		ShiftDim:     4,
		NonlinearDim: 16,
	}
}
