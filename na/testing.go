package na

// NewTestAddress is NewAddress under a name that reads correctly at test
// call sites (hg's loopback fixture, in particular, stands in for a real
// plugin and needs to mint addresses the same way one would).
func NewTestAddress(peer any) *Address {
	return NewAddress(peer)
}
