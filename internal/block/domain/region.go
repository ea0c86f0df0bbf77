package domain

// BlockRegion is the rendered, marker-delimited text inserted into the hosts file.
type BlockRegion string

// String returns the region text.
func (r BlockRegion) String() string { return string(r) }
