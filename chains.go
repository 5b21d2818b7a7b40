package ups

import (
	"fmt"
	"strconv"
	"strings"
)

// ChainID derives the numeric chain id from a network identifier.
// CAIP-2 EVM identifiers ("eip155:8453") have the prefix stripped;
// anything else must parse as a bare positive integer.
func ChainID(network string) (int64, error) {
	ref := network
	if strings.HasPrefix(network, "eip155:") {
		ref = strings.TrimPrefix(network, "eip155:")
	}

	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChainID, network)
	}
	return id, nil
}
