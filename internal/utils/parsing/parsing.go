package parsing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/the127/blobyard/internal/storageBackends"
)

var ErrMalformedRange = errors.New("malformed range")

// ParseRange parses a "<start>-<end>" token. Both bounds are unsigned
// decimal integers; no whitespace or unit prefix is accepted.
func ParseRange(value string) (storageBackends.ByteRange, error) {
	startPart, endPart, ok := strings.Cut(value, "-")
	if !ok {
		return storageBackends.ByteRange{}, fmt.Errorf("%w: %q has no separator", ErrMalformedRange, value)
	}

	start, err := parseBound(startPart)
	if err != nil {
		return storageBackends.ByteRange{}, fmt.Errorf("%w: start of %q: %w", ErrMalformedRange, value, err)
	}

	end, err := parseBound(endPart)
	if err != nil {
		return storageBackends.ByteRange{}, fmt.Errorf("%w: end of %q: %w", ErrMalformedRange, value, err)
	}

	return storageBackends.ByteRange{
		Start: start,
		End:   end,
	}, nil
}

// ParseOptionalRange returns nil for an empty token.
func ParseOptionalRange(value string) (*storageBackends.ByteRange, error) {
	if value == "" {
		return nil, nil
	}

	byteRange, err := ParseRange(value)
	if err != nil {
		return nil, err
	}

	return &byteRange, nil
}

func parseBound(value string) (int64, error) {
	// ParseUint would accept a leading '+'
	if value == "" || value[0] < '0' || value[0] > '9' {
		return 0, fmt.Errorf("not an unsigned integer: %q", value)
	}

	bound, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, err
	}

	if bound > math.MaxInt64 {
		return 0, fmt.Errorf("out of range: %q", value)
	}

	return int64(bound), nil
}

// ParseDigest accepts any non-empty digest string. The digest is an opaque
// key, case-sensitive and otherwise unchecked.
func ParseDigest(value string) (string, error) {
	if value == "" {
		return "", storageBackends.ErrDigestMissing
	}

	return value, nil
}
