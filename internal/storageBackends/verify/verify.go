package verify

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
	"github.com/the127/blobyard/internal/storageBackends"
)

// Content hashes content with the algorithm named by expected and fails
// with storageBackends.ErrDigestInvalid unless the result equals expected.
func Content(expected string, content io.Reader) error {
	dgst, err := digest.Parse(expected)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", storageBackends.ErrDigestInvalid, expected, err)
	}

	verifier := dgst.Verifier()
	_, err = io.Copy(verifier, content)
	if err != nil {
		return fmt.Errorf("hashing content: %w", err)
	}

	if !verifier.Verified() {
		return fmt.Errorf("%w: expected %s", storageBackends.ErrDigestInvalid, dgst)
	}

	return nil
}
