package password

import "fmt"

// Scheme is one hashing algorithm that can identify its own encodings.
type Scheme interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	Recognizes(encodedHash string) bool
}

// Chain hashes with its primary scheme and verifies with whichever scheme
// recognizes the stored encoding.
type Chain struct {
	primary Scheme
	legacy  []Scheme
}

func NewChain(primary Scheme, legacy ...Scheme) *Chain {
	return &Chain{primary: primary, legacy: legacy}
}

func (c *Chain) Hash(password string) (string, error) {
	return c.primary.Hash(password)
}

func (c *Chain) Verify(password, encodedHash string) (bool, error) {
	s, err := c.schemeFor(encodedHash)
	if err != nil {
		return false, err
	}
	return s.Verify(password, encodedHash)
}

func (c *Chain) schemeFor(encodedHash string) (Scheme, error) {
	if c.primary.Recognizes(encodedHash) {
		return c.primary, nil
	}
	for _, s := range c.legacy {
		if s.Recognizes(encodedHash) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: unrecognized scheme", ErrMalformedHash)
}
