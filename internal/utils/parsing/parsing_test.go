package parsing

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/the127/blobyard/internal/storageBackends"
)

type ParseRangeTestSuite struct {
	suite.Suite
}

func TestParseRangeTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ParseRangeTestSuite))
}

func (s *ParseRangeTestSuite) TestValid() {
	// act
	actual, err := ParseRange("0-4")

	// assert
	s.Require().NoError(err)
	s.Equal(storageBackends.ByteRange{Start: 0, End: 4}, actual)
}

func (s *ParseRangeTestSuite) TestEndIsNotCheckedAgainstStart() {
	// act
	actual, err := ParseRange("10-3")

	// assert
	s.Require().NoError(err)
	s.Equal(storageBackends.ByteRange{Start: 10, End: 3}, actual)
}

func (s *ParseRangeTestSuite) TestMalformed() {
	tokens := []string{
		"",
		"5",
		"-5",
		"5-",
		" 0-4",
		"0-4 ",
		"0 - 4",
		"+0-4",
		"0-+4",
		"bytes=0-4",
		"a-b",
		"0-4-5",
		"0x1-4",
		"99999999999999999999-1",
		"9223372036854775808-1",
	}

	for _, token := range tokens {
		_, err := ParseRange(token)
		s.ErrorIs(err, ErrMalformedRange, "token %q", token)
	}
}

func (s *ParseRangeTestSuite) TestMaxInt64() {
	// act
	actual, err := ParseRange("9223372036854775807-9223372036854775807")

	// assert
	s.Require().NoError(err)
	s.Equal(int64(9223372036854775807), actual.Start)
}

func (s *ParseRangeTestSuite) TestOptionalEmpty() {
	// act
	actual, err := ParseOptionalRange("")

	// assert
	s.NoError(err)
	s.Nil(actual)
}

func (s *ParseRangeTestSuite) TestOptionalPresent() {
	// act
	actual, err := ParseOptionalRange("5-9")

	// assert
	s.Require().NoError(err)
	s.Equal(&storageBackends.ByteRange{Start: 5, End: 9}, actual)
}

func (s *ParseRangeTestSuite) TestOptionalMalformed() {
	// act
	_, err := ParseOptionalRange("5")

	// assert
	s.ErrorIs(err, ErrMalformedRange)
}

func (s *ParseRangeTestSuite) TestDigest() {
	// act
	actual, err := ParseDigest("sha256:ABC")

	// assert
	s.NoError(err)
	s.Equal("sha256:ABC", actual)
}

func (s *ParseRangeTestSuite) TestDigestMissing() {
	// act
	_, err := ParseDigest("")

	// assert
	s.ErrorIs(err, storageBackends.ErrDigestMissing)
}
