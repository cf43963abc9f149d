package pointer

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type PointerTestSuite struct {
	suite.Suite
}

func TestPointerTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(PointerTestSuite))
}

func (s *PointerTestSuite) TestToCopiesValue() {
	// arrange
	v := true

	// act
	actual := To(v)
	v = false

	// assert
	s.True(*actual)
}

func (s *PointerTestSuite) TestDerefOrZeroNonNil() {
	// act
	actual := DerefOrZero(To("/metrics"))

	// assert
	s.Equal("/metrics", actual)
}

func (s *PointerTestSuite) TestDerefOrZeroNil() {
	// arrange
	var ptr *bool

	// act
	actual := DerefOrZero(ptr)

	// assert
	s.False(actual)
}
