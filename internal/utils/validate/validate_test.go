package validate

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type ValidateTestSuite struct {
	suite.Suite
}

func TestValidateTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ValidateTestSuite))
}

type sample struct {
	Mode string `validate:"oneof=memory redis"`
	Port int    `validate:"min=1"`
}

func (s *ValidateTestSuite) TestValid() {
	// act
	err := Validate(sample{Mode: "memory", Port: 1})

	// assert
	s.NoError(err)
}

func (s *ValidateTestSuite) TestInvalid() {
	// act
	err := Validate(sample{Mode: "disk", Port: 0})

	// assert
	s.ErrorIs(err, ErrInvalid)
	s.Contains(err.Error(), "Mode")
	s.Contains(err.Error(), "Port")
}
