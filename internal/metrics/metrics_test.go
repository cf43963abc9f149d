package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"github.com/the127/blobyard/internal/storageBackends"
	"github.com/the127/blobyard/internal/storageBackends/inmemory"
)

type MetricsTestSuite struct {
	suite.Suite
	registry  *prometheus.Registry
	collector *Collector
}

func TestMetricsTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(MetricsTestSuite))
}

func (s *MetricsTestSuite) SetupTest() {
	s.registry = prometheus.NewRegistry()

	collector, err := NewCollector(s.registry)
	s.Require().NoError(err)
	s.collector = collector
}

func (s *MetricsTestSuite) TestOutcome() {
	cases := []struct {
		err      error
		expected string
	}{
		{nil, OutcomeOk},
		{storageBackends.ErrRepositoryNotFound, OutcomeNotFound},
		{storageBackends.ErrSessionNotFound, OutcomeNotFound},
		{storageBackends.ErrBlobNotFound, OutcomeNotFound},
		{storageBackends.ErrDigestMissing, OutcomeDigestMissing},
		{storageBackends.ErrDigestInvalid, OutcomeDigestInvalid},
		{fmt.Errorf("wrapped: %w", storageBackends.ErrDigestInvalid), OutcomeDigestInvalid},
		{storageBackends.NewOffsetConflictError(5, 3), OutcomeOffsetConflict},
		{errors.New("disk on fire"), OutcomeError},
	}

	for _, c := range cases {
		s.Equal(c.expected, Outcome(c.err), "error: %v", c.err)
	}
}

func (s *MetricsTestSuite) TestRegisteringTwiceFails() {
	// act
	_, err := NewCollector(s.registry)

	// assert
	s.Error(err)
}

func (s *MetricsTestSuite) TestInstrumentCountsOperations() {
	// arrange
	ctx := context.Background()
	inner, err := inmemory.New(storageBackends.Options{})
	s.Require().NoError(err)
	backend := Instrument(inner, s.collector)

	// act
	status, err := backend.StartUpload(ctx, "lib/app")
	s.Require().NoError(err)
	_, _ = backend.AppendChunk(ctx, "lib/app", status.SessionId, storageBackends.ByteRange{Start: 3, End: 4}, []byte("ab"))
	_, _ = backend.HeadBlob(ctx, "lib/missing", "sha256:abc")

	// assert
	s.Equal(1.0, testutil.ToFloat64(s.collector.operations.WithLabelValues("StartUpload", OutcomeOk)))
	s.Equal(1.0, testutil.ToFloat64(s.collector.operations.WithLabelValues("AppendChunk", OutcomeOffsetConflict)))
	s.Equal(1.0, testutil.ToFloat64(s.collector.operations.WithLabelValues("HeadBlob", OutcomeNotFound)))
	s.Equal(3, testutil.CollectAndCount(s.collector.durations))
}

func (s *MetricsTestSuite) TestInstrumentPassesResultsThrough() {
	// arrange
	ctx := context.Background()
	inner, err := inmemory.New(storageBackends.Options{})
	s.Require().NoError(err)
	backend := Instrument(inner, s.collector)
	status, err := backend.StartUpload(ctx, "lib/app")
	s.Require().NoError(err)

	// act
	completed, err := backend.CompleteUpload(ctx, "lib/app", status.SessionId, []byte("hello"), "sha256:abc", nil)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(5), completed.Length)

	blob, err := backend.HeadBlob(ctx, "lib/app", "sha256:abc")
	s.Require().NoError(err)
	s.Equal(int64(5), blob.Length)
}
