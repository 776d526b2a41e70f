package sink

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/checkpoint/types"
)

var (
	_ types.ReportSink = &CaptureSink{}
	_ types.ReportSink = &discardSink{}
)

func NewCaptureSink() *CaptureSink {
	return &CaptureSink{
		// setup no error as default
		mockErrHandler: defaultNoErr,
	}
}

/**
 * NewCaptureSinkWithErrHandler builds a capture sink whose Submit also
 * returns errHandler(), for exercising the dispatcher's retry and drop
 * paths in tests.
 */
func NewCaptureSinkWithErrHandler(errHandler func() error) *CaptureSink {
	return &CaptureSink{mockErrHandler: errHandler}
}

func defaultNoErr() error {
	return nil
}

/**
 * CaptureSink records every submitted batch in memory. It aims to
 * provide a sink double for debug & testing, NEVER use it in the
 * Production!
 */
type CaptureSink struct {
	mu sync.Mutex

	mockErrHandler func() error

	batches [][]*types.Event
}

func (s *CaptureSink) Submit(ctx context.Context, batch []*types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mockErrHandler(); err != nil {
		return err
	}
	copied := make([]*types.Event, len(batch))
	copy(copied, batch)
	s.batches = append(s.batches, copied)
	return nil
}

func (s *CaptureSink) Batches() [][]*types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]*types.Event, len(s.batches))
	copy(out, s.batches)
	return out
}

// Events flattens every captured batch in submission order.
func (s *CaptureSink) Events() []*types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.Event, 0)
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

// NewDiscardSink returns a sink that drops every batch after a debug log.
func NewDiscardSink() types.ReportSink {
	return &discardSink{}
}

type discardSink struct{}

func (s *discardSink) Submit(ctx context.Context, batch []*types.Event) error {
	log.Debugf("discarding report batch of %d events", len(batch))
	return nil
}
