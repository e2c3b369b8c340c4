package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// recordingSink captures the transitions a monitor emits.
type recordingSink struct {
	mu       sync.Mutex
	online   []bool
	activity []ActivityState
}

func (s *recordingSink) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = append(s.online, online)
}

func (s *recordingSink) SetActivity(state ActivityState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, state)
}

func (s *recordingSink) onlineCalls() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.online...)
}

func (s *recordingSink) activityCalls() []ActivityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ActivityState(nil), s.activity...)
}

func TestMonitorProbesImmediatelyAndOnInterval(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		pinger := NewMockRemoteClient(ctrl)
		sink := &recordingSink{}

		gomock.InOrder(
			pinger.EXPECT().Ping(gomock.Any()).Return(nil),
			pinger.EXPECT().Ping(gomock.Any()).Return(errors.New("no route to host")),
			pinger.EXPECT().Ping(gomock.Any()).Return(nil),
		)

		m := NewMonitor(sink, pinger, 30*time.Second, discardLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			_ = m.Run(ctx)
			close(done)
		}()

		synctest.Wait()
		require.Equal(t, []bool{true}, sink.onlineCalls(), "immediate startup probe")

		time.Sleep(time.Minute)
		synctest.Wait()
		assert.Equal(t, []bool{true, false, true}, sink.onlineCalls())

		cancel()
		<-done
	})
}

func TestMonitorForwardsClientSignals(t *testing.T) {
	sink := &recordingSink{}
	m := NewMonitor(sink, nil, time.Minute, discardLogger())

	m.ReportFocus()
	m.ReportBlur()
	m.ReportFocus()
	m.ReportOnline(false)
	m.ReportOnline(true)

	assert.Equal(t, []ActivityState{Active, Background, Active}, sink.activityCalls())
	assert.Equal(t, []bool{false, true}, sink.onlineCalls())
}
