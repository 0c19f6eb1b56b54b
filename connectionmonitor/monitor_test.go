package connectionmonitor

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	checkErr       error
	reconnectErrs  []error
	checks         atomic.Int32
	reconnectCalls atomic.Int32
}

func (c *fakeClient) CheckConnection(context.Context) error {
	c.checks.Add(1)
	return c.checkErr
}

func (c *fakeClient) Reconnect(context.Context) error {
	n := int(c.reconnectCalls.Add(1))
	if n <= len(c.reconnectErrs) {
		return c.reconnectErrs[n-1]
	}
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestCheckAndReconnect_HealthyConnectionDoesNotReconnect(t *testing.T) {
	client := &fakeClient{}
	m := NewConnectionMonitor(client, quietLogger(), "base").(*connectionMonitor)

	require.NoError(t, m.checkAndReconnect(context.Background()))
	assert.Equal(t, int32(0), client.reconnectCalls.Load())
}

func TestCheckAndReconnect_RetriesUntilSuccess(t *testing.T) {
	client := &fakeClient{
		checkErr:      errors.New("eof"),
		reconnectErrs: []error{errors.New("dial failed")},
	}
	m := NewConnectionMonitor(client, quietLogger(), "base", WithReconnectDelay(time.Millisecond)).(*connectionMonitor)

	require.NoError(t, m.checkAndReconnect(context.Background()))
	assert.Equal(t, int32(2), client.reconnectCalls.Load())
}

func TestCheckAndReconnect_GivesUpAfterMaxAttempts(t *testing.T) {
	dialErr := errors.New("dial failed")
	client := &fakeClient{
		checkErr:      errors.New("eof"),
		reconnectErrs: []error{dialErr, dialErr, dialErr},
	}
	m := NewConnectionMonitor(client, quietLogger(), "base", WithReconnectDelay(time.Millisecond)).(*connectionMonitor)

	err := m.checkAndReconnect(context.Background())
	require.Error(t, err)
	assert.Equal(t, dialErr, errors.Cause(err))
	assert.Equal(t, int32(maxReconnectAttempts), client.reconnectCalls.Load())
}

func TestStartStop(t *testing.T) {
	client := &fakeClient{}
	m := NewConnectionMonitor(client, quietLogger(), "base", WithInterval(5*time.Millisecond))

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()))

	assert.Eventually(t, func() bool { return client.checks.Load() > 0 }, time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()

	require.NoError(t, m.Start(context.Background()))
	m.Stop()
}
