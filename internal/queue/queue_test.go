package queue

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueue_Memory_recordsPublishOrderAndCounts(t *testing.T) {
	t.Parallel()

	q := NewMemory()
	require.NoError(t, q.PublishHost("10.0.0.1"))
	require.NoError(t, q.PublishMessage(DeadHostMessage(1)))
	require.NoError(t, q.PublishFinish())

	require.Equal(t, []string{"10.0.0.1"}, q.Hosts())
	require.Equal(t, 1, q.FinishCount())
	require.Equal(t, []string{"1"}, q.Messages("DEADHOST"))
}

func TestQueue_Writer_formatsDeadHostLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	q := NewWriterQueue(&buf)
	require.NoError(t, q.PublishMessage(DeadHostMessage(3)))

	require.Equal(t, "DEADHOST||| ||| ||| |||3", strings.TrimSpace(buf.String()))
}

func TestQueue_Writer_formatsCapReachedLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	q := NewWriterQueue(&buf)
	require.NoError(t, q.PublishMessage(CapReachedMessage(7)))

	require.Equal(t,
		"ERRMSG||| ||| ||| |||Maximum allowed number of alive hosts identified. There are still 7 hosts whose alive status will not be checked.",
		strings.TrimSpace(buf.String()),
	)
}

func TestQueue_Writer_finishWritesSentinelLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	q := NewWriterQueue(&buf)
	require.NoError(t, q.PublishFinish())

	require.Equal(t, finishSentinel, strings.TrimSpace(buf.String()))
}
