package msglog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omochice/roomlink/internal/msglog"
)

func TestLog_HistoryBeforeLive(t *testing.T) {
	log := msglog.New()

	err := log.SeedHistory([]msglog.Message{
		{Sender: "alice", Body: "h1"},
		{Sender: "bob", Body: "h2"},
		{Sender: "alice", Body: "h3"},
	})
	require.NoError(t, err)

	log.AppendLive("bob", "l1", time.Now())
	log.AppendLive("alice", "l2", time.Now())

	all := log.All()
	require.Len(t, all, 5)

	var bodies []string
	for i, msg := range all {
		require.Equal(t, i, msg.Seq, "sequence positions must be strictly increasing")
		bodies = append(bodies, msg.Body)
	}
	require.Equal(t, []string{"h1", "h2", "h3", "l1", "l2"}, bodies)

	for _, msg := range all[:3] {
		require.Equal(t, msglog.OriginHistory, msg.Origin)
	}
	for _, msg := range all[3:] {
		require.Equal(t, msglog.OriginLive, msg.Origin)
	}
}

func TestLog_SeedRejectedAfterLive(t *testing.T) {
	log := msglog.New()
	log.AppendLive("alice", "first", time.Now())

	err := log.SeedHistory([]msglog.Message{{Sender: "bob", Body: "late backfill"}})
	require.ErrorIs(t, err, msglog.ErrLiveAccepted)

	all := log.All()
	require.Len(t, all, 1, "rejected seed must not alter the log")
	require.Equal(t, "first", all[0].Body)
}

func TestLog_SeedRejectedTwice(t *testing.T) {
	log := msglog.New()
	require.NoError(t, log.SeedHistory([]msglog.Message{{Sender: "alice", Body: "h1"}}))

	err := log.SeedHistory([]msglog.Message{{Sender: "alice", Body: "again"}})
	require.ErrorIs(t, err, msglog.ErrHistorySeeded)
	require.Equal(t, 1, log.Len())
}

func TestLog_EmptySeedStillCountsAsSeeded(t *testing.T) {
	log := msglog.New()
	require.NoError(t, log.SeedHistory(nil))
	require.ErrorIs(t, log.SeedHistory(nil), msglog.ErrHistorySeeded)
}

func TestLog_AllReturnsCopy(t *testing.T) {
	log := msglog.New()
	log.AppendLive("alice", "hello", time.Now())

	all := log.All()
	all[0].Body = "mutated"

	require.Equal(t, "hello", log.All()[0].Body)
}

func TestLog_NoDeduplication(t *testing.T) {
	log := msglog.New()
	at := time.Now()
	log.AppendLive("alice", "same", at)
	log.AppendLive("alice", "same", at)

	// The wire format has no message IDs; duplicates are kept by contract.
	require.Equal(t, 2, log.Len())
}
