package status

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrackerCounters(t *testing.T) {
	tr := NewTracker()
	require.Equal(t, ConnectionIdle, tr.Snapshot().Connection)

	tr.SetConnection(ConnectionConnected)
	tr.AddFramesSeen(10)
	tr.AddFrameProcessed()
	tr.AddFrameProcessed()
	tr.AddDetections(5)
	tr.AddDeliveryFailure()
	tr.AddReconnect()
	tr.AddAlertSent()
	tr.AddDetectionFailure()

	snap := tr.Snapshot()
	require.Equal(t, ConnectionConnected, snap.Connection)
	require.EqualValues(t, 10, snap.FramesSeen)
	require.EqualValues(t, 2, snap.FramesProcessed)
	require.EqualValues(t, 5, snap.Detections)
	require.EqualValues(t, 1, snap.DeliveryFailures)
	require.EqualValues(t, 1, snap.Reconnects)
	require.EqualValues(t, 1, snap.AlertsSent)
	require.EqualValues(t, 1, snap.DetectionFailures)
	require.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}

func TestTrackerRecentEpisodes(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 70; i++ {
		tr.AddEpisode(EpisodeSummary{
			CameraID:   "cam1",
			Mode:       "live",
			StartTime:  time.Now(),
			FrameCount: i,
			Detections: map[string]int{"person": i},
		})
	}
	require.EqualValues(t, 70, tr.Snapshot().Episodes)

	// The ring keeps the newest recentEpisodeRing-1 episodes, oldest first
	recent := tr.RecentEpisodes()
	require.Len(t, recent, recentEpisodeRing-1)
	require.Equal(t, 70-(recentEpisodeRing-1), recent[0].FrameCount)
	require.Equal(t, 69, recent[len(recent)-1].FrameCount)
}

func TestTrackerConcurrentEpisodes(t *testing.T) {
	tr := NewTracker()
	done := make(chan bool)
	for g := 0; g < 4; g++ {
		go func(g int) {
			for i := 0; i < 100; i++ {
				tr.AddEpisode(EpisodeSummary{CameraID: fmt.Sprintf("cam%v", g)})
				tr.RecentEpisodes()
			}
			done <- true
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	require.EqualValues(t, 400, tr.Snapshot().Episodes)
	require.Len(t, tr.RecentEpisodes(), recentEpisodeRing-1)
}
