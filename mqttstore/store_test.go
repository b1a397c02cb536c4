package mqttstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/windtalker/mqtt5engine/packets"
)

func TestMemoryStoreOutstandingOrderPreserved(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	require.NoError(t, s.SaveOutstanding(3, &packets.PublishPacket{PacketID: 3, Topic: "a"}))
	require.NoError(t, s.SaveOutstanding(1, &packets.PublishPacket{PacketID: 1, Topic: "b"}))
	require.NoError(t, s.SaveOutstanding(2, &packets.PubrelPacket{PacketID: 2}))

	entries, err := s.LoadOutstanding()
	require.NoError(t, err)
	require.Equal(t, []uint16{3, 1, 2}, []uint16{entries[0].ID, entries[1].ID, entries[2].ID})

	require.NoError(t, s.DeleteOutstanding(1))
	entries, err = s.LoadOutstanding()
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestMemoryStoreReceivedQoS2RoundTrip(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	require.NoError(t, s.SaveReceivedQoS2(5))
	require.NoError(t, s.SaveReceivedQoS2(7))

	ids, err := s.LoadReceivedQoS2()
	require.NoError(t, err)
	require.ElementsMatch(t, []uint16{5, 7}, ids)

	require.NoError(t, s.DeleteReceivedQoS2(5))
	ids, err = s.LoadReceivedQoS2()
	require.NoError(t, err)
	require.Equal(t, []uint16{7}, ids)
}

func TestFileStoreRoundTripsAcrossInstances(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	store, err := NewFileStore(dir, "client-1")
	require.NoError(t, err)

	pub := &packets.PublishPacket{PacketID: 11, Topic: "a/b", QoS: 1, Payload: []byte("hi")}
	require.NoError(t, store.SaveOutstanding(11, pub))
	require.NoError(t, store.SaveOutstanding(12, &packets.PubrelPacket{PacketID: 12}))
	require.NoError(t, store.SaveReceivedQoS2(99))
	require.NoError(t, store.SaveNextID(42))

	reopened, err := NewFileStore(dir, "client-1")
	require.NoError(t, err)

	entries, err := reopened.LoadOutstanding()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	ids, err := reopened.LoadReceivedQoS2()
	require.NoError(t, err)
	require.Equal(t, []uint16{99}, ids)

	next, err := reopened.LoadNextID()
	require.NoError(t, err)
	require.Equal(t, uint16(42), next)

	require.NoError(t, reopened.Clear())
	entries, err = reopened.LoadOutstanding()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFileStoreRejectsPathTraversalClientID(t *testing.T) {
	t.Parallel()
	_, err := NewFileStore(t.TempDir(), "../escape")
	require.Error(t, err)
}
