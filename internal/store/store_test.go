package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenWithoutMetaFailsServerNames(t *testing.T) {
	s := openTestStore(t)
	names, err := s.ServerNames()
	assert.Error(t, err) // nothing written yet
	assert.Empty(t, names)
}

func TestInitMetaAndCheckVersion(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InitMeta([]string{"a", "b", "t"}, 1000))

	require.NoError(t, s.CheckVersion())

	names, err := s.ServerNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "t"}, names)

	_, _, err = s.StartEndTime()
	assert.ErrorIs(t, err, ErrMetaMissing) // end_time not written yet

	require.NoError(t, s.PutEndTime(2000))
	start, end, err := s.StartEndTime()
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), start)
	assert.Equal(t, uint32(2000), end)
}

func TestQueriesAndAnswersRoundTrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutQuery(1, []byte("query-one")))
	require.NoError(t, s.PutQuery(2, []byte("query-two")))

	var seen []uint32
	require.NoError(t, s.ForEachQuery(func(key uint32, wire []byte) error {
		seen = append(seen, key)
		return nil
	}))
	assert.ElementsMatch(t, []uint32{1, 2}, seen)

	count, err := s.CountQueries()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	count, err = s.CountAnswers()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestPutAnswerRoundTrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Update(func(tx *bbolt.Tx) error {
		return s.PutAnswer(tx, 7, []byte("encoded-response-list"))
	}))

	var got []byte
	require.NoError(t, s.ForEachAnswer(func(key uint32, value []byte) error {
		if key == 7 {
			got = value
		}
		return nil
	}))
	assert.Equal(t, []byte("encoded-response-list"), got)

	count, err := s.CountAnswers()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestAnswerWriterCommitsAllPutsAtOnce(t *testing.T) {
	s := openTestStore(t)
	w, err := s.BeginAnswers()
	require.NoError(t, err)
	require.NoError(t, w.Put(1, []byte("one")))
	require.NoError(t, w.Put(2, []byte("two")))
	require.NoError(t, w.Commit())

	count, err := s.CountAnswers()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestAnswerWriterRollbackDiscardsPuts(t *testing.T) {
	s := openTestStore(t)
	w, err := s.BeginAnswers()
	require.NoError(t, err)
	require.NoError(t, w.Put(1, []byte("one")))
	require.NoError(t, w.Rollback())

	count, err := s.CountAnswers()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}
