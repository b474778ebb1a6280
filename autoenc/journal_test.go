package autoenc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJournal_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	j, err := NewJournal(&buf)
	require.NoError(t, err)

	want := []Record{
		{Epoch: 1, TrainLoss: 0.52, ValLoss: 0.61},
		{Epoch: 2, TrainLoss: 0.31, ValLoss: 0.44},
		{Epoch: 3, TrainLoss: 0.22, ValLoss: 0.40},
	}
	for _, rec := range want {
		require.NoError(t, j.Append(rec))
	}
	require.Equal(t, 3, j.Len())
	require.NoError(t, j.Close())

	got, err := ReadJournal(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestJournal_ReadableWithoutClose(t *testing.T) {
	// A crash ends a run without Close. Every appended record was flushed
	// through, so all of them must still parse.
	var buf bytes.Buffer
	j, err := NewJournal(&buf)
	require.NoError(t, err)

	require.NoError(t, j.Append(Record{Epoch: 1, TrainLoss: 0.9, ValLoss: 1.0}))
	require.NoError(t, j.Append(Record{Epoch: 2, TrainLoss: 0.7, ValLoss: 0.8}))

	got, err := ReadJournal(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 2, got[1].Epoch)
}

func TestJournal_TruncatedTailDropped(t *testing.T) {
	var buf bytes.Buffer
	j, err := NewJournal(&buf, func(o *JournalOptions) {
		o.Compress = false
	})
	require.NoError(t, err)

	for epoch := 1; epoch <= 5; epoch++ {
		require.NoError(t, j.Append(Record{Epoch: epoch, TrainLoss: 1.0 / float64(epoch), ValLoss: 1.1 / float64(epoch)}))
	}
	require.NoError(t, j.Close())

	// Cut into the middle of the fifth record.
	data := buf.Bytes()
	got, err := ReadJournal(bytes.NewReader(data[:len(data)-7]))
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, 4, got[3].Epoch)
}

func TestJournal_Uncompressed(t *testing.T) {
	var buf bytes.Buffer
	j, err := NewJournal(&buf, func(o *JournalOptions) {
		o.Compress = false
	})
	require.NoError(t, err)
	require.NoError(t, j.Append(Record{Epoch: 1, TrainLoss: 0.5, ValLoss: 0.6}))
	require.NoError(t, j.Close())

	require.Equal(t, journalHeaderLen+journalRecordLen, buf.Len())

	got, err := ReadJournal(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestJournal_AppendAfterClose(t *testing.T) {
	var buf bytes.Buffer
	j, err := NewJournal(&buf)
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	err = j.Append(Record{Epoch: 1})
	require.Error(t, err)
}

func TestReadJournal_InvalidHeader(t *testing.T) {
	_, err := ReadJournal(bytes.NewReader([]byte("this is not a journal")))
	require.Error(t, err)
}
