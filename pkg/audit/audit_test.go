package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAppendAndRecent(t *testing.T) {
	l := openTestLog(t)
	for i, v := range []string{"1", "2", "3"} {
		err := l.Append(Record{
			PV:      "sim://setpoint",
			Value:   v,
			Element: "text entry",
			Display: "main.yaml",
			Time:    time.Date(2026, 3, 1, 12, i, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	recs, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2", recs[0].Value)
	assert.Equal(t, "3", recs[1].Value)
	assert.Equal(t, uint64(3), recs[1].Seq)
	assert.Equal(t, "sim://setpoint", recs[1].PV)
	assert.Equal(t, "main.yaml", recs[1].Display)

	recs, err = l.Recent(10)
	require.NoError(t, err)
	assert.Len(t, recs, 3, "Recent clipped to log length")
}

func TestAppendFillsDefaults(t *testing.T) {
	l := openTestLog(t)
	l.user = "op1"
	require.NoError(t, l.Append(Record{PV: "x", Value: "0", Element: "slider"}))

	recs, err := l.Recent(1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "op1", recs[0].User)
	assert.False(t, recs[0].Time.IsZero())
}

func TestIterateRange(t *testing.T) {
	l := openTestLog(t)
	for _, v := range []string{"a", "b", "c", "d"} {
		require.NoError(t, l.Append(Record{PV: "p", Value: v, Element: "menu"}))
	}

	var got []string
	require.NoError(t, l.Iterate(2, 4, func(r Record) { got = append(got, r.Value) }))
	assert.Equal(t, []string{"b", "c"}, got)

	got = nil
	require.NoError(t, l.Iterate(3, 0, func(r Record) { got = append(got, r.Value) }))
	assert.Equal(t, []string{"c", "d"}, got)
}

func TestNextSeq(t *testing.T) {
	l := openTestLog(t)
	seq, err := l.NextSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	require.NoError(t, l.Append(Record{PV: "p", Value: "1", Element: "menu"}))
	seq, err = l.NextSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(Record{PV: "p", Value: "42", Element: "message button"}))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	recs, err := l.Recent(1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "42", recs[0].Value)

	require.NoError(t, l.Append(Record{PV: "p", Value: "43", Element: "message button"}))
	recs, err = l.Recent(2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(2), recs[1].Seq, "sequence restarted after reopen")
}

func TestNilLogIsInert(t *testing.T) {
	var l *Log
	assert.NoError(t, l.Append(Record{PV: "p", Value: "1"}))
	assert.NoError(t, l.Iterate(0, 0, func(Record) { t.Fatal("nil log yielded a record") }))
	recs, err := l.Recent(5)
	assert.NoError(t, err)
	assert.Nil(t, recs)
	seq, err := l.NextSeq()
	assert.NoError(t, err)
	assert.Zero(t, seq)
	assert.NoError(t, l.Close())
}
