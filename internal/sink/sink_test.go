package sink

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perception_loop/internal/detect"
	"perception_loop/internal/labels"
)

func batch(cycle uint64) Batch {
	table := labels.NewTable(labels.Default)
	return Batch{
		RunID: "run-1",
		Cycle: cycle,
		Time:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Records: []Record{
			{
				Label:     table.Resolve(0),
				Detection: detect.Detection{Index: 0, ClassID: 0, Score: 0.9, Box: detect.Box{10, 20.25, 30, 40.5}},
			},
			{
				Label:     table.Resolve(999),
				Detection: detect.Detection{Index: 4, ClassID: 999, Score: 0.51, Box: detect.Box{1, 2, 3, 4}},
			},
		},
	}
}

func TestFormatRecord(t *testing.T) {
	b := batch(1)
	assert.Equal(t, "Class: person, Score: 0.90, BBox: [10.00, 20.25, 30.00, 40.50]", FormatRecord(b.Records[0]))
	assert.Equal(t, "Class: unknown class ID 999, Score: 0.51, BBox: [1.00, 2.00, 3.00, 4.00]", FormatRecord(b.Records[1]))
}

func TestFormatConsole(t *testing.T) {
	b := batch(1)
	assert.Equal(t, "Detected object: person with confidence: 0.900000", FormatConsole(b.Records[0]))
	assert.Equal(t, "Detected object with unknown class ID 999 and confidence: 0.510000", FormatConsole(b.Records[1]))
}

func TestTextFileTruncateReplacesContents(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewTextFile(fs, "/results.txt", "")

	require.NoError(t, s.Write(context.Background(), batch(1)))
	b := batch(2)
	b.Records = b.Records[:1]
	require.NoError(t, s.Write(context.Background(), b))

	data, err := afero.ReadFile(fs, "/results.txt")
	require.NoError(t, err)
	assert.Equal(t, "Class: person, Score: 0.90, BBox: [10.00, 20.25, 30.00, 40.50]\n", string(data))

	exists, err := afero.Exists(fs, "/results.txt.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTextFileEmptyBatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewTextFile(fs, "/results.txt", Truncate)
	require.NoError(t, s.Write(context.Background(), batch(1)))

	require.NoError(t, s.Write(context.Background(), Batch{Cycle: 2}))
	data, err := afero.ReadFile(fs, "/results.txt")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestTextFileAppend(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewTextFile(fs, "/results.txt", Append)

	require.NoError(t, s.Write(context.Background(), batch(1)))
	require.NoError(t, s.Write(context.Background(), batch(2)))

	data, err := afero.ReadFile(fs, "/results.txt")
	require.NoError(t, err)
	assert.Equal(t, 4, bytes.Count(data, []byte("\n")))
}

func TestTextFileFailureKeepsPreviousResults(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/results.txt", []byte("previous\n"), 0o644))

	s := NewTextFile(afero.NewReadOnlyFs(base), "/results.txt", Truncate)
	err := s.Write(context.Background(), batch(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrite))

	data, err := afero.ReadFile(base, "/results.txt")
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(data))
}

func TestTextFileAppendFailure(t *testing.T) {
	s := NewTextFile(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/results.txt", Append)
	assert.True(t, errors.Is(s.Write(context.Background(), batch(1)), ErrWrite))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, os.ErrClosed }

func TestConsole(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, NewConsole(&out).Write(context.Background(), batch(1)))
	assert.Equal(t,
		"Detected object: person with confidence: 0.900000\n"+
			"Detected object with unknown class ID 999 and confidence: 0.510000\n",
		out.String())

	err := NewConsole(failingWriter{}).Write(context.Background(), batch(1))
	assert.True(t, errors.Is(err, ErrWrite))
}

func TestSQLWriteCommitsBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO detections")
	prep.ExpectExec().
		WithArgs("run-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "person", true,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs("run-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "unknown class ID 999", false,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, NewSQL(db).Write(context.Background(), batch(1)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLWriteRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO detections")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = NewSQL(db).Write(context.Background(), batch(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrite))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS detections").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewSQL(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
