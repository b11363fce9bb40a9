package dataset

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() Schema {
	return Schema{
		Columns: []Column{
			{Name: "age", Kind: Numeric},
			{Name: "fever", Kind: Categorical, Levels: []string{"No", "Yes"}},
			{Name: "test", Kind: Categorical, Levels: []string{"Negative", "Positive"}},
		},
		Label: Column{Name: "disease", Kind: Categorical, Levels: []string{"No", "Yes"}},
	}
}

func TestEncoder_Encode(t *testing.T) {
	enc, err := NewEncoder(testSchema())
	require.NoError(t, err)

	ds, err := enc.Encode([]RawRecord{
		{"age": "54", "fever": "Yes", "test": "positive", "disease": "Yes"},
		{"age": " 31.5", "fever": "no", "test": "Negative", "disease": "No"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "fever", "test"}, ds.FeatureNames)
	assert.Equal(t, FeatureRecord{54, 1, 1}, ds.Records[0])
	assert.Equal(t, FeatureRecord{31.5, 0, 0}, ds.Records[1])
	assert.Equal(t, []Label{Positive, Negative}, ds.Labels)
}

func TestEncoder_Errors(t *testing.T) {
	enc, err := NewEncoder(testSchema())
	require.NoError(t, err)

	testCases := []struct {
		name string
		row  RawRecord
		want error
	}{
		{"unknown category", RawRecord{"age": "1", "fever": "Maybe", "test": "Negative", "disease": "No"}, ErrUnknownCategory},
		{"unknown label", RawRecord{"age": "1", "fever": "No", "test": "Negative", "disease": "?"}, ErrUnknownCategory},
		{"missing column", RawRecord{"age": "1", "test": "Negative", "disease": "No"}, ErrMissingColumn},
		{"missing label", RawRecord{"age": "1", "fever": "No", "test": "Negative"}, ErrMissingColumn},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := enc.Encode([]RawRecord{tc.row})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err = enc.Encode([]RawRecord{{"age": "old", "fever": "No", "test": "Negative", "disease": "No"}})
	assert.Error(t, err)
}

func TestNewEncoder_InvalidSchema(t *testing.T) {
	_, err := NewEncoder(Schema{Label: Column{Name: "y", Kind: Categorical, Levels: []string{"0", "1"}}})
	assert.Error(t, err)

	s := testSchema()
	s.Label.Levels = []string{"only"}
	_, err = NewEncoder(s)
	assert.Error(t, err)

	s = testSchema()
	s.Columns[1].Levels = nil
	_, err = NewEncoder(s)
	assert.Error(t, err)
}

func TestCSV_RoundTrip(t *testing.T) {
	columns := []string{"age", "fever", "test", "disease"}
	rows := []RawRecord{
		{"age": "54", "fever": "Yes", "test": "Positive", "disease": "Yes"},
		{"age": "31", "fever": "No", "test": "Negative", "disease": "No"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, columns, rows))

	path := filepath.Join(t.TempDir(), "cohort.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	loaded, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, rows, loaded)
}

func TestReadCSV_Malformed(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("a,b\n1\n"))
	assert.Error(t, err)
}

func TestFetchCSV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cohort.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("age,fever,test,disease\n40,Yes,Positive,Yes\n"))
	}))
	defer server.Close()

	rows, err := FetchCSV(context.Background(), server.URL+"/cohort.csv", 2*time.Second)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "40", rows[0]["age"])

	_, err = FetchCSV(context.Background(), server.URL+"/missing.csv", 2*time.Second)
	assert.Error(t, err)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.org/a.csv"))
	assert.True(t, IsRemote("http://example.org/a.csv"))
	assert.False(t, IsRemote("data/cohort.csv"))
}
