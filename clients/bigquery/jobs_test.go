package bigquery

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	bq "google.golang.org/api/bigquery/v2"

	"github.com/artie-labs/bqsnippets/lib/bqtest"
)

const countQuery = "SELECT id, name FROM `test-project.my_dataset.people` ORDER BY id"

func (s *SamplesTestSuite) registerCountQuery() {
	s.srv.SetQueryResult(countQuery, bqtest.QueryResult{
		Fields: []*bq.TableFieldSchema{
			{Name: "id", Type: "INTEGER"},
			{Name: "name", Type: "STRING"},
		},
		Rows:           [][]any{{1, "alice"}, {2, "bob"}},
		BytesProcessed: 2048,
	})
}

func (s *SamplesTestSuite) TestQueryDryRun() {
	s.registerCountQuery()

	bytesProcessed, err := s.samples.QueryDryRun(s.ctx, countQuery)
	s.NoError(err)
	s.Equal(int64(2048), bytesProcessed)
	s.Equal("Query dry run completed successfully. This query will process 2048 bytes.\n", s.out.String())

	// Dry runs don't leave a job behind.
	s.Empty(s.srv.JobIDs())
}

func (s *SamplesTestSuite) TestQueryDryRun_Invalid() {
	_, err := s.samples.QueryDryRun(s.ctx, "SELEC 1")
	s.True(IsInvalid(err))
	s.Contains(s.out.String(), "Query was not run.")

	s.out.Reset()
	_, err = s.samples.QueryDryRun(s.ctx, "  ")
	s.ErrorContains(err, "query is required")
	s.Empty(s.out.String())
}

func (s *SamplesTestSuite) TestRunQuery() {
	s.registerCountQuery()

	rows, err := s.samples.RunQuery(s.ctx, countQuery)
	s.NoError(err)
	s.Equal([][]bigquery.Value{{int64(1), "alice"}, {int64(2), "bob"}}, rows)
	s.Equal("Query performed successfully.\n1, alice\n2, bob\n", s.out.String())
}

func (s *SamplesTestSuite) TestRunQuery_Invalid() {
	_, err := s.samples.RunQuery(s.ctx, "SELEC 1")
	s.True(IsInvalid(err))
	s.Contains(s.out.String(), "Query was not run.")
}

func (s *SamplesTestSuite) TestListJobs() {
	s.srv.AddTable(testDataset, "source")
	s.NoError(s.samples.CopyTable(s.ctx, testDataset, "source", "copy_1"))
	s.NoError(s.samples.CopyTable(s.ctx, testDataset, "source", "copy_2"))
	jobIDs := s.srv.JobIDs()
	s.Len(jobIDs, 2)

	{
		s.out.Reset()
		jobs, err := s.samples.ListJobs(s.ctx, 0)
		s.NoError(err)
		s.Equal([]JobSummary{{ID: jobIDs[1], State: "DONE"}, {ID: jobIDs[0], State: "DONE"}}, jobs)
		s.Contains(s.out.String(), "Jobs listed successfully\n")
		s.Contains(s.out.String(), "Job ID: "+jobIDs[1]+", state: DONE")
	}
	{
		// Capped
		s.out.Reset()
		jobs, err := s.samples.ListJobs(s.ctx, 1)
		s.NoError(err)
		s.Equal([]JobSummary{{ID: jobIDs[1], State: "DONE"}}, jobs)
	}
}

func (s *SamplesTestSuite) TestCancelJob() {
	s.srv.AddTable(testDataset, "source")
	s.NoError(s.samples.CopyTable(s.ctx, testDataset, "source", "copy"))
	jobIDs := s.srv.JobIDs()
	s.Len(jobIDs, 1)

	s.out.Reset()
	s.NoError(s.samples.CancelJob(s.ctx, jobIDs[0]))
	s.Equal("Job canceled successfully\n", s.out.String())

	s.out.Reset()
	err := s.samples.CancelJob(s.ctx, "missing_job")
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Job was not canceled.")

	s.ErrorContains(s.samples.CancelJob(s.ctx, ""), "job name is required")
}

func (s *SamplesTestSuite) TestLoadTableFromGCS() {
	s.NoError(s.samples.LoadTableFromGCS(s.ctx, testDataset, "loaded", "gs://bucket/people.csv", "csv"))
	s.Equal("GCS file loaded into table successfully\n", s.out.String())

	_, ok := s.srv.Table(testDataset, "loaded")
	s.True(ok)
}

func (s *SamplesTestSuite) TestLoadTableFromGCS_MissingDataset() {
	err := s.samples.LoadTableFromGCS(s.ctx, "missing_dataset", "loaded", "gs://bucket/people.csv", "")
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Table was not loaded.")
}

func (s *SamplesTestSuite) TestLoadTableFromGCS_Validation() {
	s.ErrorContains(s.samples.LoadTableFromGCS(s.ctx, testDataset, "loaded", "/tmp/people.csv", "csv"), "invalid GCS URI")
	s.ErrorContains(s.samples.LoadTableFromGCS(s.ctx, testDataset, "loaded", "gs://", "csv"), "invalid GCS URI")
	s.ErrorContains(s.samples.LoadTableFromGCS(s.ctx, testDataset, "loaded", "gs://bucket/people.xml", "xml"), `unsupported data format "xml"`)
	s.Zero(s.srv.Requests())
	s.Empty(s.out.String())
}

func (s *SamplesTestSuite) TestLoadLocalFile_Validation() {
	filePath := filepath.Join(s.T().TempDir(), "people.csv")
	s.NoError(os.WriteFile(filePath, []byte("id,name\n1,alice\n"), 0o644))

	s.ErrorContains(s.samples.LoadLocalFile(s.ctx, testDataset, "loaded", "", filePath, "csv"), "bucket name is required")
	s.ErrorContains(s.samples.LoadLocalFile(s.ctx, testDataset, "loaded", "bucket", filePath+".missing", "csv"), "failed to stat file")
	s.ErrorContains(s.samples.LoadLocalFile(s.ctx, testDataset, "loaded", "bucket", filePath, "xml"), "unsupported data format")
	s.Zero(s.srv.Requests())
	s.Empty(s.out.String())
}

func (s *SamplesTestSuite) writePeopleCSV() string {
	filePath := filepath.Join(s.T().TempDir(), "people.csv")
	s.Require().NoError(os.WriteFile(filePath, []byte("id,name\n1,alice\n"), 0o644))
	return filePath
}

func (s *SamplesTestSuite) TestLoadLocalFile() {
	s.srv.AddBucket("staging")

	s.NoError(s.samples.LoadLocalFile(s.ctx, testDataset, "loaded", "staging", s.writePeopleCSV(), "csv"))
	s.Equal("Local file loaded into table successfully\n", s.out.String())

	_, ok := s.srv.Table(testDataset, "loaded")
	s.True(ok)

	uploads := s.srv.Uploads("staging")
	s.Require().Len(uploads, 1)
	s.True(strings.HasPrefix(uploads[0], stagingPrefix+"/"), uploads[0])
	s.True(strings.HasSuffix(uploads[0], "/people.csv"), uploads[0])
	s.Empty(s.srv.Objects("staging"), "staged file is cleaned up")
	s.Len(s.srv.JobIDs(), 1)
}

func (s *SamplesTestSuite) TestLoadLocalFile_UploadFails() {
	err := s.samples.LoadLocalFile(s.ctx, testDataset, "loaded", "missing-bucket", s.writePeopleCSV(), "csv")
	s.Error(err)
	s.Contains(s.out.String(), "Table was not loaded.")
	s.Empty(s.srv.JobIDs(), "nothing is loaded when staging fails")

	_, ok := s.srv.Table(testDataset, "loaded")
	s.False(ok)
}

func (s *SamplesTestSuite) TestLoadLocalFile_StorageEndpointRequired() {
	cfg := s.srv.Config()
	cfg.DefaultDataset = testDataset
	cfg.StorageEndpoint = ""

	err := NewSamples(cfg, s.out, s.metrics).LoadLocalFile(s.ctx, testDataset, "loaded", "staging", s.writePeopleCSV(), "csv")
	s.ErrorContains(err, "storageEndpoint must be set when endpoint is set")
	s.Zero(s.srv.Requests())
}

func (s *SamplesTestSuite) TestLoadTableFromGCS_MissingObject() {
	s.srv.AddBucket("staging")

	err := s.samples.LoadTableFromGCS(s.ctx, testDataset, "loaded", "gs://staging/people.csv", "csv")
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Table was not loaded.")
}

func (s *SamplesTestSuite) TestExtractTableToGCS() {
	s.srv.AddTable(testDataset, "orders")

	s.NoError(s.samples.ExtractTableToGCS(s.ctx, testDataset, "orders", "gs://bucket/orders-*.csv"))
	s.Equal("Table extracted successfully\n", s.out.String())

	s.out.Reset()
	err := s.samples.ExtractTableToGCS(s.ctx, testDataset, "missing", "gs://bucket/missing.csv")
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Table was not extracted.")
}

func TestParseDataFormat(t *testing.T) {
	for _, tc := range []struct {
		format   string
		expected bigquery.DataFormat
	}{
		{"", bigquery.CSV},
		{"csv", bigquery.CSV},
		{"NEWLINE_DELIMITED_JSON", bigquery.JSON},
		{"json", bigquery.JSON},
		{"avro", bigquery.Avro},
		{"Parquet", bigquery.Parquet},
		{"orc", bigquery.ORC},
	} {
		dataFormat, err := ParseDataFormat(tc.format)
		assert.NoError(t, err, tc.format)
		assert.Equal(t, tc.expected, dataFormat, tc.format)
	}

	_, err := ParseDataFormat("xml")
	assert.ErrorContains(t, err, `unsupported data format "xml"`)
}

func TestStateName(t *testing.T) {
	assert.Equal(t, "PENDING", stateName(bigquery.Pending))
	assert.Equal(t, "RUNNING", stateName(bigquery.Running))
	assert.Equal(t, "DONE", stateName(bigquery.Done))
	assert.Equal(t, "UNSPECIFIED", stateName(bigquery.StateUnspecified))
}

func TestFormatRow(t *testing.T) {
	assert.Equal(t, "1, alice, <nil>", formatRow([]bigquery.Value{int64(1), "alice", nil}))
	assert.Empty(t, formatRow(nil))
}
