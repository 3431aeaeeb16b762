package bigquery

import (
	"net/http"

	"github.com/artie-labs/bqsnippets/lib/bqtest"
)

func (s *SamplesTestSuite) TestCreateDataset() {
	s.NoError(s.samples.CreateDataset(s.ctx, "analytics"))
	s.Equal("Dataset created successfully\n", s.out.String())

	ds, ok := s.srv.Dataset("analytics")
	s.True(ok)
	s.Equal("US", ds.Location)

	s.out.Reset()
	err := s.samples.CreateDataset(s.ctx, "analytics")
	s.True(IsAlreadyExists(err))
	s.Contains(s.out.String(), "Dataset was not created.")
}

func (s *SamplesTestSuite) TestCreateDataset_Validation() {
	s.ErrorContains(s.samples.CreateDataset(s.ctx, " "), "dataset name is required")
	s.Zero(s.srv.Requests())
}

func (s *SamplesTestSuite) TestUpdateDatasetDescription() {
	s.NoError(s.samples.UpdateDatasetDescription(s.ctx, testDataset, "new description!"))
	s.Equal("Dataset description updated successfully to new description!\n", s.out.String())

	ds, ok := s.srv.Dataset(testDataset)
	s.True(ok)
	s.Equal("new description!", ds.Description)

	s.out.Reset()
	err := s.samples.UpdateDatasetDescription(s.ctx, "missing_dataset", "new description!")
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Dataset description was not updated.")
}

func (s *SamplesTestSuite) TestDeleteDataset() {
	s.srv.AddTable(testDataset, "orders")

	{
		// Not empty
		err := s.samples.DeleteDataset(s.ctx, testDataset, false)
		s.True(IsInvalid(err))
		s.Contains(s.out.String(), "Dataset was not deleted.")
		s.Contains(s.out.String(), "is still in use")

		_, ok := s.srv.Dataset(testDataset)
		s.True(ok)
	}
	{
		// With contents
		s.out.Reset()
		s.NoError(s.samples.DeleteDataset(s.ctx, testDataset, true))
		s.Equal("Dataset deleted successfully\n", s.out.String())

		_, ok := s.srv.Dataset(testDataset)
		s.False(ok)
	}
	{
		// Already gone
		s.out.Reset()
		err := s.samples.DeleteDataset(s.ctx, testDataset, true)
		s.True(IsNotFound(err))
		s.Contains(s.out.String(), "Dataset was not deleted.")
	}
}

func (s *SamplesTestSuite) TestListDatasets() {
	s.srv.AddDataset("analytics")

	datasets, err := s.samples.ListDatasets(s.ctx)
	s.NoError(err)
	s.Equal([]string{"analytics", testDataset}, datasets)
	s.Equal("Datasets listed successfully\nDataset ID: analytics\nDataset ID: my_dataset\n", s.out.String())
}

func (s *SamplesTestSuite) TestListDatasets_Empty() {
	srv := bqtest.NewServer(testProject)
	defer srv.Close()

	samples := NewSamples(srv.Config(), s.out, s.metrics)
	datasets, err := samples.ListDatasets(s.ctx)
	s.NoError(err)
	s.Empty(datasets)
	s.Equal("Project does not contain any datasets\n", s.out.String())
}

func (s *SamplesTestSuite) TestListDatasets_PermissionDenied() {
	s.srv.InjectError(http.MethodGet, "/projects/test-project/datasets", http.StatusForbidden, "accessDenied", "Access Denied: Project test-project")

	_, err := s.samples.ListDatasets(s.ctx)
	s.True(IsPermissionDenied(err))
	s.False(IsNotFound(err))
	s.Contains(s.out.String(), "Datasets were not listed.")
	s.Contains(s.out.String(), "Access Denied: Project test-project")
}
