package bigquery

import (
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	bq "google.golang.org/api/bigquery/v2"
)

func (s *SamplesTestSuite) TestCreateTableWithoutSchema() {
	s.NoError(s.samples.CreateTableWithoutSchema(s.ctx, testDataset, "without_schema"))
	s.Contains(s.out.String(), "Table created successfully")

	table, ok := s.srv.Table(testDataset, "without_schema")
	s.True(ok)
	if table.Schema != nil {
		s.Empty(table.Schema.Fields)
	}

	s.out.Reset()
	metadata, err := s.samples.GetTable(s.ctx, testDataset, "without_schema")
	s.NoError(err)
	s.Empty(metadata.Schema)
	s.Equal("Table test-project.my_dataset.without_schema retrieved successfully\n", s.out.String())
}

func (s *SamplesTestSuite) TestCreateTable() {
	schema, err := ParseSchema("name:STRING,age:INTEGER:REQUIRED,tags:STRING:REPEATED")
	s.NoError(err)

	s.NoError(s.samples.CreateTable(s.ctx, testDataset, "people", schema))
	s.Equal("Table created successfully\n", s.out.String())

	table, ok := s.srv.Table(testDataset, "people")
	s.True(ok)
	s.Len(table.Schema.Fields, 3)
	s.Equal("age", table.Schema.Fields[1].Name)
	s.Equal("INTEGER", table.Schema.Fields[1].Type)
	s.Equal("REQUIRED", table.Schema.Fields[1].Mode)
	s.Equal("REPEATED", table.Schema.Fields[2].Mode)

	s.Len(s.metrics.incrs, 1)
	s.Equal(operationCountMetric, s.metrics.incrs[0].name)
	s.Equal(map[string]string{"operation": "create_table", "outcome": "success"}, s.metrics.incrs[0].tags)
}

func (s *SamplesTestSuite) TestCreateTable_AlreadyExists() {
	s.NoError(s.samples.CreateTableWithoutSchema(s.ctx, testDataset, "twice"))

	s.out.Reset()
	err := s.samples.CreateTableWithoutSchema(s.ctx, testDataset, "twice")
	s.Error(err)
	s.True(IsAlreadyExists(err))
	s.False(IsNotFound(err))
	s.Contains(s.out.String(), "Table was not created.")
	s.Contains(s.out.String(), "Already Exists: Table test-project:my_dataset.twice")

	var svcErr *ServiceError
	s.ErrorAs(err, &svcErr)
	s.Equal(http.StatusConflict, svcErr.Code)
	s.Equal("duplicate", svcErr.Reason)
	s.Equal("create_table", svcErr.Op)

	s.Len(s.metrics.incrs, 2)
	s.Equal("failure", s.metrics.incrs[1].tags["outcome"])
}

func (s *SamplesTestSuite) TestCreateTable_MissingDataset() {
	err := s.samples.CreateTableWithoutSchema(s.ctx, "missing_dataset", "orders")
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Table was not created.")
	s.Contains(s.out.String(), "Not found: Dataset test-project:missing_dataset")
}

func (s *SamplesTestSuite) TestCreateTable_Validation() {
	{
		// Empty table name
		err := s.samples.CreateTableWithoutSchema(s.ctx, testDataset, "")
		s.ErrorContains(err, "table name is required")
	}
	{
		// Blank dataset name
		err := s.samples.CreateTableWithoutSchema(s.ctx, "   ", "orders")
		s.ErrorContains(err, "dataset name is required")
	}
	{
		// No dataset and no default
		cfg := s.srv.Config()
		samples := NewSamples(cfg, s.out, s.metrics)
		err := samples.CreateTableWithoutSchema(s.ctx, "", "orders")
		s.ErrorContains(err, "dataset name is required")

		var svcErr *ServiceError
		s.False(errors.As(err, &svcErr))
	}

	s.Empty(s.out.String())
	s.Zero(s.srv.Requests())
	s.Empty(s.metrics.incrs)
}

func (s *SamplesTestSuite) TestCreateTable_DefaultDataset() {
	s.NoError(s.samples.CreateTableWithoutSchema(s.ctx, "", "defaulted"))
	_, ok := s.srv.Table(testDataset, "defaulted")
	s.True(ok)
}

func (s *SamplesTestSuite) TestUpdateTableDescription() {
	s.srv.AddTable(testDataset, "described")

	s.NoError(s.samples.UpdateTableDescription(s.ctx, testDataset, "described", "new description!"))
	s.Contains(s.out.String(), "Table description updated successfully to new description!")

	table, ok := s.srv.Table(testDataset, "described")
	s.True(ok)
	s.Equal("new description!", table.Description)
}

func (s *SamplesTestSuite) TestUpdateTableDescription_NotFound() {
	err := s.samples.UpdateTableDescription(s.ctx, testDataset, "missing", "new description!")
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Table description was not updated.")
}

func (s *SamplesTestSuite) TestUpdateTableDescription_PreconditionFailed() {
	s.srv.AddTable(testDataset, "raced")
	s.srv.InjectError(http.MethodPatch, "/tables/raced", http.StatusPreconditionFailed, "failedPrecondition", "Precondition check failed.")

	err := s.samples.UpdateTableDescription(s.ctx, testDataset, "raced", "new description!")
	var svcErr *ServiceError
	s.ErrorAs(err, &svcErr)
	s.Equal(http.StatusPreconditionFailed, svcErr.Code)
	s.Equal("failedPrecondition", svcErr.Reason)
	s.Contains(s.out.String(), "Table description was not updated.")

	table, ok := s.srv.Table(testDataset, "raced")
	s.True(ok)
	s.Empty(table.Description)
}

func (s *SamplesTestSuite) TestDeleteTable_Twice() {
	s.srv.AddTable(testDataset, "doomed")

	s.NoError(s.samples.DeleteTable(s.ctx, testDataset, "doomed"))
	s.Equal("Table deleted successfully\n", s.out.String())
	_, ok := s.srv.Table(testDataset, "doomed")
	s.False(ok)

	s.out.Reset()
	err := s.samples.DeleteTable(s.ctx, testDataset, "doomed")
	s.Error(err)
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Table was not deleted.")
	s.Contains(s.out.String(), "Not found: Table test-project:my_dataset.doomed")
}

func (s *SamplesTestSuite) TestGetTable() {
	s.srv.AddTable(testDataset, "orders",
		&bq.TableFieldSchema{Name: "id", Type: "INTEGER", Mode: "REQUIRED"},
		&bq.TableFieldSchema{Name: "note", Type: "STRING"},
	)

	metadata, err := s.samples.GetTable(s.ctx, testDataset, "orders")
	s.NoError(err)
	s.Len(metadata.Schema, 2)
	s.True(metadata.Schema[0].Required)
	s.Equal(bigquery.StringFieldType, metadata.Schema[1].Type)
	s.Equal("Table test-project.my_dataset.orders retrieved successfully\n  id INTEGER REQUIRED\n  note STRING NULLABLE\n", s.out.String())

	s.out.Reset()
	_, err = s.samples.GetTable(s.ctx, testDataset, "missing")
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Table was not retrieved.")
}

func (s *SamplesTestSuite) TestListTables() {
	s.srv.AddTable(testDataset, "b_table")
	s.srv.AddTable(testDataset, "a_table")

	tables, err := s.samples.ListTables(s.ctx, testDataset)
	s.NoError(err)
	s.Equal([]string{"a_table", "b_table"}, tables)
	s.Equal("Tables listed successfully\nTable ID: a_table\nTable ID: b_table\n", s.out.String())

	s.out.Reset()
	_, err = s.samples.ListTables(s.ctx, "missing_dataset")
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Tables were not listed.")
}

func (s *SamplesTestSuite) TestCopyTable() {
	s.srv.AddTable(testDataset, "source", &bq.TableFieldSchema{Name: "id", Type: "INTEGER"})

	s.NoError(s.samples.CopyTable(s.ctx, testDataset, "source", "copy"))
	s.Equal("Table copied successfully\n", s.out.String())

	table, ok := s.srv.Table(testDataset, "copy")
	s.True(ok)
	s.Len(table.Schema.Fields, 1)
	s.Len(s.srv.JobIDs(), 1)
}

func (s *SamplesTestSuite) TestCopyTable_MissingSource() {
	err := s.samples.CopyTable(s.ctx, testDataset, "missing", "copy")
	s.Error(err)
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Table copying job was not completed.")

	// The job ran and failed, there's no HTTP status.
	var svcErr *ServiceError
	s.ErrorAs(err, &svcErr)
	s.Zero(svcErr.Code)
	s.Equal("notFound", svcErr.Reason)

	_, ok := s.srv.Table(testDataset, "copy")
	s.False(ok)
}

func (s *SamplesTestSuite) TestUndeleteTable() {
	s.srv.AddTable(testDataset, "orders", &bq.TableFieldSchema{Name: "id", Type: "INTEGER"})
	time.Sleep(5 * time.Millisecond)
	restoreTime := time.Now()
	time.Sleep(5 * time.Millisecond)

	s.NoError(s.samples.DeleteTable(s.ctx, testDataset, "orders"))

	s.out.Reset()
	s.NoError(s.samples.UndeleteTable(s.ctx, testDataset, "orders", "orders_restored", restoreTime))
	s.Equal("Table restored successfully\n", s.out.String())

	table, ok := s.srv.Table(testDataset, "orders_restored")
	s.True(ok)
	s.Len(table.Schema.Fields, 1)
}

func (s *SamplesTestSuite) TestUndeleteTable_NeverExisted() {
	err := s.samples.UndeleteTable(s.ctx, testDataset, "ghost", "ghost_restored", time.Now().Add(-time.Minute))
	s.True(IsNotFound(err))
	s.Contains(s.out.String(), "Table was not restored.")
}

func (s *SamplesTestSuite) TestUndeleteTable_Validation() {
	{
		// Future restore time
		err := s.samples.UndeleteTable(s.ctx, testDataset, "orders", "orders_restored", time.Now().Add(time.Hour))
		s.ErrorContains(err, "restore time must be in the past")
	}
	{
		// Zero restore time
		err := s.samples.UndeleteTable(s.ctx, testDataset, "orders", "orders_restored", time.Time{})
		s.ErrorContains(err, "restore time must be in the past")
	}
	{
		// Missing restored table name
		err := s.samples.UndeleteTable(s.ctx, testDataset, "orders", "", time.Now().Add(-time.Minute))
		s.ErrorContains(err, "restored table name is required")
	}

	s.Zero(s.srv.Requests())
	s.Empty(s.out.String())
}
