package bqtest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	bq "google.golang.org/api/bigquery/v2"

	"github.com/artie-labs/bqsnippets/lib/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	apiPrefix       = "/bigquery/v2"
	defaultLocation = "US"
)

// QueryResult is what a registered SQL statement returns, both for dry runs and for real runs.
type QueryResult struct {
	Fields         []*bq.TableFieldSchema
	Rows           [][]any
	BytesProcessed int64
}

type injectedError struct {
	method  string
	suffix  string
	code    int
	reason  string
	message string
}

type deletedTable struct {
	table     *bq.Table
	deletedAt time.Time
}

type dataset struct {
	meta    *bq.Dataset
	tables  map[string]*bq.Table
	deleted map[string][]deletedTable
}

// Server is an in-memory stand-in for the subset of the BigQuery v2 REST API the samples call.
type Server struct {
	srv       *httptest.Server
	mux       *http.ServeMux
	projectID string

	mu       sync.Mutex
	datasets map[string]*dataset
	jobs     map[string]*bq.Job
	jobOrder []string
	queries  map[string]QueryResult
	injected []injectedError
	buckets  map[string]map[string][]byte
	uploads  map[string][]string
	requests int
	etagSeq  int
}

func NewServer(projectID string) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		projectID: projectID,
		datasets:  make(map[string]*dataset),
		jobs:      make(map[string]*bq.Job),
		queries:   make(map[string]QueryResult),
		buckets:   make(map[string]map[string][]byte),
		uploads:   make(map[string][]string),
	}

	s.mux.HandleFunc("POST /projects/{project}/datasets", s.insertDataset)
	s.mux.HandleFunc("GET /projects/{project}/datasets", s.listDatasets)
	s.mux.HandleFunc("GET /projects/{project}/datasets/{dataset}", s.getDataset)
	s.mux.HandleFunc("PATCH /projects/{project}/datasets/{dataset}", s.patchDataset)
	s.mux.HandleFunc("DELETE /projects/{project}/datasets/{dataset}", s.deleteDataset)

	s.mux.HandleFunc("POST /projects/{project}/datasets/{dataset}/tables", s.insertTable)
	s.mux.HandleFunc("GET /projects/{project}/datasets/{dataset}/tables", s.listTables)
	s.mux.HandleFunc("GET /projects/{project}/datasets/{dataset}/tables/{table}", s.getTable)
	s.mux.HandleFunc("PATCH /projects/{project}/datasets/{dataset}/tables/{table}", s.patchTable)
	s.mux.HandleFunc("DELETE /projects/{project}/datasets/{dataset}/tables/{table}", s.deleteTable)

	s.mux.HandleFunc("POST /projects/{project}/jobs", s.insertJob)
	s.mux.HandleFunc("GET /projects/{project}/jobs", s.listJobs)
	s.mux.HandleFunc("GET /projects/{project}/jobs/{job}", s.getJob)
	s.mux.HandleFunc("POST /projects/{project}/jobs/{job}/cancel", s.cancelJob)
	s.mux.HandleFunc("POST /projects/{project}/queries", s.query)
	s.mux.HandleFunc("GET /projects/{project}/queries/{job}", s.getQueryResults)
	s.registerStorageRoutes()

	s.srv = httptest.NewServer(s)
	return s
}

func (s *Server) Close() {
	s.srv.Close()
}

// Endpoint is the base path to hand to option.WithEndpoint.
func (s *Server) Endpoint() string {
	return s.srv.URL + apiPrefix + "/"
}

func (s *Server) Config() config.BigQuery {
	return config.BigQuery{
		ProjectID:       s.projectID,
		Location:        defaultLocation,
		Endpoint:        s.Endpoint(),
		StorageEndpoint: s.StorageEndpoint(),
	}
}

// Requests returns how many requests reached the server so far.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) SetQueryResult(sql string, result QueryResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[sql] = result
}

// InjectError makes every request whose method matches and whose path ends with pathSuffix fail with code.
func (s *Server) InjectError(method, pathSuffix string, code int, reason, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injected = append(s.injected, injectedError{method: method, suffix: pathSuffix, code: code, reason: reason, message: message})
}

func (s *Server) AddDataset(datasetName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addDataset(&bq.Dataset{DatasetReference: &bq.DatasetReference{ProjectId: s.projectID, DatasetId: datasetName}})
}

func (s *Server) AddTable(datasetName, tableName string, fields ...*bq.TableFieldSchema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[datasetName]
	if !ok {
		ds = s.addDataset(&bq.Dataset{DatasetReference: &bq.DatasetReference{ProjectId: s.projectID, DatasetId: datasetName}})
	}

	s.addTable(ds, &bq.Table{
		TableReference: &bq.TableReference{ProjectId: s.projectID, DatasetId: datasetName, TableId: tableName},
		Schema:         &bq.TableSchema{Fields: fields},
	})
}

// Table returns a copy of the stored table, if it exists.
func (s *Server) Table(datasetName, tableName string) (bq.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[datasetName]
	if !ok {
		return bq.Table{}, false
	}

	table, ok := ds.tables[tableName]
	if !ok {
		return bq.Table{}, false
	}

	return *table, true
}

func (s *Server) Dataset(datasetName string) (bq.Dataset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[datasetName]
	if !ok {
		return bq.Dataset{}, false
	}

	return *ds.meta, true
}

// JobIDs returns the IDs of every stored job, oldest first.
func (s *Server) JobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.jobOrder)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.URL.Path = strings.TrimPrefix(r.URL.Path, apiPrefix)
	r.URL.RawPath = ""

	s.mu.Lock()
	s.requests++
	for _, inj := range s.injected {
		if inj.method == r.Method && strings.HasSuffix(r.URL.Path, inj.suffix) {
			s.mu.Unlock()
			writeError(w, inj.code, inj.reason, inj.message)
			return
		}
	}
	s.mu.Unlock()

	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the same envelope googleapi.CheckResponse decodes into a *googleapi.Error.
func writeError(w http.ResponseWriter, code int, reason, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"errors": []map[string]string{
				{"reason": reason, "message": message, "domain": "global"},
			},
		},
	})
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	if err = json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to unmarshal body: %w", err)
	}

	return nil
}

// bodyHasField reports whether the raw request body explicitly carries field, patches only touch sent fields.
func bodyHasField(body []byte, field string) bool {
	var raw map[string]jsoniter.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return false
	}

	_, ok := raw[field]
	return ok
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func (s *Server) nextETag() string {
	s.etagSeq++
	return strconv.Itoa(s.etagSeq)
}

func (s *Server) addDataset(meta *bq.Dataset) *dataset {
	meta.Kind = "bigquery#dataset"
	meta.Id = fmt.Sprintf("%s:%s", s.projectID, meta.DatasetReference.DatasetId)
	meta.Etag = s.nextETag()
	meta.CreationTime = nowMillis()
	meta.LastModifiedTime = meta.CreationTime
	if meta.Location == "" {
		meta.Location = defaultLocation
	}

	ds := &dataset{
		meta:    meta,
		tables:  make(map[string]*bq.Table),
		deleted: make(map[string][]deletedTable),
	}
	s.datasets[meta.DatasetReference.DatasetId] = ds
	return ds
}

func (s *Server) addTable(ds *dataset, table *bq.Table) {
	table.Kind = "bigquery#table"
	table.Id = fmt.Sprintf("%s:%s.%s", s.projectID, table.TableReference.DatasetId, table.TableReference.TableId)
	table.Etag = s.nextETag()
	table.CreationTime = nowMillis()
	table.LastModifiedTime = uint64(table.CreationTime)
	table.Location = ds.meta.Location
	if table.Type == "" {
		table.Type = "TABLE"
	}

	ds.tables[table.TableReference.TableId] = table
}

func (s *Server) datasetNotFound(w http.ResponseWriter, datasetName string) {
	writeError(w, http.StatusNotFound, "notFound", fmt.Sprintf("Not found: Dataset %s:%s", s.projectID, datasetName))
}

func (s *Server) tableNotFoundMessage(datasetName, tableName string) string {
	return fmt.Sprintf("Not found: Table %s:%s.%s", s.projectID, datasetName, tableName)
}

func ifMatchFails(r *http.Request, etag string) bool {
	ifMatch := r.Header.Get("If-Match")
	return ifMatch != "" && ifMatch != etag
}

func (s *Server) insertDataset(w http.ResponseWriter, r *http.Request) {
	var meta bq.Dataset
	if err := decodeBody(r, &meta); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	if meta.DatasetReference == nil || meta.DatasetReference.DatasetId == "" {
		writeError(w, http.StatusBadRequest, "invalid", "Dataset reference is missing")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	datasetName := meta.DatasetReference.DatasetId
	if _, ok := s.datasets[datasetName]; ok {
		writeError(w, http.StatusConflict, "duplicate", fmt.Sprintf("Already Exists: Dataset %s:%s", s.projectID, datasetName))
		return
	}

	meta.DatasetReference.ProjectId = s.projectID
	ds := s.addDataset(&meta)
	writeJSON(w, http.StatusOK, ds.meta)
}

func (s *Server) listDatasets(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.datasets))
	for name := range s.datasets {
		names = append(names, name)
	}
	slices.Sort(names)

	var list bq.DatasetList
	list.Kind = "bigquery#datasetList"
	for _, name := range names {
		meta := s.datasets[name].meta
		list.Datasets = append(list.Datasets, &bq.DatasetListDatasets{
			Kind:             meta.Kind,
			Id:               meta.Id,
			DatasetReference: meta.DatasetReference,
			Location:         meta.Location,
		})
	}

	writeJSON(w, http.StatusOK, &list)
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[r.PathValue("dataset")]
	if !ok {
		s.datasetNotFound(w, r.PathValue("dataset"))
		return
	}

	writeJSON(w, http.StatusOK, ds.meta)
}

func (s *Server) patchDataset(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	var patch bq.Dataset
	if err = json.Unmarshal(body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[r.PathValue("dataset")]
	if !ok {
		s.datasetNotFound(w, r.PathValue("dataset"))
		return
	}

	if ifMatchFails(r, ds.meta.Etag) {
		writeError(w, http.StatusPreconditionFailed, "failedPrecondition", "Precondition check failed.")
		return
	}

	if bodyHasField(body, "description") {
		ds.meta.Description = patch.Description
	}

	ds.meta.Etag = s.nextETag()
	ds.meta.LastModifiedTime = nowMillis()
	writeJSON(w, http.StatusOK, ds.meta)
}

func (s *Server) deleteDataset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	datasetName := r.PathValue("dataset")
	ds, ok := s.datasets[datasetName]
	if !ok {
		s.datasetNotFound(w, datasetName)
		return
	}

	if len(ds.tables) > 0 && r.URL.Query().Get("deleteContents") != "true" {
		writeError(w, http.StatusBadRequest, "resourceInUse", fmt.Sprintf("Dataset %s:%s is still in use", s.projectID, datasetName))
		return
	}

	delete(s.datasets, datasetName)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) insertTable(w http.ResponseWriter, r *http.Request) {
	var table bq.Table
	if err := decodeBody(r, &table); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	if table.TableReference == nil || table.TableReference.TableId == "" {
		writeError(w, http.StatusBadRequest, "invalid", "Table reference is missing")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	datasetName := r.PathValue("dataset")
	ds, ok := s.datasets[datasetName]
	if !ok {
		s.datasetNotFound(w, datasetName)
		return
	}

	tableName := table.TableReference.TableId
	if _, ok = ds.tables[tableName]; ok {
		writeError(w, http.StatusConflict, "duplicate", fmt.Sprintf("Already Exists: Table %s:%s.%s", s.projectID, datasetName, tableName))
		return
	}

	table.TableReference.ProjectId = s.projectID
	table.TableReference.DatasetId = datasetName
	s.addTable(ds, &table)
	writeJSON(w, http.StatusOK, &table)
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[r.PathValue("dataset")]
	if !ok {
		s.datasetNotFound(w, r.PathValue("dataset"))
		return
	}

	names := make([]string, 0, len(ds.tables))
	for name := range ds.tables {
		names = append(names, name)
	}
	slices.Sort(names)

	list := bq.TableList{Kind: "bigquery#tableList", TotalItems: int64(len(names))}
	for _, name := range names {
		table := ds.tables[name]
		list.Tables = append(list.Tables, &bq.TableListTables{
			Kind:           table.Kind,
			Id:             table.Id,
			TableReference: table.TableReference,
			Type:           table.Type,
			CreationTime:   table.CreationTime,
		})
	}

	writeJSON(w, http.StatusOK, &list)
}

func (s *Server) lookupTable(w http.ResponseWriter, r *http.Request) (*dataset, *bq.Table, bool) {
	datasetName, tableName := r.PathValue("dataset"), r.PathValue("table")
	ds, ok := s.datasets[datasetName]
	if !ok {
		s.datasetNotFound(w, datasetName)
		return nil, nil, false
	}

	table, ok := ds.tables[tableName]
	if !ok {
		writeError(w, http.StatusNotFound, "notFound", s.tableNotFoundMessage(datasetName, tableName))
		return nil, nil, false
	}

	return ds, table, true
}

func (s *Server) getTable(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, table, ok := s.lookupTable(w, r); ok {
		writeJSON(w, http.StatusOK, table)
	}
}

func (s *Server) patchTable(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	var patch bq.Table
	if err = json.Unmarshal(body, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, table, ok := s.lookupTable(w, r)
	if !ok {
		return
	}

	if ifMatchFails(r, table.Etag) {
		writeError(w, http.StatusPreconditionFailed, "failedPrecondition", "Precondition check failed.")
		return
	}

	if bodyHasField(body, "description") {
		table.Description = patch.Description
	}

	table.Etag = s.nextETag()
	table.LastModifiedTime = uint64(nowMillis())
	writeJSON(w, http.StatusOK, table)
}

func (s *Server) deleteTable(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, table, ok := s.lookupTable(w, r)
	if !ok {
		return
	}

	tableName := table.TableReference.TableId
	delete(ds.tables, tableName)
	ds.deleted[tableName] = append(ds.deleted[tableName], deletedTable{table: table, deletedAt: time.Now()})
	w.WriteHeader(http.StatusNoContent)
}

// resolveSource finds the table a job reads from. `name@millis` resolves against live and deleted
// tables that already existed at that point in time.
func (s *Server) resolveSource(ref *bq.TableReference) (*bq.Table, bool) {
	if ref == nil {
		return nil, false
	}

	ds, ok := s.datasets[ref.DatasetId]
	if !ok {
		return nil, false
	}

	name, snapshot, isSnapshot := strings.Cut(ref.TableId, "@")
	if !isSnapshot {
		table, ok := ds.tables[name]
		return table, ok
	}

	millis, err := strconv.ParseInt(snapshot, 10, 64)
	if err != nil {
		return nil, false
	}

	if table, ok := ds.tables[name]; ok && table.CreationTime <= millis {
		return table, true
	}

	versions := ds.deleted[name]
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].table.CreationTime <= millis && versions[i].deletedAt.UnixMilli() >= millis {
			return versions[i].table, true
		}
	}

	return nil, false
}

func jobFailure(reason, message string) *bq.JobStatus {
	errProto := &bq.ErrorProto{Reason: reason, Message: message}
	return &bq.JobStatus{State: "DONE", ErrorResult: errProto, Errors: []*bq.ErrorProto{errProto}}
}

func (s *Server) newJobReference(ref *bq.JobReference) *bq.JobReference {
	if ref == nil {
		ref = &bq.JobReference{}
	}

	if ref.JobId == "" {
		ref.JobId = "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	ref.ProjectId = s.projectID
	if ref.Location == "" {
		ref.Location = defaultLocation
	}

	return ref
}

func (s *Server) insertJob(w http.ResponseWriter, r *http.Request) {
	var job bq.Job
	if err := decodeBody(r, &job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	if job.Configuration == nil {
		writeError(w, http.StatusBadRequest, "invalid", "Job configuration is missing")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job.Kind = "bigquery#job"
	job.JobReference = s.newJobReference(job.JobReference)
	job.Id = fmt.Sprintf("%s:%s.%s", s.projectID, job.JobReference.Location, job.JobReference.JobId)
	if _, ok := s.jobs[job.JobReference.JobId]; ok {
		writeError(w, http.StatusConflict, "duplicate", "Already Exists: Job "+job.Id)
		return
	}

	now := nowMillis()
	job.Statistics = &bq.JobStatistics{CreationTime: now, StartTime: now, EndTime: now}
	job.Status = &bq.JobStatus{State: "DONE"}

	cfg := job.Configuration
	switch {
	case cfg.Query != nil:
		result, ok := s.queries[cfg.Query.Query]
		if !ok {
			writeError(w, http.StatusBadRequest, "invalidQuery", fmt.Sprintf("Syntax error: Unrecognized query %q", cfg.Query.Query))
			return
		}

		job.Statistics.TotalBytesProcessed = result.BytesProcessed
		if cfg.DryRun {
			// Dry runs are never persisted.
			writeJSON(w, http.StatusOK, &job)
			return
		}
	case cfg.Copy != nil:
		job.Status = s.runCopy(cfg.Copy)
	case cfg.Load != nil:
		job.Status = s.runLoad(cfg.Load)
	case cfg.Extract != nil:
		if _, ok := s.resolveSource(cfg.Extract.SourceTable); !ok {
			ref := cfg.Extract.SourceTable
			job.Status = jobFailure("notFound", s.tableNotFoundMessage(ref.DatasetId, ref.TableId))
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid", "Unsupported job configuration")
		return
	}

	s.storeJob(&job)
	writeJSON(w, http.StatusOK, &job)
}

func (s *Server) storeJob(job *bq.Job) {
	s.jobs[job.JobReference.JobId] = job
	s.jobOrder = append(s.jobOrder, job.JobReference.JobId)
}

func (s *Server) runCopy(cfg *bq.JobConfigurationTableCopy) *bq.JobStatus {
	sources := cfg.SourceTables
	if cfg.SourceTable != nil {
		sources = append(sources, cfg.SourceTable)
	}

	if len(sources) == 0 || cfg.DestinationTable == nil {
		return jobFailure("invalid", "Copy job needs a source and a destination table")
	}

	var fields []*bq.TableFieldSchema
	for _, ref := range sources {
		src, ok := s.resolveSource(ref)
		if !ok {
			return jobFailure("notFound", s.tableNotFoundMessage(ref.DatasetId, ref.TableId))
		}

		if src.Schema != nil {
			fields = src.Schema.Fields
		}
	}

	dst := cfg.DestinationTable
	ds, ok := s.datasets[dst.DatasetId]
	if !ok {
		return jobFailure("notFound", fmt.Sprintf("Not found: Dataset %s:%s", s.projectID, dst.DatasetId))
	}

	if _, exists := ds.tables[dst.TableId]; exists && cfg.WriteDisposition == "WRITE_EMPTY" {
		return jobFailure("duplicate", fmt.Sprintf("Already Exists: Table %s:%s.%s", s.projectID, dst.DatasetId, dst.TableId))
	}

	s.addTable(ds, &bq.Table{
		TableReference: &bq.TableReference{ProjectId: s.projectID, DatasetId: dst.DatasetId, TableId: dst.TableId},
		Schema:         &bq.TableSchema{Fields: fields},
	})
	return &bq.JobStatus{State: "DONE"}
}

func (s *Server) runLoad(cfg *bq.JobConfigurationLoad) *bq.JobStatus {
	dst := cfg.DestinationTable
	if dst == nil || len(cfg.SourceUris) == 0 {
		return jobFailure("invalid", "Load job needs source URIs and a destination table")
	}

	ds, ok := s.datasets[dst.DatasetId]
	if !ok {
		return jobFailure("notFound", fmt.Sprintf("Not found: Dataset %s:%s", s.projectID, dst.DatasetId))
	}

	for _, uri := range cfg.SourceUris {
		if !s.objectExists(uri) {
			return jobFailure("notFound", fmt.Sprintf("Not found: URI %s", uri))
		}
	}

	if _, exists := ds.tables[dst.TableId]; !exists {
		schema := cfg.Schema
		if schema == nil {
			schema = &bq.TableSchema{}
		}

		s.addTable(ds, &bq.Table{
			TableReference: &bq.TableReference{ProjectId: s.projectID, DatasetId: dst.DatasetId, TableId: dst.TableId},
			Schema:         schema,
		})
	}

	return &bq.JobStatus{State: "DONE"}
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*bq.Job, bool) {
	job, ok := s.jobs[r.PathValue("job")]
	if !ok {
		writeError(w, http.StatusNotFound, "notFound", fmt.Sprintf("Not found: Job %s:%s", s.projectID, r.PathValue("job")))
		return nil, false
	}

	return job, true
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.lookupJob(w, r); ok {
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := bq.JobList{Kind: "bigquery#jobList"}
	// Newest first, the way the API orders them.
	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		job := s.jobs[s.jobOrder[i]]
		list.Jobs = append(list.Jobs, &bq.JobListJobs{
			Kind:          job.Kind,
			Id:            job.Id,
			JobReference:  job.JobReference,
			State:         job.Status.State,
			Status:        job.Status,
			ErrorResult:   job.Status.ErrorResult,
			Configuration: job.Configuration,
			Statistics:    job.Statistics,
		})
	}

	writeJSON(w, http.StatusOK, &list)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, &bq.JobCancelResponse{Kind: "bigquery#jobCancelResponse", Job: job})
}

func toRows(values [][]any) []*bq.TableRow {
	rows := make([]*bq.TableRow, 0, len(values))
	for _, row := range values {
		cells := make([]*bq.TableCell, len(row))
		for i, value := range row {
			cell := &bq.TableCell{}
			if value != nil {
				// The REST API encodes every scalar as a string.
				cell.V = fmt.Sprint(value)
			}
			cells[i] = cell
		}
		rows = append(rows, &bq.TableRow{F: cells})
	}

	return rows
}

// query serves jobs.query, which the client prefers over jobs.insert for plain reads.
func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req bq.QueryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.queries[req.Query]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalidQuery", fmt.Sprintf("Syntax error: Unrecognized query %q", req.Query))
		return
	}

	ref := s.newJobReference(&bq.JobReference{Location: req.Location})
	now := nowMillis()
	job := &bq.Job{
		Kind:          "bigquery#job",
		Id:            fmt.Sprintf("%s:%s.%s", s.projectID, ref.Location, ref.JobId),
		JobReference:  ref,
		Configuration: &bq.JobConfiguration{Query: &bq.JobConfigurationQuery{Query: req.Query}},
		Status:        &bq.JobStatus{State: "DONE"},
		Statistics:    &bq.JobStatistics{CreationTime: now, StartTime: now, EndTime: now, TotalBytesProcessed: result.BytesProcessed},
	}
	s.storeJob(job)

	writeJSON(w, http.StatusOK, &bq.QueryResponse{
		Kind:                "bigquery#queryResponse",
		JobComplete:         true,
		JobReference:        ref,
		Schema:              &bq.TableSchema{Fields: result.Fields},
		Rows:                toRows(result.Rows),
		TotalRows:           uint64(len(result.Rows)),
		TotalBytesProcessed: result.BytesProcessed,
	})
}

func (s *Server) getQueryResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	if job.Configuration.Query == nil {
		writeError(w, http.StatusBadRequest, "invalid", fmt.Sprintf("Job %s is not a query", job.Id))
		return
	}

	result := s.queries[job.Configuration.Query.Query]
	resp := bq.GetQueryResultsResponse{
		Kind:         "bigquery#getQueryResultsResponse",
		JobComplete:  true,
		JobReference: job.JobReference,
		Schema:       &bq.TableSchema{Fields: result.Fields},
		TotalRows:    uint64(len(result.Rows)),
	}

	if r.URL.Query().Get("maxResults") != "0" {
		resp.Rows = toRows(result.Rows)
	}

	writeJSON(w, http.StatusOK, &resp)
}
