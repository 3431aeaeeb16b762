package bqtest

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"
	"time"

	gcs "google.golang.org/api/storage/v1"
)

const storagePrefix = "/storage/v1"

func (s *Server) registerStorageRoutes() {
	s.mux.HandleFunc("POST /upload/storage/v1/b/{bucket}/o", s.uploadObject)
	s.mux.HandleFunc("GET /storage/v1/b/{bucket}/o", s.listObjects)
	s.mux.HandleFunc("DELETE /storage/v1/b/{bucket}/o/{object...}", s.deleteObject)
}

// StorageEndpoint is the base path to hand to the storage client's option.WithEndpoint.
func (s *Server) StorageEndpoint() string {
	return s.srv.URL + storagePrefix + "/"
}

// AddBucket makes bucket accept uploads. Load jobs reading from a known bucket fail when the object is missing.
func (s *Server) AddBucket(bucket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string][]byte)
	}
}

// Objects returns the sorted names of the objects stored in bucket.
func (s *Server) Objects(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.buckets[bucket]))
}

// Uploads returns every object name ever written to bucket, in upload order.
func (s *Server) Uploads(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.uploads[bucket])
}

func (s *Server) bucketNotFound(w http.ResponseWriter, bucket string) {
	writeError(w, http.StatusNotFound, "notFound", fmt.Sprintf("The specified bucket does not exist: %s", bucket))
}

// objectExists reports whether a gs:// URI points at a stored object. URIs in buckets the server does not know are
// assumed to exist, so load jobs can reference arbitrary external files.
func (s *Server) objectExists(uri string) bool {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, "gs://"), "/")
	if !ok {
		return false
	}

	objects, known := s.buckets[bucket]
	if !known {
		return true
	}

	_, ok = objects[key]
	return ok
}

// uploadObject handles uploadType=multipart: a JSON metadata part followed by the media part.
func (s *Server) uploadObject(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		writeError(w, http.StatusBadRequest, "invalid", "Only multipart uploads are supported")
		return
	}

	reader := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := reader.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", fmt.Sprintf("Missing metadata part: %v", err))
		return
	}

	var obj gcs.Object
	if err = json.NewDecoder(metaPart).Decode(&obj); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", fmt.Sprintf("Invalid metadata part: %v", err))
		return
	}

	mediaPart, err := reader.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", fmt.Sprintf("Missing media part: %v", err))
		return
	}

	data, err := io.ReadAll(mediaPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", fmt.Sprintf("Failed to read media part: %v", err))
		return
	}

	name := cmp.Or(obj.Name, r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "required", "Required parameter: name")
		return
	}

	s.mu.Lock()
	objects, ok := s.buckets[bucket]
	if !ok {
		s.mu.Unlock()
		s.bucketNotFound(w, bucket)
		return
	}
	objects[name] = data
	s.uploads[bucket] = append(s.uploads[bucket], name)
	s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	obj.Kind = "storage#object"
	obj.Bucket = bucket
	obj.Name = name
	obj.Id = fmt.Sprintf("%s/%s", bucket, name)
	obj.Size = uint64(len(data))
	obj.Generation = time.Now().UnixMicro()
	obj.Metageneration = 1
	obj.TimeCreated = now
	obj.Updated = now
	writeJSON(w, http.StatusOK, &obj)
}

func (s *Server) listObjects(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	prefix := r.URL.Query().Get("prefix")

	s.mu.Lock()
	objects, ok := s.buckets[bucket]
	if !ok {
		s.mu.Unlock()
		s.bucketNotFound(w, bucket)
		return
	}

	resp := &gcs.Objects{Kind: "storage#objects"}
	for _, name := range slices.Sorted(maps.Keys(objects)) {
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		resp.Items = append(resp.Items, &gcs.Object{
			Kind:   "storage#object",
			Bucket: bucket,
			Name:   name,
			Id:     fmt.Sprintf("%s/%s", bucket, name),
			Size:   uint64(len(objects[name])),
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteObject(w http.ResponseWriter, r *http.Request) {
	bucket, name := r.PathValue("bucket"), r.PathValue("object")

	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		s.bucketNotFound(w, bucket)
		return
	}

	if _, ok = objects[name]; !ok {
		writeError(w, http.StatusNotFound, "notFound", fmt.Sprintf("No such object: %s/%s", bucket, name))
		return
	}

	delete(objects, name)
	w.WriteHeader(http.StatusNoContent)
}
