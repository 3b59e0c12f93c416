package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/sirta-dev/sirta/modules/registry/services"
	"github.com/sirta-dev/sirta/pkg/configuration"
	"github.com/sirta-dev/sirta/pkg/excel"
	"github.com/sirta-dev/sirta/pkg/serrors"
)

// IngestController exposes the batch ingest surface: validate, process and
// template download. Spreadsheets arrive as multipart uploads under the
// "file" field.
type IngestController struct {
	ingest   *services.IngestService
	basePath string
}

func NewIngestController(ingest *services.IngestService) *IngestController {
	return &IngestController{
		ingest:   ingest,
		basePath: "/registry/ingest",
	}
}

func (c *IngestController) Key() string {
	return c.basePath
}

func (c *IngestController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/{kind}/template", c.Template).Methods(http.MethodGet)
	router.HandleFunc("/{kind}/validate", c.Validate).Methods(http.MethodPost)
	router.HandleFunc("/{kind}/process", c.Process).Methods(http.MethodPost)
}

func batchKind(r *http.Request) (services.BatchKind, bool) {
	switch strings.ToUpper(mux.Vars(r)["kind"]) {
	case "RESOLUTIONS", "RESOLUCIONES":
		return services.BatchResolutions, true
	case "ROUTES", "RUTAS":
		return services.BatchRoutes, true
	}
	return "", false
}

func (c *IngestController) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	conf := configuration.Use()
	if err := r.ParseMultipartForm(int64(conf.MaxUploadSize)); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_UPLOAD", "expected a multipart upload")
		return nil, false
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_UPLOAD", "missing \"file\" field")
		return nil, false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_UPLOAD", "unreadable upload")
		return nil, false
	}
	return data, true
}

func (c *IngestController) Validate(w http.ResponseWriter, r *http.Request) {
	kind, ok := batchKind(r)
	if !ok {
		writeAPIError(w, http.StatusNotFound, "UNKNOWN_KIND", "unknown batch kind")
		return
	}
	data, ok := c.readUpload(w, r)
	if !ok {
		return
	}

	report, err := c.ingest.Validate(r.Context(), data, kind)
	if err != nil {
		writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (c *IngestController) Process(w http.ResponseWriter, r *http.Request) {
	kind, ok := batchKind(r)
	if !ok {
		writeAPIError(w, http.StatusNotFound, "UNKNOWN_KIND", "unknown batch kind")
		return
	}
	data, ok := c.readUpload(w, r)
	if !ok {
		return
	}
	dryRun := strings.EqualFold(r.URL.Query().Get("dry_run"), "true")

	report, err := c.ingest.Process(r.Context(), data, kind, dryRun)
	if err != nil {
		writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (c *IngestController) Template(w http.ResponseWriter, r *http.Request) {
	kind, ok := batchKind(r)
	if !ok {
		writeAPIError(w, http.StatusNotFound, "UNKNOWN_KIND", "unknown batch kind")
		return
	}

	data, err := c.ingest.GenerateTemplate(kind)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL", "template generation failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", strings.ToLower(string(kind))+"_template.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeIngestError maps batch-level failures: a bad or truncated workbook and
// missing headers are the caller's fault, everything else is internal.
func writeIngestError(w http.ResponseWriter, err error) {
	if code := serrors.CodeOf(err); code == "MISSING_HEADER" {
		writeAPIError(w, http.StatusUnprocessableEntity, code, err.Error())
		return
	}
	if errors.Is(err, excel.ErrMissingHeader) {
		writeAPIError(w, http.StatusUnprocessableEntity, "MISSING_HEADER", err.Error())
		return
	}
	writeAPIError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}
