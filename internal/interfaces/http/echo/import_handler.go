package echo

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

const idempotencyHeader = "Idempotency-Key"

type ImportHandler struct {
	useCase app.SubmitImport
}

type tableTypeInfo struct {
	TableType   domain.TableType    `json:"tableType"`
	TargetTable string              `json:"targetTable"`
	Columns     []string            `json:"columns"`
	Key         []string            `json:"key"`
	Parent      string              `json:"parent,omitempty"`
	Aliases     map[string][]string `json:"aliases"`
}

func NewImportHandler(useCase app.SubmitImport) *ImportHandler {
	return &ImportHandler{useCase: useCase}
}

// Submit accepts a multipart upload with a "file" part, an optional
// "idempotency_key" field (or Idempotency-Key header) and an optional
// "additional_data" JSON object.
func (h *ImportHandler) Submit(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return respondError(c, http.StatusBadRequest, "bad_request", "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return respondError(c, http.StatusBadRequest, "bad_request", "uploaded file could not be read")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return respondError(c, http.StatusBadRequest, "bad_request", "uploaded file could not be read")
	}

	additional, err := parseAdditionalData(c.FormValue("additional_data"))
	if err != nil {
		return respondError(c, http.StatusBadRequest, "bad_request", err.Error())
	}

	key := c.FormValue("idempotency_key")
	if key == "" {
		key = c.Request().Header.Get(idempotencyHeader)
	}

	out, err := h.useCase.Execute(c.Request().Context(), app.SubmitImportInput{
		TableType:      c.Param("tableType"),
		FileName:       fh.Filename,
		Data:           data,
		IdempotencyKey: key,
		AdditionalData: additional,
	})
	if err != nil {
		return respondUseCaseError(c, err, "failed to enqueue import job")
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: out})
}

func (h *ImportHandler) TableTypes(c echo.Context) error {
	out := make([]tableTypeInfo, 0, len(domain.TableTypes()))
	for _, tt := range domain.TableTypes() {
		s, err := domain.LookupSchema(tt)
		if err != nil {
			continue
		}
		info := tableTypeInfo{
			TableType:   tt,
			TargetTable: s.TargetTable,
			Columns:     s.ExpectedColumns(),
			Aliases:     make(map[string][]string, len(s.Fields)),
		}
		for _, f := range s.Fields {
			aliases := s.Aliases(f)
			sort.Strings(aliases)
			info.Aliases[f.Column()] = aliases
		}
		for _, k := range s.Key {
			info.Key = append(info.Key, k.Column())
		}
		if s.ParentField != 0 {
			info.Parent = s.ParentField.Column()
		}
		out = append(out, info)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

// parseAdditionalData accepts a flat JSON object. Non-string values are
// rendered with their JSON text.
func parseAdditionalData(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("additional_data must be a JSON object")
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}
