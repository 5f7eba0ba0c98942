package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	"github.com/mohammadpnp/bulk-import/internal/config"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	cfg.Import.Workers = 2
	cfg.Broadcaster.CompletedGrace = 50 * time.Millisecond
	cfg.Broadcaster.FailedGrace = 50 * time.Millisecond

	ctx := context.Background()
	db, err := OpenDatabase(ctx, cfg.Database)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx, cfg.Archive.Enabled))

	a, err := NewApp(cfg, db, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	runCtx, cancel := context.WithCancel(ctx)
	wait := a.StartWorkers(runCtx)
	t.Cleanup(func() {
		cancel()
		_ = wait()
	})
	return a
}

func TestImportAndWaitRunsPipelineEndToEnd(t *testing.T) {
	a := newTestApp(t)

	csv := "Daftar Toko\n\nKode Toko,Nama Toko,Wilayah\nS-1,Store One,Jakarta\nS-2,,Bandung\nS-1,Store One Renamed,Jakarta\n"
	job, err := a.ImportAndWait(context.Background(), app.SubmitImportInput{
		TableType: "stores",
		FileName:  "stores.csv",
		Data:      []byte(csv),
	}, nil)
	require.NoError(t, err)

	require.Equal(t, domain.StatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	require.Equal(t, domain.ImportSummary{
		TotalRecords:      3,
		NewRecords:        1,
		DuplicatesRemoved: 1,
		ErrorRecords:      1,
	}, job.Result.Summary)
	require.Equal(t, int64(1), job.Result.SuccessCount)
	require.Equal(t, []domain.ImportFailure{{RowNumber: 2, Message: "store name is required"}}, job.Result.Errors)

	var name string
	require.NoError(t, a.db.SQL.Get(&name, `SELECT store_name FROM stores WHERE store_code = 'S-1'`))
	require.Equal(t, "Store One Renamed", name)
}

func TestHTTPSubmitAndPoll(t *testing.T) {
	a := newTestApp(t)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "items.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("item_code,item_name\nA-1,Alpha\nA-2,Beta\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/items", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	a.Server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var submitted struct {
		Data app.SubmitImportOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.Data.JobID)

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		a.Server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/imports/jobs/"+submitted.Data.JobID, nil))
		var got struct {
			Data domain.JobView `json:"data"`
		}
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &got) != nil {
			return false
		}
		return got.Data.Status == domain.StatusCompleted && got.Data.Result.Summary.NewRecords == 2
	}, 5*time.Second, 20*time.Millisecond)

	rec = httptest.NewRecorder()
	a.Server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `bulk_import_jobs_total{status="completed",table_type="items"} 1`)

	rec = httptest.NewRecorder()
	a.Server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestImportAndWaitRejectsUnreadableHeaders(t *testing.T) {
	a := newTestApp(t)

	_, err := a.ImportAndWait(context.Background(), app.SubmitImportInput{
		TableType: "items",
		FileName:  "notes.csv",
		Data:      []byte("foo,bar\n1,2\n"),
	}, nil)
	var headerErr *domain.HeaderNotFoundError
	require.ErrorAs(t, err, &headerErr)

	_, err = a.ImportAndWait(context.Background(), app.SubmitImportInput{
		TableType: "items",
		FileName:  "names.csv",
		Data:      []byte("Nama Item,Brand\nfoo,bar\n"),
	}, nil)
	var missingErr *domain.MissingColumnsError
	require.ErrorAs(t, err, &missingErr)
	require.Empty(t, a.Queue.List())
}
