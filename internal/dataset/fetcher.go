// Package dataset implements the tiered read path for large, read-mostly
// datasets: process-local cache, then the primary bulk store, then a backup
// object resolved through the replicated cache.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"github.com/school-platform/attendance-service/internal/config"
	"github.com/school-platform/attendance-service/internal/localcache"
	"github.com/school-platform/attendance-service/internal/loggingclient"
	"github.com/school-platform/attendance-service/internal/observability"
	"github.com/school-platform/attendance-service/internal/replicated"
	"github.com/school-platform/attendance-service/internal/store"
)

// Source tags where a fetched dataset came from.
type Source int

const (
	// SourceCache means the process-local cache served the data.
	SourceCache Source = iota
	// SourcePrimary means the primary bulk store served the data.
	SourcePrimary
	// SourceBackup means the backup object store served the data.
	SourceBackup
)

// String returns the source tag.
func (s Source) String() string {
	switch s {
	case SourcePrimary:
		return "primary"
	case SourceBackup:
		return "backup"
	default:
		return "cache"
	}
}

// Dataset describes one named dataset of the tiered read path.
type Dataset struct {
	// Name identifies the dataset to callers and the invalidation broker.
	Name string
	// PrimaryPath is the path of the dataset on the primary bulk store.
	PrimaryPath string
	// BackupIDKey is the reports-group cache key holding the identifier of
	// the dataset's backup object.
	BackupIDKey string
	// CacheTTL is the dataset's own local staleness bound. High-churn and
	// low-churn datasets are not forced to share one.
	CacheTTL time.Duration
}

// Defaults returns the datasets served by this deployment, with per-dataset
// TTL overrides applied from config.
func Defaults(cfg config.DatasetsConfig) []Dataset {
	datasets := []Dataset{
		{Name: "roster-primary", PrimaryPath: "/datos/nomina-primaria.json", BackupIDKey: "respaldo:nomina-primaria", CacheTTL: time.Hour},
		{Name: "roster-secondary", PrimaryPath: "/datos/nomina-secundaria.json", BackupIDKey: "respaldo:nomina-secundaria", CacheTTL: time.Hour},
		{Name: "schedule-today", PrimaryPath: "/datos/horario-del-dia.json", BackupIDKey: "respaldo:horario-del-dia", CacheTTL: time.Hour},
		{Name: "list-updates", PrimaryPath: "/datos/reportes-actualizacion.json", BackupIDKey: "respaldo:reportes-actualizacion", CacheTTL: 2 * time.Hour},
	}
	for i := range datasets {
		if ttl, ok := cfg.TTLs[datasets[i].Name]; ok && ttl > 0 {
			datasets[i].CacheTTL = ttl
		}
	}
	return datasets
}

// Result is a fetched dataset tagged with the tier that served it.
type Result struct {
	Data   []byte
	Source Source
}

// BackupStore fetches backup objects by identifier.
type BackupStore interface {
	Fetch(ctx context.Context, objectID string) ([]byte, error)
}

// TierError is raised when both the primary and backup tiers fail. It
// embeds both underlying failures so callers are never left to guess which
// tier broke.
type TierError struct {
	Primary error
	Backup  error
}

// Error implements the error interface.
func (e *TierError) Error() string {
	return fmt.Sprintf("all tiers failed: primary: %v; backup: %v", e.Primary, e.Backup)
}

// Unwrap exposes both underlying failures to errors.Is/As.
func (e *TierError) Unwrap() []error {
	return []error{e.Primary, e.Backup}
}

// Fetcher is the tiered read path for named datasets.
type Fetcher struct {
	datasets map[string]Dataset
	local    *localcache.Cache
	client   *http.Client
	baseURL  string
	timeout  time.Duration
	cache    *replicated.Client
	backup   BackupStore
	logger   *loggingclient.Client
	metrics  *observability.Metrics
}

// NewFetcher creates a tiered fetcher for the given datasets.
func NewFetcher(cfg config.DatasetsConfig, datasets []Dataset, cache *replicated.Client, backup BackupStore, logger *loggingclient.Client, metrics *observability.Metrics) *Fetcher {
	if logger == nil {
		logger = loggingclient.NewNoop()
	}
	byName := make(map[string]Dataset, len(datasets))
	for _, d := range datasets {
		byName[d.Name] = d
	}
	return &Fetcher{
		datasets: byName,
		local:    localcache.New(),
		client:   &http.Client{},
		baseURL:  strings.TrimRight(cfg.PrimaryBaseURL, "/"),
		timeout:  cfg.FetchTimeout,
		cache:    cache,
		backup:   backup,
		logger:   logger,
		metrics:  metrics,
	}
}

// Datasets lists the configured dataset names.
func (f *Fetcher) Datasets() []string {
	names := make([]string, 0, len(f.datasets))
	for name := range f.datasets {
		names = append(names, name)
	}
	return names
}

// Fetch resolves a dataset through the tiers in order: local cache, primary
// bulk store, backup object store. It stops at the first success and tags
// the result with its source. When both network tiers fail the error is a
// *TierError carrying both failures.
func (f *Fetcher) Fetch(ctx context.Context, name string) (*Result, error) {
	ds, ok := f.datasets[name]
	if !ok {
		return nil, store.WrapError(store.ErrInvalidRequest, fmt.Sprintf("unknown dataset %q", name), nil)
	}

	if data, ok := f.local.Get(ds.Name); ok {
		f.recordFetch(ds.Name, SourceCache)
		return &Result{Data: data, Source: SourceCache}, nil
	}

	data, primaryErr := f.fetchPrimary(ctx, ds)
	if primaryErr == nil {
		f.local.Set(ds.Name, data, ds.CacheTTL)
		f.recordFetch(ds.Name, SourcePrimary)
		return &Result{Data: data, Source: SourcePrimary}, nil
	}
	f.logger.Warn(ctx, "primary dataset fetch failed, trying backup",
		loggingclient.String("dataset", ds.Name),
		loggingclient.Error(primaryErr),
	)

	data, backupErr := f.fetchBackup(ctx, ds)
	if backupErr == nil {
		f.local.Set(ds.Name, data, ds.CacheTTL)
		f.recordFetch(ds.Name, SourceBackup)
		return &Result{Data: data, Source: SourceBackup}, nil
	}

	return nil, store.WrapError(store.ErrUpstream, "dataset unavailable on every tier",
		&TierError{Primary: primaryErr, Backup: backupErr})
}

// Invalidate drops the local entry for a dataset, forcing the next Fetch to
// go to the network tiers.
func (f *Fetcher) Invalidate(name string) bool {
	return f.local.Invalidate(name)
}

// fetchPrimary pulls the dataset from the primary bulk store. The whole
// round trip races the configured timeout; firing counts as a tier failure.
func (f *Fetcher) fetchPrimary(ctx context.Context, ds Dataset) ([]byte, error) {
	if f.baseURL == "" {
		return nil, errors.New("primary base URL is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+ds.PrimaryPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("primary fetch timed out after %s", f.timeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("primary returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := validateStructured(resp.Header.Get("Content-Type"), body); err != nil {
		return nil, err
	}
	return body, nil
}

// fetchBackup resolves the backup object identifier from the reports group
// and pulls the object from the backup store.
func (f *Fetcher) fetchBackup(ctx context.Context, ds Dataset) ([]byte, error) {
	if f.backup == nil {
		return nil, errors.New("backup store is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	objectID, err := f.cache.Get(ctx, store.GroupReports, ds.BackupIDKey)
	if err != nil {
		return nil, fmt.Errorf("backup identifier lookup failed: %w", err)
	}

	data, err := f.backup.Fetch(ctx, string(objectID))
	if err != nil {
		return nil, err
	}
	if err := validateStructured("", data); err != nil {
		return nil, err
	}
	return data, nil
}

// validateStructured checks that a response body is well-formed structured
// data. The content-type header alone is not trusted: when it is absent or
// wrong the body is sniffed, and a recognizable binary payload is named in
// the error.
func validateStructured(contentType string, body []byte) error {
	if len(body) == 0 {
		return errors.New("response body is empty")
	}

	if strings.Contains(contentType, "application/json") && json.Valid(body) {
		return nil
	}

	// Header absent or wrong: sniff the body.
	if json.Valid(body) {
		return nil
	}
	if kind, err := filetype.Match(body); err == nil && kind != filetype.Unknown {
		return fmt.Errorf("response is %s, not structured data", kind.MIME.Value)
	}
	return errors.New("response is not well-formed structured data")
}

func (f *Fetcher) recordFetch(name string, source Source) {
	if f.metrics != nil {
		f.metrics.TierFetchTotal.WithLabelValues(name, source.String()).Inc()
	}
}
