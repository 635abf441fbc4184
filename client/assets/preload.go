package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cbodonnell/roadtrip/pkg/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxManifestSize = 4 << 20

// Manifest is the JSON document listing the models a deployment serves.
type Manifest struct {
	Models []Model `json:"models"`
}

// NewHTTPClient returns the client used for asset requests, instrumented with OTel.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Preload fetches the manifest at manifestURL and populates the catalog with it.
func Preload(ctx context.Context, client *http.Client, manifestURL string, catalog *Catalog) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create manifest request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch manifest: unexpected status %s", resp.Status)
	}

	manifest := &Manifest{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxManifestSize)).Decode(manifest); err != nil {
		return fmt.Errorf("failed to decode manifest: %w", err)
	}
	if err := catalog.Populate(manifest.Models); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	log.Info("Loaded %d models from %s", len(manifest.Models), manifestURL)
	return nil
}
