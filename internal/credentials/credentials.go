// Package credentials loads the opaque authentication context attached to
// hub requests. Cookies come from a session export on disk; the harvester
// never acquires or refreshes them itself.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

// cookieRecord mirrors one entry of the exported cookie file.
type cookieRecord struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// FileProvider reads a JSON cookie export. A missing file is not an error:
// the harvest proceeds anonymously and gated repositories simply stay
// retry-eligible until an operator supplies a session.
type FileProvider struct {
	path   string
	logger *zap.Logger
}

// NewFileProvider builds a provider for the given cookie file path. An empty
// path disables credentials entirely.
func NewFileProvider(path string, logger *zap.Logger) *FileProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileProvider{path: path, logger: logger}
}

// Credentials loads and parses the cookie file.
func (p *FileProvider) Credentials(_ context.Context) (harvest.Credentials, error) {
	if p.path == "" {
		return harvest.Credentials{}, nil
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			p.logger.Info("no cookie file found; harvesting without credentials",
				zap.String("path", p.path))
			return harvest.Credentials{}, nil
		}
		return harvest.Credentials{}, fmt.Errorf("read cookie file: %w", err)
	}

	var records []cookieRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return harvest.Credentials{}, fmt.Errorf("parse cookie file %s: %w", p.path, err)
	}

	cookies := make([]*http.Cookie, 0, len(records))
	for _, rec := range records {
		if rec.Name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:   rec.Name,
			Value:  rec.Value,
			Domain: rec.Domain,
			Path:   rec.Path,
		})
	}
	p.logger.Debug("loaded session cookies", zap.Int("count", len(cookies)))
	return harvest.Credentials{Cookies: cookies}, nil
}

// Static returns a fixed credential set; used in tests and wiring.
type Static struct {
	Creds harvest.Credentials
}

// Credentials returns the fixed set.
func (s Static) Credentials(context.Context) (harvest.Credentials, error) {
	return s.Creds, nil
}
