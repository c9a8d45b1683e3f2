package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fhe16/confidential-compute-backend/interfaces"
)

// Factory creates export backends from location URIs.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a backend factory.
func NewFactory(log *slog.Logger) *Factory {
	if log == nil {
		log = slog.Default()
	}
	return &Factory{log: log}
}

// BackendFor creates an export backend from a location URI.
//
// Supported schemes:
//   - memory:// - in-process storage for demos and tests
//   - file:// - local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS node storage
//   - vault:// - HashiCorp Vault KV v2 storage
func (f *Factory) BackendFor(uri string) (interfaces.ExportBackend, error) {
	loc, err := interfaces.NewExportLocation(uri)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "memory":
		return NewMemoryBackend(f.log), nil
	case "file":
		return f.createFileBackend(loc)
	case "s3":
		return f.createS3Backend(loc)
	case "ipfs":
		return f.createIPFSBackend(loc)
	case "vault":
		return f.createVaultBackend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// MultiBackendFor creates a redundant backend from several URIs. URIs
// that fail to construct are skipped with a warning; at least one must
// succeed.
func (f *Factory) MultiBackendFor(uris []string) (interfaces.ExportBackend, error) {
	backends := make([]interfaces.ExportBackend, 0, len(uris))
	for _, uri := range uris {
		backend, err := f.BackendFor(uri)
		if err != nil {
			f.log.Warn("failed to create export backend",
				slog.String("uri", uri),
				"err", err)
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid export backends created")
	}
	return NewMultiBackend(backends, f.log), nil
}

// createFileBackend handles file:///absolute/path and
// file://./relative/path forms.
func (f *Factory) createFileBackend(loc interfaces.ExportLocation) (interfaces.ExportBackend, error) {
	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI", interfaces.ErrInvalidLocationURI)
	}
	return NewFileBackend(path, f.log)
}

// createS3Backend handles
// s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix/?region=..&endpoint=..
func (f *Factory) createS3Backend(loc interfaces.ExportLocation) (interfaces.ExportBackend, error) {
	bucketName := loc.Host
	prefix := strings.TrimPrefix(loc.Path, "/")

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := loc.GetParam("endpoint")

	var accessKey, secretKey string
	if loc.Auth != "" {
		parts := strings.SplitN(loc.Auth, ":", 2)
		accessKey = parts[0]
		if len(parts) == 2 {
			secretKey = parts[1]
		}
	}

	return NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey, f.log)
}

// createIPFSBackend handles ipfs://host:port/?timeout=30s
func (f *Factory) createIPFSBackend(loc interfaces.ExportLocation) (interfaces.ExportBackend, error) {
	host, port := loc.Host, "5001"
	if i := strings.LastIndex(loc.Host, ":"); i >= 0 {
		host, port = loc.Host[:i], loc.Host[i+1:]
	}

	timeout := loc.GetParam("timeout")
	if timeout == "" {
		timeout = "30s"
	}

	return NewIPFSBackend(host, port, timeout, f.log)
}

// createVaultBackend handles vault://token@host:port/mount/datapath
func (f *Factory) createVaultBackend(loc interfaces.ExportLocation) (interfaces.ExportBackend, error) {
	address := "https://" + loc.Host

	parts := strings.SplitN(strings.Trim(loc.Path, "/"), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: vault URI must include mount and data path", interfaces.ErrInvalidLocationURI)
	}

	return NewVaultBackend(address, loc.Auth, parts[0], parts[1], f.log)
}
