package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

var _ ports.ManifestStore = (*ObjectStore)(nil)

var extensions = []string{".yaml", ".yml", ".json"}

// ObjectStore reads "<prefix>/<contract>.{yaml,yml,json}" manifests from object storage.
type ObjectStore struct {
	storage ports.ObjectStorage
	prefix  string
}

func NewObjectStore(storage ports.ObjectStorage, prefix string) *ObjectStore {
	return &ObjectStore{storage: storage, prefix: strings.Trim(prefix, "/")}
}

// Keys lists the object keys tried for a contract, in order.
func (s *ObjectStore) Keys(contractID string) []string {
	keys := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		keys = append(keys, path.Join(s.prefix, contractID+ext))
	}
	return keys
}

func (s *ObjectStore) LoadManifest(ctx context.Context, contractID string) (*domain.RoutingManifest, error) {
	for _, key := range s.Keys(contractID) {
		rc, err := s.storage.Open(ctx, key)
		if err != nil {
			if domain.IsKind(err, domain.ErrObjectNotFound) {
				continue
			}
			return nil, fmt.Errorf("open manifest %s: %w", key, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", key, err)
		}
		m, err := Decode(data)
		if err != nil {
			return nil, err
		}
		if m.ContractID != "" && m.ContractID != contractID {
			return nil, domain.WrapError(domain.ErrInvalidManifest, "load manifest",
				fmt.Errorf("%s declares contract %q", key, m.ContractID))
		}
		return m, nil
	}
	return nil, domain.WrapError(domain.ErrUnknownContract, "load manifest", fmt.Errorf("no manifest for %q", contractID))
}

// Decode parses a YAML or JSON manifest body.
func Decode(data []byte) (*domain.RoutingManifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidManifest, "decode manifest", fmt.Errorf("empty document"))
	}
	var m domain.RoutingManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidManifest, "decode manifest", err)
	}
	return &m, nil
}
