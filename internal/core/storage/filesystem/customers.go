package filesystem

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	"github.com/tejasgit/nylo/internal/core/storage"
)

// customersFile is the on-disk layout:
//
//	customers:
//	  - id: 1
//	    name: "Acme"
//	    api_key: "ak_live_..."
//	    require_domain_verification: true
type customersFile struct {
	Customers []v1.Customer `yaml:"customers"`
}

// CustomerRepository implements storage.CustomerStore from a read-only YAML file.
// The file is parsed once at construction; edit the file and restart to apply changes.
type CustomerRepository struct {
	byID  map[v1.CustomerID]v1.Customer
	byKey map[string]v1.Customer
}

// NewCustomerRepository loads and validates the customer file at path.
func NewCustomerRepository(path string) (*CustomerRepository, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read customers file: %w", err)
	}

	var parsed customersFile
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse customers file %s: %w", path, err)
	}

	repo := &CustomerRepository{
		byID:  make(map[v1.CustomerID]v1.Customer, len(parsed.Customers)),
		byKey: make(map[string]v1.Customer, len(parsed.Customers)),
	}
	for i, c := range parsed.Customers {
		if c.ID <= 0 {
			return nil, fmt.Errorf("customers[%d]: id must be > 0", i)
		}
		if _, dup := repo.byID[c.ID]; dup {
			return nil, fmt.Errorf("customers[%d]: duplicate id %d", i, c.ID)
		}
		c.APIKey = strings.TrimSpace(c.APIKey)
		if c.APIKey != "" {
			if _, dup := repo.byKey[c.APIKey]; dup {
				return nil, fmt.Errorf("customers[%d]: duplicate api_key", i)
			}
			repo.byKey[c.APIKey] = c
		}
		repo.byID[c.ID] = c
	}

	slog.Info("Loaded customers from file", "path", path, "count", len(repo.byID))
	return repo, nil
}

func (r *CustomerRepository) GetCustomer(ctx context.Context, id v1.CustomerID) (*v1.Customer, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (r *CustomerRepository) GetCustomerByAPIKey(ctx context.Context, apiKey string) (*v1.Customer, error) {
	c, ok := r.byKey[apiKey]
	if !ok || apiKey == "" {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

var _ storage.CustomerStore = (*CustomerRepository)(nil)
