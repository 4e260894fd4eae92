// Package metastore provides BoltDB-backed persistence for CAVE's control
// plane metadata: sandbox records, execution audit entries, RLS policies
// and API keys. The table engine's row data lives elsewhere (pkg/table,
// pkg/wal); this package only stores the records the sandbox kernel and
// the policy/auth layers need to survive a restart.
package metastore

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/cave/internal/caveerr"
	"github.com/cuemby/cave/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketSandboxes  = []byte("sandboxes")
	bucketExecutions = []byte("executions")
	bucketPolicies   = []byte("policies")
	bucketAPIKeys    = []byte("api_keys")
)

// Store is the BoltDB-backed metadata store.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the metadata database under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "cave.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, caveerr.NewStorageFailure("metastore.Open", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSandboxes, bucketExecutions, bucketPolicies, bucketAPIKeys} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, caveerr.NewStorageFailure("metastore.Open", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSandbox persists a new sandbox record, rejecting the write if the
// (namespace, name) pair is already taken by a non-deleted sandbox.
func (s *Store) CreateSandbox(sb *types.Sandbox) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSandboxes)
		if existing, err := findSandboxByName(b, sb.Namespace, sb.Name); err == nil && existing != nil {
			return caveerr.NewConflict("metastore.CreateSandbox",
				fmt.Errorf("sandbox %s/%s already exists", sb.Namespace, sb.Name))
		}
		data, err := json.Marshal(sb)
		if err != nil {
			return err
		}
		return b.Put([]byte(sb.ID), data)
	})
}

// GetSandbox fetches a sandbox by ID.
func (s *Store) GetSandbox(id string) (*types.Sandbox, error) {
	var sb types.Sandbox
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSandboxes)
		data := b.Get([]byte(id))
		if data == nil {
			return caveerr.NewNotFound("metastore.GetSandbox", fmt.Errorf("sandbox %s not found", id))
		}
		return json.Unmarshal(data, &sb)
	})
	if err != nil {
		return nil, err
	}
	return &sb, nil
}

// GetSandboxByName looks up a sandbox by (namespace, name).
func (s *Store) GetSandboxByName(namespace, name string) (*types.Sandbox, error) {
	var sb *types.Sandbox
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSandboxes)
		found, err := findSandboxByName(b, namespace, name)
		if err != nil {
			return err
		}
		sb = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sb == nil {
		return nil, caveerr.NewNotFound("metastore.GetSandboxByName",
			fmt.Errorf("sandbox %s/%s not found", namespace, name))
	}
	return sb, nil
}

func findSandboxByName(b *bolt.Bucket, namespace, name string) (*types.Sandbox, error) {
	var found *types.Sandbox
	err := b.ForEach(func(k, v []byte) error {
		var sb types.Sandbox
		if err := json.Unmarshal(v, &sb); err != nil {
			return err
		}
		if sb.Namespace == namespace && sb.Name == name && sb.Status != types.SandboxDeleted {
			found = &sb
		}
		return nil
	})
	return found, err
}

// ListSandboxes returns every sandbox in the given namespace, or every
// sandbox regardless of namespace when namespace is empty.
func (s *Store) ListSandboxes(namespace string) ([]*types.Sandbox, error) {
	var out []*types.Sandbox
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSandboxes)
		return b.ForEach(func(k, v []byte) error {
			var sb types.Sandbox
			if err := json.Unmarshal(v, &sb); err != nil {
				return err
			}
			if namespace == "" || sb.Namespace == namespace {
				out = append(out, &sb)
			}
			return nil
		})
	})
	return out, err
}

// UpdateSandbox overwrites the persisted record for sb.ID (upsert).
func (s *Store) UpdateSandbox(sb *types.Sandbox) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSandboxes)
		data, err := json.Marshal(sb)
		if err != nil {
			return err
		}
		return b.Put([]byte(sb.ID), data)
	})
}

// DeleteSandbox removes a sandbox's record along with every execution
// recorded against it (the original schema's ON DELETE CASCADE, done by
// hand since BoltDB has no foreign keys).
func (s *Store) DeleteSandbox(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sandboxes := tx.Bucket(bucketSandboxes)
		if sandboxes.Get([]byte(id)) == nil {
			return caveerr.NewNotFound("metastore.DeleteSandbox", fmt.Errorf("sandbox %s not found", id))
		}
		if err := sandboxes.Delete([]byte(id)); err != nil {
			return err
		}

		executions := tx.Bucket(bucketExecutions)
		var stale [][]byte
		err := executions.ForEach(func(k, v []byte) error {
			var exec types.Execution
			if err := json.Unmarshal(v, &exec); err != nil {
				return err
			}
			if exec.SandboxID == id {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := executions.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendExecution persists a completed execution record.
func (s *Store) AppendExecution(exec *types.Execution) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutions)
		data, err := json.Marshal(exec)
		if err != nil {
			return err
		}
		return b.Put([]byte(exec.ID), data)
	})
}

// RecentExecutions returns up to limit executions for sandboxID, most
// recent first.
func (s *Store) RecentExecutions(sandboxID string, limit int) ([]*types.Execution, error) {
	var out []*types.Execution
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutions)
		return b.ForEach(func(k, v []byte) error {
			var exec types.Execution
			if err := json.Unmarshal(v, &exec); err != nil {
				return err
			}
			if exec.SandboxID == sandboxID {
				out = append(out, &exec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortExecutionsDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortExecutionsDesc(execs []*types.Execution) {
	for i := 1; i < len(execs); i++ {
		for j := i; j > 0 && execs[j].StartedAt.After(execs[j-1].StartedAt); j-- {
			execs[j], execs[j-1] = execs[j-1], execs[j]
		}
	}
}

// UpsertPolicy creates or replaces an RLS policy record.
func (s *Store) UpsertPolicy(p *types.RLSPolicy) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPolicies)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put([]byte(p.ID), data)
	})
}

// DeletePolicy removes an RLS policy by ID.
func (s *Store) DeletePolicy(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPolicies)
		if b.Get([]byte(id)) == nil {
			return caveerr.NewNotFound("metastore.DeletePolicy", fmt.Errorf("policy %s not found", id))
		}
		return b.Delete([]byte(id))
	})
}

// PoliciesForTable returns every RLS policy attached to table.
func (s *Store) PoliciesForTable(table string) ([]*types.RLSPolicy, error) {
	var out []*types.RLSPolicy
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPolicies)
		return b.ForEach(func(k, v []byte) error {
			var p types.RLSPolicy
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if p.Table == table {
				out = append(out, &p)
			}
			return nil
		})
	})
	return out, err
}

// CreateAPIKey persists a new API key record.
func (s *Store) CreateAPIKey(k *types.APIKey) error {
	return s.putAPIKey(k)
}

// UpdateAPIKey rewrites an existing key record (e.g. stamping
// last_used_at or revoked_at). Same underlying put as CreateAPIKey since
// BoltDB keys by ID either way.
func (s *Store) UpdateAPIKey(k *types.APIKey) error {
	return s.putAPIKey(k)
}

func (s *Store) putAPIKey(k *types.APIKey) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAPIKeys)
		data, err := json.Marshal(k)
		if err != nil {
			return err
		}
		return b.Put([]byte(k.ID), data)
	})
}

// GetAPIKey fetches an API key record by ID.
func (s *Store) GetAPIKey(id string) (*types.APIKey, error) {
	var k types.APIKey
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAPIKeys)
		data := b.Get([]byte(id))
		if data == nil {
			return caveerr.NewNotFound("metastore.GetAPIKey", fmt.Errorf("api key %s not found", id))
		}
		return json.Unmarshal(data, &k)
	})
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListAPIKeysByPrefix returns every API key whose display prefix matches,
// used to narrow candidates before the constant-time hash comparison in
// pkg/apikey.
func (s *Store) ListAPIKeysByPrefix(prefix string) ([]*types.APIKey, error) {
	var out []*types.APIKey
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAPIKeys)
		return b.ForEach(func(k, v []byte) error {
			var key types.APIKey
			if err := json.Unmarshal(v, &key); err != nil {
				return err
			}
			if key.Prefix == prefix {
				out = append(out, &key)
			}
			return nil
		})
	})
	return out, err
}

// ListAPIKeys returns every API key record, for administrative listing.
func (s *Store) ListAPIKeys() ([]*types.APIKey, error) {
	var out []*types.APIKey
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAPIKeys)
		return b.ForEach(func(k, v []byte) error {
			var key types.APIKey
			if err := json.Unmarshal(v, &key); err != nil {
				return err
			}
			out = append(out, &key)
			return nil
		})
	})
	return out, err
}
