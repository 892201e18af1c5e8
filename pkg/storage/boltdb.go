package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwisp/wisp/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketSites   = []byte("sites")
	bucketMirrors = []byte("mirrors")
	bucketTokens  = []byte("tokens")
)

// BoltStore implements Store using bbolt
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new bbolt-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "wisp.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketSites, bucketMirrors, bucketTokens}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Site operations

func (s *BoltStore) RegisterSite(site *types.Site) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSites)

		// Reject a second active site pointing at the same controller
		// with the same credentials.
		err := b.ForEach(func(k, v []byte) error {
			var existing types.Site
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.Active &&
				existing.Endpoint == site.Endpoint &&
				existing.Credentials.Username == site.Credentials.Username {
				return fmt.Errorf("%w: %s already registered as %s",
					types.ErrDuplicateEndpoint, site.Endpoint, existing.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}

		data, err := json.Marshal(site)
		if err != nil {
			return err
		}
		return b.Put([]byte(site.ID), data)
	})
}

func (s *BoltStore) GetSite(id string) (*types.Site, error) {
	var site types.Site
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSites)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", types.ErrSiteNotFound, id)
		}
		return json.Unmarshal(data, &site)
	})
	if err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *BoltStore) ListSites() ([]*types.Site, error) {
	var sites []*types.Site
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSites)
		return b.ForEach(func(k, v []byte) error {
			var site types.Site
			if err := json.Unmarshal(v, &site); err != nil {
				return err
			}
			sites = append(sites, &site)
			return nil
		})
	})
	return sites, err
}

func (s *BoltStore) UpdateSite(site *types.Site) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSites)
		if b.Get([]byte(site.ID)) == nil {
			return fmt.Errorf("%w: %s", types.ErrSiteNotFound, site.ID)
		}
		data, err := json.Marshal(site)
		if err != nil {
			return err
		}
		return b.Put([]byte(site.ID), data)
	})
}

func (s *BoltStore) DeleteSite(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketSites).Delete([]byte(id)); err != nil {
			return err
		}
		// Drop the site's mirror entries with it
		mb := tx.Bucket(bucketMirrors)
		c := mb.Cursor()
		prefix := []byte(id + "/")
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			if err := mb.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) UpdateSiteStatus(id string, status types.SiteStatus, ts time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSites)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", types.ErrSiteNotFound, id)
		}
		var site types.Site
		if err := json.Unmarshal(data, &site); err != nil {
			return err
		}
		site.Status = status
		site.LastHeartbeat = ts
		updated, err := json.Marshal(&site)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

// Mirror operations
//
// Mirror entries are keyed "<site-id>/<username>" so one site's users
// form a contiguous key range.

func mirrorKey(siteID, username string) []byte {
	return []byte(siteID + "/" + username)
}

func (s *BoltStore) RecordMirror(user *types.ProvisionedUser) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMirrors)
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return b.Put(mirrorKey(user.SiteID, user.Username), data)
	})
}

func (s *BoltStore) RemoveMirror(siteID, username string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMirrors).Delete(mirrorKey(siteID, username))
	})
}

func (s *BoltStore) GetMirror(siteID, username string) (*types.ProvisionedUser, error) {
	var user types.ProvisionedUser
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMirrors).Get(mirrorKey(siteID, username))
		if data == nil {
			return fmt.Errorf("%w: %s on site %s", types.ErrNotFound, username, siteID)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) ListMirror(siteID string) ([]*types.ProvisionedUser, error) {
	var users []*types.ProvisionedUser
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMirrors).Cursor()
		prefix := []byte(siteID + "/")
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var user types.ProvisionedUser
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			users = append(users, &user)
		}
		return nil
	})
	return users, err
}

// Token operations

func (s *BoltStore) PutToken(token *types.ManagementToken) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		data, err := json.Marshal(token)
		if err != nil {
			return err
		}
		return b.Put([]byte(token.Secret), data)
	})
}

func (s *BoltStore) GetToken(secret string) (*types.ManagementToken, error) {
	var token types.ManagementToken
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTokens).Get([]byte(secret))
		if data == nil {
			return types.ErrTokenInvalid
		}
		return json.Unmarshal(data, &token)
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *BoltStore) DeleteToken(secret string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(secret))
	})
}

func (s *BoltStore) ListTokens(siteID string) ([]*types.ManagementToken, error) {
	var tokens []*types.ManagementToken
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).ForEach(func(k, v []byte) error {
			var token types.ManagementToken
			if err := json.Unmarshal(v, &token); err != nil {
				return err
			}
			if siteID == "" || token.SiteID == siteID {
				tokens = append(tokens, &token)
			}
			return nil
		})
	})
	return tokens, err
}
