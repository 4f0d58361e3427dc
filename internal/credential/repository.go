package credential

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	credentialsBucket = []byte("credentials")
	metaBucket        = []byte("meta")
	saltKey           = []byte("salt")
)

// Repository persists credential sets in a bbolt database, one encrypted
// value per key. It is the source loaders read from; the Store caches what
// they return.
type Repository struct {
	db   *bolt.DB
	aead cipher.AEAD
}

// OpenRepository opens (or creates) the database at path. Values are sealed
// with a key derived from passphrase and a salt stored in the database.
func OpenRepository(path, passphrase string) (*Repository, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("credential repository passphrase is required")
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	var salt []byte
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(credentialsBucket); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if v := meta.Get(saltKey); v != nil {
			salt = append([]byte(nil), v...)
			return nil
		}
		salt = make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
		return meta.Put(saltKey, salt)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Repository{db: db, aead: aead}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

// Load returns the stored set for key. A key with nothing stored yields an
// empty set and no error.
func (r *Repository) Load(ctx context.Context, key Key) (Set, error) {
	if err := ctx.Err(); err != nil {
		return Set{}, err
	}
	var raw []byte
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(credentialsBucket).Get([]byte(key))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return Set{}, err
	}
	return r.decode(raw)
}

// Loader returns a Loader reading key from the repository.
func (r *Repository) Loader(key Key) Loader {
	return func(ctx context.Context) (Set, error) {
		return r.Load(ctx, key)
	}
}

// Put replaces the stored set for key.
func (r *Repository) Put(key Key, set Set) error {
	if err := set.Validate(); err != nil {
		return fmt.Errorf("put credentials for %q: %w", key, err)
	}
	data, err := r.encode(set)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put([]byte(key), data)
	})
}

// Upsert stores rec in key's set, replacing any record for the same provider.
func (r *Repository) Upsert(key Key, rec Record) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		var set Set
		if v := b.Get([]byte(key)); v != nil {
			var err error
			if set, err = r.decode(v); err != nil {
				return err
			}
		}
		data, err := r.encode(set.With(rec))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (r *Repository) Delete(key Key) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete([]byte(key))
	})
}

// Users lists every key with stored credentials.
func (r *Repository) Users() ([]Key, error) {
	var keys []Key
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, Key(k))
			return nil
		})
	})
	return keys, err
}

func (r *Repository) encode(set Set) ([]byte, error) {
	plain, err := json.Marshal(set)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, r.aead.NonceSize(), r.aead.NonceSize()+len(plain)+r.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return r.aead.Seal(nonce, nonce, plain, nil), nil
}

func (r *Repository) decode(raw []byte) (Set, error) {
	n := r.aead.NonceSize()
	if len(raw) < n {
		return Set{}, ErrDecrypt
	}
	plain, err := r.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return Set{}, ErrDecrypt
	}
	var set Set
	if err := json.Unmarshal(plain, &set); err != nil {
		return Set{}, fmt.Errorf("decode credential set: %w", err)
	}
	return set, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}
