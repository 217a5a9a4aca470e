package local

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"submission-backend/internal/shared/storage/object"
	"submission-backend/internal/shared/util"
)

const issuedUploadTTL = 15 * time.Minute

// Store implements ObjectStore using the local filesystem.
type Store struct {
	baseDir string

	mu     sync.Mutex
	issued map[string]issuedToken // token -> pending destination
}

type issuedToken struct {
	storageKey  string
	contentType string
	expiresAt   time.Time
}

// New creates a new local object store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{
		baseDir: baseDir,
		issued:  make(map[string]issuedToken),
	}
}

// SaveWithKey writes the reader to disk at a specific storage key.
func (s *Store) SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fullPath, err := s.resolve(storageKey)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, r)
	if err != nil {
		return 0, fmt.Errorf("write body: %w", err)
	}
	_ = contentType
	return written, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := s.resolve(storageKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes a stored object. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, storageKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := s.resolve(storageKey)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// Issuer returns an UploadIssuer whose URLs point at baseURL, which must
// serve this store's upload handler (see Handler).
func (s *Store) Issuer(baseURL string) object.UploadIssuer {
	return &issuer{store: s, baseURL: strings.TrimRight(baseURL, "/")}
}

type issuer struct {
	store   *Store
	baseURL string
}

// IssueUpload registers a one-time token mapped to the destination key and
// returns the PUT URL for it.
func (i *issuer) IssueUpload(ctx context.Context, sessionID, fileName, contentType string) (object.IssuedUpload, error) {
	if err := ctx.Err(); err != nil {
		return object.IssuedUpload{}, err
	}

	sanitized, err := util.SanitizeFileName(fileName)
	if err != nil {
		return object.IssuedUpload{}, fmt.Errorf("sanitize file name: %w", err)
	}

	token := randomID()
	storageKey := path.Join(util.HashSessionKey(sessionID), randomID()+"_"+sanitized)
	expiresAt := time.Now().UTC().Add(issuedUploadTTL)

	i.store.mu.Lock()
	i.store.issued[token] = issuedToken{
		storageKey:  storageKey,
		contentType: contentType,
		expiresAt:   expiresAt,
	}
	i.store.mu.Unlock()

	return object.IssuedUpload{
		URL:       i.baseURL + "/uploads/" + token,
		StorageID: storageKey,
		ExpiresAt: expiresAt,
	}, nil
}

// Handler accepts PUT requests against issued tokens and stores the body.
// Each token is valid for a single upload.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		token := path.Base(r.URL.Path)

		s.mu.Lock()
		issued, ok := s.issued[token]
		if ok {
			delete(s.issued, token)
		}
		s.mu.Unlock()

		if !ok || time.Now().UTC().After(issued.expiresAt) {
			http.Error(w, "unknown or expired upload token", http.StatusNotFound)
			return
		}

		if _, err := s.SaveWithKey(r.Context(), issued.storageKey, issued.contentType, r.Body); err != nil {
			http.Error(w, "store upload failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Store) resolve(storageKey string) (string, error) {
	clean := filepath.Clean(storageKey)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key")
	}
	return filepath.Join(s.baseDir, clean), nil
}

func randomID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

var _ object.ObjectStore = (*Store)(nil)
