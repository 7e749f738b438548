package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidPublicID is returned for ids that would escape the store root.
var ErrInvalidPublicID = errors.New("invalid public id")

// ErrUnsupportedExtension is returned when a file name does not carry an
// accepted attachment extension.
var ErrUnsupportedExtension = errors.New("unsupported attachment extension")

const ticketFolder = "tickets"

// SniffLength is how many leading bytes MatchesExtension needs.
const SniffLength = 512

// attachmentTypes maps every accepted extension to the content type its
// leading bytes must sniff as. Nothing outside this table may be stored.
var attachmentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// AttachmentExtension returns the lowercased extension of fileName when it is
// an accepted attachment type.
func AttachmentExtension(fileName string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(fileName))
	_, ok := attachmentTypes[ext]
	return ext, ok
}

// MatchesExtension reports whether head sniffs as the content type expected
// for ext.
func MatchesExtension(ext string, head []byte) bool {
	want, ok := attachmentTypes[ext]
	return ok && http.DetectContentType(head) == want
}

// BlobStore keeps uploaded attachments and hands back a stable public id.
type BlobStore interface {
	Put(ctx context.Context, fileName string, content io.Reader) (string, error)
	Delete(ctx context.Context, publicID string) error
}

// LocalStore is a BlobStore on the local filesystem. Public ids look like
// "tickets/<uuid><ext>" and map to paths under Root.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(root, ticketFolder), 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the directory blobs are written to.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Put(ctx context.Context, fileName string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext, ok := AttachmentExtension(fileName)
	if !ok {
		return "", fmt.Errorf("store %q: %w", fileName, ErrUnsupportedExtension)
	}
	publicID := path.Join(ticketFolder, uuid.NewString()+ext)
	target, err := s.pathFor(publicID)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(target)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("close blob: %w", err)
	}
	return publicID, nil
}

// Delete removes a blob; deleting a missing blob is not an error.
func (s *LocalStore) Delete(ctx context.Context, publicID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.pathFor(publicID)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *LocalStore) pathFor(publicID string) (string, error) {
	if !safePublicID(publicID) {
		return "", ErrInvalidPublicID
	}
	return filepath.Join(s.root, filepath.FromSlash(publicID)), nil
}

func safePublicID(publicID string) bool {
	if publicID == "" || strings.HasPrefix(publicID, "/") || strings.Contains(publicID, `\`) {
		return false
	}
	for _, segment := range strings.Split(publicID, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}
