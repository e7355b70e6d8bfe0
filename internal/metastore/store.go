package metastore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"sync"

	"github.com/live-labs/dirvault/internal/crypto"
)

var (
	ErrIntegrity = errors.New("metadata integrity check failed")
	ErrNotFound  = errors.New("record not found")
)

// Store persists profile and folder records as HMAC-tagged JSON documents
// under <root>/metadata. The tag key derives from the host identity and is
// never written to disk, so documents copied to another machine or user
// account fail verification.
//
// The profile index is read-mostly and cached; folder documents are one
// file per profile, and read-modify-write cycles on them serialize through
// a per-profile mutex so operations on different profiles do not contend.
type Store struct {
	dir    string
	hostID string

	profilesMu sync.Mutex
	cacheMu    sync.RWMutex
	cache      []Profile

	lockMu      sync.Mutex
	folderLocks map[string]*sync.Mutex
}

// Open creates or opens the metadata store under root.
func Open(root string) (*Store, error) {
	dir := filepath.Join(root, "metadata")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}
	return newStore(dir, hostIdentity()), nil
}

func newStore(dir, hostID string) *Store {
	return &Store{
		dir:         dir,
		hostID:      hostID,
		folderLocks: make(map[string]*sync.Mutex),
	}
}

// hostIdentity combines hostname and username into the key-derivation
// input that ties documents to this machine and account.
func hostIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" {
		name = os.Getenv("USERNAME")
	}
	if name == "" {
		name = "unknown"
	}
	return host + "-" + name
}

// docKey derives the HMAC key for a document. The profile index uses the
// fixed id "profiles"; folder documents use their profile's id.
func (s *Store) docKey(id string) []byte {
	sum := sha256.Sum256([]byte(id + "-" + s.hostID))
	return sum[:]
}

func computeTag(key, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Store) profilesPath() string {
	return filepath.Join(s.dir, "profiles.json")
}

func (s *Store) foldersPath(profileID string) string {
	return filepath.Join(s.dir, profileID, "folders_metadata.json")
}

// profileLock returns the mutex serializing folder-document writes for
// one profile.
func (s *Store) profileLock(profileID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	m, ok := s.folderLocks[profileID]
	if !ok {
		m = &sync.Mutex{}
		s.folderLocks[profileID] = m
	}
	return m
}

// writeFileAtomic replaces path in a single step: write a temp file in
// the same directory, then rename over the target.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dirvault-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// sealProfiles serializes the document with its tag. The tag covers the
// document with the hmac field empty.
func (s *Store) sealProfiles(doc *profilesDoc) ([]byte, error) {
	doc.HMAC = ""
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profiles: %w", err)
	}
	doc.HMAC = computeTag(s.docKey("profiles"), payload)
	return json.MarshalIndent(doc, "", "  ")
}

func (s *Store) verifyProfiles(data []byte) (*profilesDoc, error) {
	var doc profilesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	tag := doc.HMAC
	if tag == "" {
		return nil, fmt.Errorf("%w: missing tag", ErrIntegrity)
	}
	doc.HMAC = ""
	payload, err := json.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profiles: %w", err)
	}
	want := computeTag(s.docKey("profiles"), payload)
	if !crypto.ConstantTimeCompare([]byte(want), []byte(tag)) {
		log.Warnf("profile index failed integrity verification")
		return nil, ErrIntegrity
	}
	return &doc, nil
}

func (s *Store) sealFolders(profileID string, doc *foldersDoc) ([]byte, error) {
	doc.HMAC = ""
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal folders: %w", err)
	}
	doc.HMAC = computeTag(s.docKey(profileID), payload)
	return json.MarshalIndent(doc, "", "  ")
}

func (s *Store) verifyFolders(profileID string, data []byte) (*foldersDoc, error) {
	var doc foldersDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	tag := doc.HMAC
	if tag == "" {
		return nil, fmt.Errorf("%w: missing tag", ErrIntegrity)
	}
	doc.HMAC = ""
	payload, err := json.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal folders: %w", err)
	}
	want := computeTag(s.docKey(profileID), payload)
	if !crypto.ConstantTimeCompare([]byte(want), []byte(tag)) {
		log.Warnf("folder document for %s failed integrity verification", profileID)
		return nil, ErrIntegrity
	}
	return &doc, nil
}

// loadProfiles reads the profile index. A missing file is an empty
// index, not an error. Callers hold profilesMu.
func (s *Store) loadProfiles() (*profilesDoc, error) {
	data, err := os.ReadFile(s.profilesPath())
	if errors.Is(err, fs.ErrNotExist) {
		return &profilesDoc{Version: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}
	return s.verifyProfiles(data)
}

// saveProfiles seals and writes the index, then refreshes the cache.
// Callers hold profilesMu.
func (s *Store) saveProfiles(doc *profilesDoc) error {
	doc.Version = 1
	data, err := s.sealProfiles(doc)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.profilesPath(), data); err != nil {
		return err
	}

	s.cacheMu.Lock()
	s.cache = append([]Profile(nil), doc.Profiles...)
	s.cacheMu.Unlock()
	return nil
}

// mutateProfiles runs a read-modify-write cycle on the profile index.
func (s *Store) mutateProfiles(fn func(*profilesDoc) error) error {
	s.profilesMu.Lock()
	defer s.profilesMu.Unlock()

	doc, err := s.loadProfiles()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.saveProfiles(doc)
}

// Profiles returns all profiles. The result is a copy; mutating it does
// not affect the store.
func (s *Store) Profiles() ([]Profile, error) {
	s.cacheMu.RLock()
	if s.cache != nil {
		out := append([]Profile(nil), s.cache...)
		s.cacheMu.RUnlock()
		return out, nil
	}
	s.cacheMu.RUnlock()

	s.profilesMu.Lock()
	defer s.profilesMu.Unlock()
	doc, err := s.loadProfiles()
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.cache = append([]Profile(nil), doc.Profiles...)
	s.cacheMu.Unlock()
	return append([]Profile(nil), doc.Profiles...), nil
}

// GetProfile returns the profile with the given id.
func (s *Store) GetProfile(id string) (*Profile, error) {
	profiles, err := s.Profiles()
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
}

// GetProfileByName returns the profile with the given name.
func (s *Store) GetProfileByName(name string) (*Profile, error) {
	profiles, err := s.Profiles()
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].Name == name {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("profile %q: %w", name, ErrNotFound)
}

// PutProfile inserts or replaces a profile record.
func (s *Store) PutProfile(p Profile) error {
	return s.mutateProfiles(func(doc *profilesDoc) error {
		for i := range doc.Profiles {
			if doc.Profiles[i].ID == p.ID {
				doc.Profiles[i] = p
				return nil
			}
		}
		doc.Profiles = append(doc.Profiles, p)
		return nil
	})
}

// DeleteProfile removes a profile record and its folder document.
func (s *Store) DeleteProfile(id string) error {
	err := s.mutateProfiles(func(doc *profilesDoc) error {
		for i := range doc.Profiles {
			if doc.Profiles[i].ID == id {
				doc.Profiles = append(doc.Profiles[:i], doc.Profiles[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	})
	if err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.dir, id))
}

// Touch updates a profile's last access time.
func (s *Store) Touch(id string) error {
	return s.mutateProfiles(func(doc *profilesDoc) error {
		for i := range doc.Profiles {
			if doc.Profiles[i].ID == id {
				doc.Profiles[i].Touch()
				return nil
			}
		}
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	})
}

// loadFolders reads one profile's folder document. Missing file is an
// empty document. Callers hold the profile lock.
func (s *Store) loadFolders(profileID string) (*foldersDoc, error) {
	data, err := os.ReadFile(s.foldersPath(profileID))
	if errors.Is(err, fs.ErrNotExist) {
		return &foldersDoc{Version: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read folder metadata: %w", err)
	}
	return s.verifyFolders(profileID, data)
}

// saveFolders seals and writes one profile's folder document. Callers
// hold the profile lock.
func (s *Store) saveFolders(profileID string, doc *foldersDoc) error {
	doc.Version = 1
	if err := os.MkdirAll(filepath.Join(s.dir, profileID), 0700); err != nil {
		return fmt.Errorf("failed to create profile metadata directory: %w", err)
	}
	data, err := s.sealFolders(profileID, doc)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.foldersPath(profileID), data)
}

// mutateFolders runs a read-modify-write cycle on one profile's folder
// document under its lock.
func (s *Store) mutateFolders(profileID string, fn func(*foldersDoc) error) error {
	mu := s.profileLock(profileID)
	mu.Lock()
	defer mu.Unlock()

	doc, err := s.loadFolders(profileID)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.saveFolders(profileID, doc)
}

// Folders returns all folder records for a profile. The result is a copy.
func (s *Store) Folders(profileID string) ([]LockedFolder, error) {
	mu := s.profileLock(profileID)
	mu.Lock()
	defer mu.Unlock()

	doc, err := s.loadFolders(profileID)
	if err != nil {
		return nil, err
	}
	return append([]LockedFolder(nil), doc.Folders...), nil
}

// GetFolder returns one folder record.
func (s *Store) GetFolder(profileID, folderID string) (*LockedFolder, error) {
	folders, err := s.Folders(profileID)
	if err != nil {
		return nil, err
	}
	for i := range folders {
		if folders[i].ID == folderID {
			return &folders[i], nil
		}
	}
	return nil, fmt.Errorf("folder %s: %w", folderID, ErrNotFound)
}

// PutFolder inserts or replaces a folder record.
func (s *Store) PutFolder(f LockedFolder) error {
	return s.mutateFolders(f.ProfileID, func(doc *foldersDoc) error {
		for i := range doc.Folders {
			if doc.Folders[i].ID == f.ID {
				doc.Folders[i] = f
				return nil
			}
		}
		doc.Folders = append(doc.Folders, f)
		return nil
	})
}

// UpdateFolder applies fn to one folder record and persists the result.
func (s *Store) UpdateFolder(profileID, folderID string, fn func(*LockedFolder) error) error {
	return s.mutateFolders(profileID, func(doc *foldersDoc) error {
		for i := range doc.Folders {
			if doc.Folders[i].ID == folderID {
				return fn(&doc.Folders[i])
			}
		}
		return fmt.Errorf("folder %s: %w", folderID, ErrNotFound)
	})
}

// AddBackupEntry appends a snapshot record to a folder.
func (s *Store) AddBackupEntry(profileID, folderID string, entry BackupEntry) error {
	return s.UpdateFolder(profileID, folderID, func(f *LockedFolder) error {
		f.AddBackup(entry)
		return nil
	})
}

// DeleteFolder removes a folder record.
func (s *Store) DeleteFolder(profileID, folderID string) error {
	return s.mutateFolders(profileID, func(doc *foldersDoc) error {
		for i := range doc.Folders {
			if doc.Folders[i].ID == folderID {
				doc.Folders = append(doc.Folders[:i], doc.Folders[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("folder %s: %w", folderID, ErrNotFound)
	})
}
