package storagefake

import (
	"sync"

	"github.com/sitelink/go-client-auth/vault"
)

var _ vault.Storage = (*FakeStorage)(nil)

// FakeStorage is an in-memory Storage with injectable failures and call
// counters, for tests that assert fail-closed behaviour or the absence of
// vault traffic.
type FakeStorage struct {
	lock   sync.RWMutex
	values map[string]string

	readErr  error // returned by every Get while set
	writeErr error // returned by every Set/Delete while set

	GetCalls    int
	SetCalls    int
	DeleteCalls int
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{values: make(map[string]string)}
}

// FailReads makes every subsequent Get return err. Pass nil to heal.
func (s *FakeStorage) FailReads(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.readErr = err
}

// FailWrites makes every subsequent Set and Delete return err. Pass nil to
// heal.
func (s *FakeStorage) FailWrites(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.writeErr = err
}

// Calls returns the total number of storage operations performed.
func (s *FakeStorage) Calls() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.GetCalls + s.SetCalls + s.DeleteCalls
}

func (s *FakeStorage) Get(key string) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.GetCalls++
	if s.readErr != nil {
		return "", s.readErr
	}
	value, ok := s.values[key]
	if !ok {
		return "", vault.ErrNotFound
	}
	return value, nil
}

func (s *FakeStorage) Set(key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.SetCalls++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.values[key] = value
	return nil
}

func (s *FakeStorage) Delete(key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.DeleteCalls++
	if s.writeErr != nil {
		return s.writeErr
	}
	delete(s.values, key)
	return nil
}

// Raw returns the stored value for key, for assertions about what is (and is
// not) persisted in clear.
func (s *FakeStorage) Raw(key string) (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	value, ok := s.values[key]
	return value, ok
}
