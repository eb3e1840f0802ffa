package directory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alertaperu/community-alarm/internal/apperror"
	"github.com/alertaperu/community-alarm/internal/models"
	"github.com/alertaperu/community-alarm/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MemoryStorage implements StorageInterface for testing
type MemoryStorage struct {
	data    map[string][]byte
	listErr error
}

func (m *MemoryStorage) Retrieve(ctx context.Context, filename string) ([]byte, error) {
	if data, exists := m.data[filename]; exists {
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", filename, storage.ErrNotFound)
}

func (m *MemoryStorage) List(ctx context.Context, prefix string) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var files []string
	for filename := range m.data {
		files = append(files, filename)
	}
	return files, nil
}

func newTestDirectory() *Directory {
	return New(&MemoryStorage{data: map[string][]byte{
		"village.json": []byte(`{
			"groupChatTarget": -1002585455176,
			"members": [
				{"id": "a", "externalChatUserId": 111, "displayName": "Ana", "phone": "+5111", "optedIn": true},
				{"id": "b", "externalChatUserId": "222", "displayName": "Beto", "optedIn": false}
			]
		}`),
		"mosca.json":  []byte(`{"groupChatTarget": "-1002594518135", "members": []}`),
		"broken.json": []byte(`{"members": [`),
		"notes.txt":   []byte(`ignored`),
	}})
}

func TestDirectory_ResolveByName(t *testing.T) {
	dir := newTestDirectory()

	community, err := dir.ResolveByName(context.Background(), "  VILLAGE ")
	require.NoError(t, err)

	assert.Equal(t, "village", community.Name)
	assert.Equal(t, "-1002585455176", community.GroupChatTarget.Normalize())
	require.Len(t, community.Members, 2)
	assert.Equal(t, "111", community.Members[0].ExternalChatUserID.Normalize())
	assert.True(t, community.Members[0].OptedIn)
}

func TestDirectory_ResolveByName_Errors(t *testing.T) {
	dir := newTestDirectory()

	tests := []struct {
		name     string
		input    string
		expected apperror.Kind
	}{
		{name: "Unknown community", input: "nowhere", expected: apperror.KindNotFound},
		{name: "Empty name", input: " ", expected: apperror.KindNotFound},
		{name: "Path traversal", input: "../village", expected: apperror.KindNotFound},
		{name: "Unparsable record", input: "broken", expected: apperror.KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			community, err := dir.ResolveByName(context.Background(), tt.input)
			assert.Nil(t, community)
			assert.Equal(t, tt.expected, apperror.KindOf(err))
		})
	}
}

func TestDirectory_ResolveByExternalChatID(t *testing.T) {
	dir := newTestDirectory()

	tests := []struct {
		name     string
		chatID   models.ExternalID
		expected string
	}{
		{name: "Numeric record id", chatID: "-1002585455176", expected: "village"},
		{name: "String record id", chatID: "-1002594518135", expected: "mosca"},
		{name: "Padded input", chatID: " -1002594518135 ", expected: "mosca"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			community, err := dir.ResolveByExternalChatID(context.Background(), tt.chatID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, community.Name)
		})
	}
}

func TestDirectory_ResolveByExternalChatID_NotFound(t *testing.T) {
	dir := newTestDirectory()

	_, err := dir.ResolveByExternalChatID(context.Background(), "-42")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, err = dir.ResolveByExternalChatID(context.Background(), "")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestDirectory_Names(t *testing.T) {
	names, err := newTestDirectory().Names(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "mosca", "village"}, names)

	failing := New(&MemoryStorage{listErr: fmt.Errorf("boom")})
	_, err = failing.Names(context.Background())
	assert.True(t, apperror.Is(err, apperror.KindMalformed))
}

func TestDirectory_MixedCaseRecordFiles(t *testing.T) {
	dir := New(&MemoryStorage{data: map[string][]byte{
		"Mosca.json":   []byte(`{"groupChatTarget": "-100", "members": [{"id": "a", "displayName": "Ana", "optedIn": true}]}`),
		"VILLAGE.JSON": []byte(`{"groupChatTarget": "-200", "members": []}`),
	}})
	ctx := context.Background()

	for _, input := range []string{"Mosca", "mosca", " MOSCA "} {
		community, err := dir.ResolveByName(ctx, input)
		require.NoError(t, err, input)
		assert.Equal(t, "mosca", community.Name)
		assert.Equal(t, "-100", community.GroupChatTarget.Normalize())
	}

	community, err := dir.ResolveByExternalChatID(ctx, "-100")
	require.NoError(t, err)
	assert.Equal(t, "mosca", community.Name)
	require.Len(t, community.Members, 1)

	community, err = dir.ResolveByExternalChatID(ctx, "-200")
	require.NoError(t, err)
	assert.Equal(t, "village", community.Name)

	names, err := dir.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mosca", "village"}, names)
}

func TestDirectory_CaseCollisionPrefersLowerCaseFile(t *testing.T) {
	dir := New(&MemoryStorage{data: map[string][]byte{
		"Mosca.json": []byte(`{"groupChatTarget": "-1", "members": []}`),
		"mosca.json": []byte(`{"groupChatTarget": "-2", "members": []}`),
	}})

	community, err := dir.ResolveByExternalChatID(context.Background(), "-2")
	require.NoError(t, err)
	assert.Equal(t, "mosca", community.Name)

	_, err = dir.ResolveByExternalChatID(context.Background(), "-1")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestDirectory_MixedCaseFileStorage(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Mosca.json"), []byte(`{"groupChatTarget": -100, "members": []}`), 0o600))

	store, err := storage.NewFileStorage(root)
	require.NoError(t, err)
	dir := New(store)

	community, err := dir.ResolveByName(context.Background(), "mosca")
	require.NoError(t, err)
	assert.Equal(t, "mosca", community.Name)

	community, err = dir.ResolveByExternalChatID(context.Background(), "-100")
	require.NoError(t, err)
	assert.Equal(t, "mosca", community.Name)
}
