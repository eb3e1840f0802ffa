// Package directory resolves communities from the record store.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alertaperu/community-alarm/internal/apperror"
	"github.com/alertaperu/community-alarm/internal/models"
	"github.com/alertaperu/community-alarm/internal/storage"
	"github.com/sirupsen/logrus"
)

const recordSuffix = ".json"

// Directory is a read-only view over community records keyed by lower-cased name
type Directory struct {
	store storage.StorageInterface
}

// New creates a directory over the given store
func New(store storage.StorageInterface) *Directory {
	return &Directory{store: store}
}

// ResolveByName loads a community by case-insensitive name.
// Record files may carry any case; the lower-cased file name is tried first.
func (d *Directory) ResolveByName(ctx context.Context, name string) (*models.Community, error) {
	key := normalizeName(name)
	if key == "" || strings.ContainsAny(key, `/\`) {
		return nil, apperror.NotFound("resolve community", fmt.Errorf("community %q not found", name))
	}

	community, err := d.load(ctx, key, key+recordSuffix)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return community, err
	}

	files, err := d.index(ctx)
	if err != nil {
		return nil, err
	}
	file, ok := files[key]
	if !ok || file == key+recordSuffix {
		return nil, apperror.NotFound("resolve community", fmt.Errorf("community %q not found", name))
	}
	return d.load(ctx, key, file)
}

// ResolveByExternalChatID scans all communities for the one bound to chatID.
// Unreadable records are skipped so one bad file cannot hide the others.
func (d *Directory) ResolveByExternalChatID(ctx context.Context, chatID models.ExternalID) (*models.Community, error) {
	if chatID.IsZero() {
		return nil, apperror.NotFound("resolve community by chat", fmt.Errorf("empty chat id"))
	}

	files, err := d.index(ctx)
	if err != nil {
		return nil, err
	}

	for _, name := range sortedNames(files) {
		community, err := d.load(ctx, name, files[name])
		if err != nil {
			logrus.WithField("community", name).Warnf("Skipping community during chat lookup: %v", err)
			continue
		}
		if community.GroupChatTarget.Equal(chatID) {
			return community, nil
		}
	}

	return nil, apperror.NotFound("resolve community by chat", fmt.Errorf("no community bound to chat %s", chatID.Normalize()))
}

// Names lists the known community names in sorted order
func (d *Directory) Names(ctx context.Context) ([]string, error) {
	files, err := d.index(ctx)
	if err != nil {
		return nil, err
	}
	return sortedNames(files), nil
}

// index maps each normalized community name to the record file holding it.
// When two files differ only by case, the lower-cased one wins, then the lexically smallest.
func (d *Directory) index(ctx context.Context) (map[string]string, error) {
	files, err := d.store.List(ctx, "")
	if err != nil {
		return nil, apperror.Malformed("list communities", err)
	}

	index := make(map[string]string, len(files))
	for _, file := range files {
		if !strings.HasSuffix(strings.ToLower(file), recordSuffix) {
			continue
		}
		name := normalizeName(file[:len(file)-len(recordSuffix)])
		if name == "" {
			continue
		}
		if current, ok := index[name]; ok && !preferFile(name, file, current) {
			continue
		}
		index[name] = file
	}
	return index, nil
}

func preferFile(name, candidate, current string) bool {
	canonical := name + recordSuffix
	if current == canonical {
		return false
	}
	return candidate == canonical || candidate < current
}

// load retrieves one record file and decodes it as the community called name.
// A missing file is returned wrapped in storage.ErrNotFound as well as apperror.NotFound.
func (d *Directory) load(ctx context.Context, name, file string) (*models.Community, error) {
	data, err := d.store.Retrieve(ctx, file)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperror.NotFound("resolve community", fmt.Errorf("community %q not found: %w", name, err))
		}
		logrus.WithField("community", name).Errorf("Failed to read community record: %v", err)
		return nil, apperror.Malformed("resolve community", fmt.Errorf("community %q: %w", name, err))
	}

	community, err := decode(name, data)
	if err != nil {
		logrus.WithField("community", name).Errorf("Community record is malformed: %v", err)
		return nil, apperror.Malformed("resolve community", err)
	}
	return community, nil
}

func sortedNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func decode(key string, data []byte) (*models.Community, error) {
	var community models.Community
	if err := json.Unmarshal(data, &community); err != nil {
		return nil, fmt.Errorf("community %q: %w", key, err)
	}

	// The record key is authoritative for the name
	community.Name = key
	return &community, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
