// Package catalog holds the list of models offered by the chat front-end's
// model picker. The list can come from a TOML file that is re-read when it
// changes on disk.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"chatgate-backend/internal/models"
)

// DefaultModels is served when no catalog file is configured.
var DefaultModels = []models.ModelInfo{
	{ID: "openai/gpt-4o", Name: "GPT 4o", Provider: "openai"},
	{ID: "deepseek/deepseek-r1", Name: "Deepseek R1", Provider: "deepseek"},
	{ID: "perplexity/sonar", Name: "Perplexity Sonar", Provider: "perplexity", Search: true},
}

type file struct {
	Models []models.ModelInfo `toml:"models"`
}

type Catalog struct {
	mu     sync.RWMutex
	path   string
	models []models.ModelInfo
}

// Load reads the catalog at path. An empty path yields DefaultModels.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path, models: DefaultModels}
	if path == "" {
		return c, nil
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns a copy of the current models.
func (c *Catalog) List() []models.ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ModelInfo, len(c.models))
	copy(out, c.models)
	return out
}

// Reload re-reads the catalog file. On error the previous list is kept.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}

	var f file
	if _, err := toml.DecodeFile(c.path, &f); err != nil {
		return fmt.Errorf("failed to read model catalog %s: %w", c.path, err)
	}

	list, err := normalize(f.Models)
	if err != nil {
		return fmt.Errorf("invalid model catalog %s: %w", c.path, err)
	}

	c.mu.Lock()
	c.models = list
	c.mu.Unlock()
	return nil
}

func normalize(in []models.ModelInfo) ([]models.ModelInfo, error) {
	if len(in) == 0 {
		return nil, errors.New("no models defined")
	}

	seen := make(map[string]bool, len(in))
	out := make([]models.ModelInfo, 0, len(in))
	for i, m := range in {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return nil, fmt.Errorf("model %d has no id", i)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = true

		if m.Name == "" {
			m.Name = m.ID
		}
		if m.Provider == "" {
			if vendor, _, ok := strings.Cut(m.ID, "/"); ok {
				m.Provider = vendor
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// Watch reloads the catalog whenever its file changes, until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are picked up too.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", c.path, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(c.path)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := c.Reload(); err != nil {
					log.Printf("Model catalog reload failed: %v", err)
					continue
				}
				log.Printf("Model catalog reloaded from %s", c.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Model catalog watcher error: %v", err)
			}
		}
	}()

	return nil
}
