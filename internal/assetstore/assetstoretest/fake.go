// Package assetstoretest provides an in-memory assetstore.Provider for tests.
package assetstoretest

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"roomstaging/internal/assetstore"
)

// Call records one provider invocation.
type Call struct {
	Op       string
	Path     string
	Opts     assetstore.UploadOptions
	Settings *assetstore.LinkSettings
	Email    string
	Message  string
}

// Fake behaves like a link-sharing backend: uploads in add mode conflict or
// autorename, a second shared link for the same path conflicts, and existing
// folders conflict. Errors keyed by operation name are returned instead of
// the normal behavior.
type Fake struct {
	BaseURL string
	Errors  map[string]error

	mu      sync.Mutex
	files   map[string][]byte
	links   map[string]assetstore.Link
	folders map[string]bool
	calls   []Call
}

// New returns an empty Fake serving links under https://fake.store.
func New() *Fake {
	return &Fake{
		BaseURL: "https://fake.store",
		Errors:  map[string]error{},
		files:   map[string][]byte{},
		links:   map[string]assetstore.Link{},
		folders: map[string]bool{},
	}
}

// Fail makes every subsequent call of op return an error with the given cause.
func (f *Fake) Fail(op string, cause assetstore.Cause) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[op] = &assetstore.Error{Op: op, Cause: cause, Summary: "injected"}
}

// Put seeds a file.
func (f *Fake) Put(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = data
}

// File returns the stored contents of p.
func (f *Fake) File(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	return data, ok
}

// SeedLink registers an existing shared link for p.
func (f *Fake) SeedLink(p string, link assetstore.Link) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[p] = link
}

// SeedFolder marks a folder as existing.
func (f *Fake) SeedFolder(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[p] = true
}

// Calls returns a copy of the recorded invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many times op was invoked.
func (f *Fake) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *Fake) record(c Call) error {
	f.calls = append(f.calls, c)
	if err, ok := f.Errors[c.Op]; ok {
		return err
	}
	return nil
}

func (f *Fake) Upload(_ context.Context, p string, data []byte, opts assetstore.UploadOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "upload", Path: p, Opts: opts}); err != nil {
		return "", err
	}
	target := p
	if _, exists := f.files[p]; exists && opts.Mode != assetstore.WriteModeOverwrite {
		if !opts.Autorename {
			return "", &assetstore.Error{Op: "upload", Path: p, Cause: assetstore.CauseConflict, Summary: "path/conflict/file"}
		}
		ext := path.Ext(p)
		stem := strings.TrimSuffix(p, ext)
		for i := 1; ; i++ {
			candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
			if _, taken := f.files[candidate]; !taken {
				target = candidate
				break
			}
		}
	}
	f.files[target] = append([]byte(nil), data...)
	return target, nil
}

func (f *Fake) CreateSharedLink(_ context.Context, p string, settings *assetstore.LinkSettings) (assetstore.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "create_shared_link", Path: p, Settings: settings}); err != nil {
		return assetstore.Link{}, err
	}
	if _, ok := f.files[p]; !ok {
		return assetstore.Link{}, &assetstore.Error{Op: "create_shared_link", Path: p, Cause: assetstore.CauseNotFound, Summary: "path/not_found"}
	}
	if _, ok := f.links[p]; ok {
		return assetstore.Link{}, &assetstore.Error{Op: "create_shared_link", Path: p, Cause: assetstore.CauseConflict, Summary: "shared_link_already_exists"}
	}
	link := assetstore.Link{URL: f.BaseURL + "/s" + p + "?dl=0", Visibility: assetstore.VisibilityPublic}
	if settings != nil && settings.Visibility == assetstore.VisibilityPassword {
		link.Visibility = assetstore.VisibilityPassword
	}
	f.links[p] = link
	return link, nil
}

func (f *Fake) ListSharedLinks(_ context.Context, p string, _ bool) ([]assetstore.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "list_shared_links", Path: p}); err != nil {
		return nil, err
	}
	if link, ok := f.links[p]; ok {
		return []assetstore.Link{link}, nil
	}
	return nil, nil
}

func (f *Fake) CreateFolder(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "create_folder", Path: p}); err != nil {
		return err
	}
	if f.folders[p] {
		return &assetstore.Error{Op: "create_folder", Path: p, Cause: assetstore.CauseConflict, Summary: "path/conflict/folder"}
	}
	f.folders[p] = true
	return nil
}

func (f *Fake) TemporaryLink(_ context.Context, p string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "temporary_link", Path: p}); err != nil {
		return "", err
	}
	return f.BaseURL + "/tmp" + p, nil
}

func (f *Fake) AddRecipient(_ context.Context, p, email, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(Call{Op: "add_recipient", Path: p, Email: email, Message: message})
}
