package fixtures

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// FakeDesktop serves window and tab telemetry from JSON files, read by
// cat as the helper command.
type FakeDesktop struct {
	Dir string
}

// NewFakeDesktop creates a desktop whose state lives in dir.
func NewFakeDesktop(dir string) *FakeDesktop {
	return &FakeDesktop{Dir: dir}
}

// WindowCommand returns the window helper argv.
func (d *FakeDesktop) WindowCommand() []string {
	return []string{"cat", d.windowPath()}
}

// TabCommand returns the tab helper argv.
func (d *FakeDesktop) TabCommand() []string {
	return []string{"cat", d.tabPath()}
}

// Focus sets the foreground window.
func (d *FakeDesktop) Focus(handle int, title, process string) error {
	return writeAtomic(d.windowPath(), map[string]interface{}{
		"handle":       handle,
		"title":        title,
		"process_name": process,
	})
}

// OpenTab sets the active browser tab.
func (d *FakeDesktop) OpenTab(title, url string) error {
	return writeAtomic(d.tabPath(), map[string]string{
		"title": title,
		"url":   url,
	})
}

// Blank removes the window state so the helper fails.
func (d *FakeDesktop) Blank() error {
	err := os.Remove(d.windowPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d *FakeDesktop) windowPath() string {
	return filepath.Join(d.Dir, "window.json")
}

func (d *FakeDesktop) tabPath() string {
	return filepath.Join(d.Dir, "tab.json")
}

// writeAtomic writes v as JSON via rename so readers never see a partial file.
func writeAtomic(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".desktop-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
