package journal

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Event is one acquire/release transition as seen by the helper.
type Event struct {
	Timestamp time.Time `yaml:"timestamp"`
	Event     string    `yaml:"event"` // "acquire" | "release"
	UID       int       `yaml:"uid"`
	Dir       string    `yaml:"dir,omitempty"`
	Error     string    `yaml:"error,omitempty"`
}

// Writer appends events to per-day YAML streams under dir
// (<dir>/2006-01-02.yaml, one document per event).
type Writer struct {
	mu  sync.Mutex
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Append records ev. Journal trouble must never fail the surrounding
// operation, so callers log the returned error and move on.
func (w *Writer) Append(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := os.MkdirAll(w.dir, 0700); err != nil {
		return err
	}
	b, err := yaml.Marshal(ev)
	if err != nil {
		return err
	}

	path := filepath.Join(w.dir, ev.Timestamp.UTC().Format("2006-01-02")+".yaml")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString("---\n"); err != nil {
		return err
	}
	if _, err := bw.Write(b); err != nil {
		return err
	}
	return bw.Flush()
}

// Tail returns the most recent n events across the daily files, oldest
// first. A missing journal directory yields no events.
func (w *Writer) Tail(n int) ([]Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	files, err := w.listDailyFilesLocked()
	if err != nil {
		return nil, err
	}

	var events []Event
	// Walk newest day backwards until n events are gathered.
	for i := len(files) - 1; i >= 0 && (n <= 0 || len(events) < n); i-- {
		evs, err := readDailyFile(filepath.Join(w.dir, files[i]))
		if err != nil {
			return nil, err
		}
		events = append(evs, events...)
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

func (w *Writer) listDailyFilesLocked() ([]string, error) {
	ents, err := os.ReadDir(w.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	files := make([]string, 0, len(ents))
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		if isDailyFileName(ent.Name()) {
			files = append(files, ent.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func isDailyFileName(name string) bool {
	if !strings.HasSuffix(strings.ToLower(name), ".yaml") {
		return false
	}
	base := name[:len(name)-len(filepath.Ext(name))]
	if len(base) != len("2006-01-02") {
		return false
	}
	_, err := time.Parse("2006-01-02", base)
	return err == nil
}

func readDailyFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	d := yaml.NewDecoder(f)
	for {
		var ev Event
		if err := d.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
