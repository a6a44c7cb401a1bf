// Package auditlog appends one human-readable line per stored visit to a
// plaintext file.
package auditlog

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"visit-recorder/internal/domain"
)

// Writer appends visit lines to a file. The zero path disables writing.
type Writer struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Writer {
	return &Writer{path: path}
}

// Format renders the log line for a visit, including the trailing newline
func Format(v *domain.Visit) string {
	return fmt.Sprintf("[%s] IP: %s | Langue: %s | Navigateur: %s | Appareil: %s | Fuseau: %s\n",
		clean(v.DateAccess), clean(v.IP), clean(v.Language), clean(v.UserAgent), clean(v.Platform), clean(v.Timezone))
}

// Append writes the line for v. The file is opened for each call so external
// rotation (logrotate, mv) is picked up without a restart.
func (w *Writer) Append(v *domain.Visit) error {
	if w.path == "" {
		return nil
	}

	line := Format(v)

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append audit log: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}
	return nil
}

// one visit, one line
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func clean(s string) string {
	return lineBreaks.Replace(s)
}
