package reconciler

import (
	stdmime "mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// guessMIME sniffs the content type of a local file the way a browser
// or file manager would, falling back to a pure extension lookup when
// sniffing the file fails (e.g. it vanished between listing and open).
// Content-sniffing catches files whose extension lies or is missing,
// which a bare extension table (spec §6's literal "guessed from
// extension") would miss.
func guessMIME(localPath string) string {
	if m, err := mimetype.DetectFile(localPath); err == nil {
		return m.String()
	}
	if t := stdmime.TypeByExtension(filepath.Ext(localPath)); t != "" {
		return t
	}
	return "application/octet-stream"
}
