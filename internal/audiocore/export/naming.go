package export

import (
	"bytes"
	"fmt"
	"path/filepath"
	"text/template"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/trigger"
	"github.com/tphakala/threshcorder/internal/errors"
)

// NameData is the template input for episode file names.
type NameData struct {
	ID        uint64
	Start     time.Time // first sample, pre-roll included, local time
	TriggerAt time.Time
	Ext       string
	Format    audiocore.Format
}

// Namer renders episode file paths.
type Namer struct {
	dir  string
	ext  string
	tmpl *template.Template
}

// NewNamer parses the file name template. The template is rendered once
// with sample data so mistakes surface at startup rather than on the first
// episode.
func NewNamer(dir, text, ext string) (*Namer, error) {
	tmpl, err := template.New("episode").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errors.New(err).
			Component(componentExport).
			Category(errors.CategoryConfiguration).
			Context("template", text).
			Build()
	}

	n := &Namer{dir: dir, ext: ext, tmpl: tmpl}
	if _, err := n.Path(trigger.Episode{ID: 1, Start: time.Now()}, audiocore.Format{}); err != nil {
		return nil, err
	}
	return n, nil
}

// Path returns the file path of the episode. Rendered names must stay inside
// the output directory.
func (n *Namer) Path(ep trigger.Episode, format audiocore.Format) (string, error) {
	var buf bytes.Buffer
	data := NameData{
		ID:        ep.ID,
		Start:     ep.Start.Local(),
		TriggerAt: ep.TriggerAt.Local(),
		Ext:       n.ext,
		Format:    format,
	}
	if err := n.tmpl.Execute(&buf, data); err != nil {
		return "", errors.New(err).
			Component(componentExport).
			Category(errors.CategoryConfiguration).
			Build()
	}

	name := buf.String()
	if name == "" || !filepath.IsLocal(name) {
		return "", errors.New(fmt.Errorf("file name %q leaves the output directory", name)).
			Component(componentExport).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return filepath.Join(n.dir, name), nil
}
