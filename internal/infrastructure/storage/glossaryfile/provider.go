// Package glossaryfile loads the glossary from a YAML file and reloads the
// glossary index when the file changes.
//
// File format:
//
//	terms:
//	  - canonical: myocardial infarction
//	    category: diagnosis
//	    definition: death of heart muscle from blocked blood flow
//	    why: commonly called a heart attack
//	    aliases: [heart attack, MI event]
//	acronyms:
//	  - acronym: MI
//	    expansions: [myocardial infarction, mitral insufficiency]
package glossaryfile

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

type fileTerm struct {
	Canonical  string   `yaml:"canonical"`
	Category   string   `yaml:"category"`
	Definition string   `yaml:"definition,omitempty"`
	Why        string   `yaml:"why,omitempty"`
	Aliases    []string `yaml:"aliases,omitempty"`
}

type fileAcronym struct {
	Acronym    string   `yaml:"acronym"`
	Expansions []string `yaml:"expansions"`
}

type fileGlossary struct {
	Terms    []fileTerm    `yaml:"terms"`
	Acronyms []fileAcronym `yaml:"acronyms"`
}

// Parse decodes a glossary document.  Unknown keys are rejected.  Term IDs
// are assigned in file order starting at 1.
func Parse(data []byte) (*clinical.Glossary, error) {
	var doc fileGlossary
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeGlossaryCorrupt, "invalid glossary file")
	}

	g := &clinical.Glossary{
		Terms: make([]clinical.Term, 0, len(doc.Terms)),
	}
	for i, t := range doc.Terms {
		id := int64(i + 1)
		g.Terms = append(g.Terms, clinical.Term{
			ID:         id,
			Canonical:  t.Canonical,
			Category:   clinical.Category(t.Category),
			Definition: t.Definition,
			Why:        t.Why,
		})
		for _, a := range t.Aliases {
			g.Aliases = append(g.Aliases, clinical.Alias{Text: a, TermID: id})
		}
	}
	for _, a := range doc.Acronyms {
		g.Acronyms = append(g.Acronyms, clinical.Acronym{Acronym: a.Acronym, Expansions: a.Expansions})
	}
	return g, nil
}

// Provider reads the glossary file on every Load.  It satisfies
// glossary.Provider.
type Provider struct {
	path   string
	logger logging.Logger
}

func NewProvider(path string, log logging.Logger) *Provider {
	return &Provider{path: path, logger: logging.OrNop(log)}
}

// Path returns the file path.
func (p *Provider) Path() string { return p.path }

// Load reads and parses the file.
func (p *Provider) Load(_ context.Context) (*clinical.Glossary, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeGlossaryCorrupt, "glossary file not found").WithDetail("path=" + p.path)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeGlossaryUnavailable, "failed to read glossary file").WithDetail("path=" + p.path)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("glossary file read", logging.String("path", p.path), logging.Int("terms", len(g.Terms)))
	return g, nil
}

// Write encodes g in the file format.  Aliases are grouped under their
// terms; aliases of unknown terms are dropped.
func Write(w io.Writer, g *clinical.Glossary) error {
	doc := fileGlossary{}
	index := make(map[int64]int, len(g.Terms))
	for _, t := range g.Terms {
		index[t.ID] = len(doc.Terms)
		doc.Terms = append(doc.Terms, fileTerm{
			Canonical:  t.Canonical,
			Category:   string(t.Category),
			Definition: t.Definition,
			Why:        t.Why,
		})
	}
	for _, a := range g.Aliases {
		if i, ok := index[a.TermID]; ok {
			doc.Terms[i].Aliases = append(doc.Terms[i].Aliases, a.Text)
		}
	}
	for _, a := range g.Acronyms {
		doc.Acronyms = append(doc.Acronyms, fileAcronym{Acronym: a.Acronym, Expansions: a.Expansions})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to encode glossary")
	}
	return enc.Close()
}
