package macro

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// LibraryFileVersion is the current library file format version.
const LibraryFileVersion = 1

// LibraryFile is the portable YAML form of a macro library.
type LibraryFile struct {
	Version int      `yaml:"version" json:"version"`
	Macros  []Record `yaml:"macros" json:"macros"`
}

// ImportResult summarises an import.
type ImportResult struct {
	Saved   []string `json:"saved"`
	Skipped []string `json:"skipped"`
	// Errors holds load and save problems, one per affected macro.
	Errors []string `json:"errors,omitempty"`
}

// Export returns every macro in the library as a YAML library file.
func (l *Library) Export(ctx context.Context) ([]byte, error) {
	file := LibraryFile{Version: LibraryFileVersion}
	for _, e := range l.List(ctx) {
		rec, err := l.Record(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("exporting %q: %w", e.Name, err)
		}
		file.Macros = append(file.Macros, rec)
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("marshalling library: %w", err)
	}
	return data, nil
}

// Import saves every macro in a YAML library file.
//
// Macros with malformed nodes are imported without those nodes. Macros whose
// name is already taken are skipped unless overwrite is set.
func (l *Library) Import(ctx context.Context, data []byte, overwrite bool) (*ImportResult, error) {
	var file LibraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing library file: %w", err)
	}
	if file.Version != LibraryFileVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, file.Version)
	}

	res := &ImportResult{}
	for i, rec := range file.Macros {
		m, loadErr := DecodeMacro(rec)
		if m == nil {
			res.Errors = append(res.Errors, fmt.Sprintf("macro %d: %v", i, loadErr))
			continue
		}
		if loadErr != nil {
			res.Errors = append(res.Errors, loadErr.Error())
		}
		saved, err := l.Save(ctx, m, overwrite)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", m.Name(), err))
			continue
		}
		if saved {
			res.Saved = append(res.Saved, m.Name())
		} else {
			res.Skipped = append(res.Skipped, m.Name())
		}
	}
	return res, nil
}
