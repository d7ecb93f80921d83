package annotate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// Extensions of the files written by [WriteFile].
const (
	ExtJSON   = ".json"
	ExtJSONXZ = ".json.xz"
)

// WriteFile encodes v as indented JSON and writes it to path atomically: the
// data goes to a temporary file in the same directory which is renamed over
// path once complete. With compress set the JSON is xz-compressed.
func WriteFile(path string, v any, compress bool) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("annotate: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := encode(tmp, v, compress); err != nil {
		return fmt.Errorf("annotate: write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("annotate: close %q: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("annotate: rename to %q: %w", path, err)
	}
	return nil
}

func encode(w io.Writer, v any, compress bool) error {
	if !compress {
		return newEncoder(w).Encode(v)
	}
	xw, err := xz.NewWriter(w)
	if err != nil {
		return err
	}
	if err := newEncoder(xw).Encode(v); err != nil {
		xw.Close()
		return err
	}
	return xw.Close()
}

func newEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc
}

// ReadFile decodes a file written by [WriteFile] into v. Files ending in
// .xz are decompressed.
func ReadFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("annotate: open %q: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(path) == ".xz" {
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("annotate: xz reader %q: %w", path, err)
		}
		r = xr
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("annotate: decode %q: %w", path, err)
	}
	return nil
}
