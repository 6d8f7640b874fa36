package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/contextgraph/graph"
)

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension: .json, .yaml or
// .yml.
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported document extension %q", ext)
	}
}

// Encode writes the graph as a document.
func Encode(w io.Writer, r graph.Reader, f Format) error {
	return EncodeDocument(w, Save(r), f)
}

// EncodeDocument writes a document.
func EncodeDocument(w io.Writer, doc *Document, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode json document: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml document: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode yaml document: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}

// DecodeDocument reads a document strictly: unknown fields are rejected.
// Decoding failures are load errors.
func DecodeDocument(rd io.Reader, f Format) (*Document, error) {
	const op = "persist.Decode"
	var doc Document
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(rd)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, graph.NewLoadError(op, err, map[string]any{"format": string(f)})
		}
		if dec.More() {
			return nil, graph.NewLoadError(op, errors.New("trailing data after document"), map[string]any{"format": string(f)})
		}
	case FormatYAML:
		dec := yaml.NewDecoder(rd)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, graph.NewLoadError(op, err, map[string]any{"format": string(f)})
		}
	default:
		return nil, graph.NewLoadError(op, fmt.Errorf("unsupported format %q", f), nil)
	}
	return &doc, nil
}

// Decode reads a document and loads it into a new store.
func Decode(rd io.Reader, f Format) (*graph.Store, error) {
	doc, err := DecodeDocument(rd, f)
	if err != nil {
		return nil, err
	}
	return Load(doc)
}

// Marshal encodes the graph as a document.
func Marshal(r graph.Reader, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a document and loads it into a new store.
func Unmarshal(data []byte, f Format) (*graph.Store, error) {
	return Decode(bytes.NewReader(data), f)
}

// SaveFile writes the graph to path, choosing the format from the
// extension. The file is replaced atomically.
func SaveFile(path string, r graph.Reader) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Marshal(r, f)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a graph from path, choosing the format from the extension.
func LoadFile(path string) (*graph.Store, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, graph.NewLoadError("persist.LoadFile", err, map[string]any{"path": path})
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return Decode(file, f)
}
