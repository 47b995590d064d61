package bridge

import (
	"bytes"
	"fmt"
	"hordegui/logger"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Document is a loaded bridgeData.yaml. Keys the application does not know
// about, and the comments of the original file, are kept on Save.
type Document struct {
	Path   string
	Config Config

	root yaml.Node
}

// Load parses the config file at path
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc := &Document{Path: path, Config: DefaultConfig()}
	if err := yaml.Unmarshal(data, &doc.root); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if doc.root.Kind == 0 {
		doc.root = yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(doc.root.Content) == 0 {
		// Empty or comment-only file
		doc.root.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
		return doc, nil
	}

	if doc.root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing %s: top level is not a mapping", path)
	}

	if err := doc.root.Decode(&doc.Config); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	return doc, nil
}

// Save writes Config back into the document and the document to disk
func (d *Document) Save() error {
	var fields yaml.Node
	if err := fields.Encode(&d.Config); err != nil {
		return err
	}
	merge(d.root.Content[0], &fields)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.root); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	logger.Log.WithField("path", d.Path).Debug("Saving worker configuration")
	return replaceFile(d.Path, buf.Bytes())
}

// replaceFile replaces path with data through a temporary file in the same
// directory. The mode of an existing file is kept.
func replaceFile(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// merge copies every key of src into dst, replacing values in place so
// that key order and comments of dst survive.
func merge(dst, src *yaml.Node) {
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, val := src.Content[i], src.Content[i+1]

		replaced := false
		for j := 0; j+1 < len(dst.Content); j += 2 {
			if dst.Content[j].Value != key.Value {
				continue
			}
			old := dst.Content[j+1]
			if val.LineComment == "" {
				val.LineComment = old.LineComment
			}
			if val.HeadComment == "" {
				val.HeadComment = old.HeadComment
			}
			dst.Content[j+1] = val
			replaced = true
			break
		}

		if !replaced {
			dst.Content = append(dst.Content, key, val)
		}
	}
}

// EnsureFromTemplate creates the config at path from the template next to
// it when path does not exist yet. It reports whether a copy was made.
func EnsureFromTemplate(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	template := filepath.Join(filepath.Dir(path), TemplateFileName)
	src, err := os.Open(template)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Errorf("%s: %w", template, ErrTemplateNotFound)
		}
		return false, err
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return false, fmt.Errorf("copying %s: %w", template, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return false, err
	}

	logger.Log.Infof("Created %s from template", path)
	return true, nil
}

// LoadOrCreate loads path, creating it from the template first if needed
func LoadOrCreate(path string) (*Document, bool, error) {
	created, err := EnsureFromTemplate(path)
	if err != nil {
		return nil, false, err
	}
	doc, err := Load(path)
	return doc, created, err
}
