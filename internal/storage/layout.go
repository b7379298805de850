// Package storage implements the on-disk layout for form definitions and
// saved instances: metadata side-files, a derived in-memory cache over the
// authoritative tree, migration of misplaced entries, and the finalize
// bridge into the submission queue.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// Canonical subtree names under the data root.
const (
	formsDirName     = "forms"
	instancesDirName = "instances"
	mediaDirName     = "media"

	metadataFileName = "metadata.json"

	payloadFileName = "payload.enc"
	// legacyPayloadFileName is the unencrypted payload written by older
	// releases. Read-only compatibility; never written.
	legacyPayloadFileName = "payload.json"
)

func (m *Manager) formsDir() string {
	return filepath.Join(m.root, formsDirName)
}

func (m *Manager) formDir(formID string) string {
	return filepath.Join(m.root, formsDirName, formID)
}

func (m *Manager) formMetaPath(formID string) string {
	return filepath.Join(m.formDir(formID), metadataFileName)
}

func (m *Manager) instancesDir(formID string) string {
	return filepath.Join(m.root, instancesDirName, formID)
}

func (m *Manager) instanceDir(formID, instanceID string) string {
	return filepath.Join(m.root, instancesDirName, formID, instanceID)
}

func (m *Manager) instanceMetaPath(formID, instanceID string) string {
	return filepath.Join(m.instanceDir(formID, instanceID), metadataFileName)
}

// sniffFormat detects the definition format from the first non-whitespace
// byte: '{' or '[' means JSON, '<' means structured markup.
func sniffFormat(definition []byte) (string, error) {
	for _, b := range definition {
		if unicode.IsSpace(rune(b)) {
			continue
		}
		switch b {
		case '{', '[':
			return types.FormFormatJSON, nil
		case '<':
			return types.FormFormatXML, nil
		default:
			return "", fmt.Errorf("unrecognized form definition content")
		}
	}
	return "", fmt.Errorf("empty form definition")
}

// definitionFileName maps a detected format to its on-disk file name.
func definitionFileName(format string) string {
	if format == types.FormFormatXML {
		return "definition.xml"
	}
	return "definition.json"
}

// writeFileAtomic writes data via a temp file in the target directory,
// fsyncs, and renames into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".storage-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
