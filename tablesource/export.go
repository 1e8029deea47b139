package tablesource

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DecodeExport reads one export file: a single JSON array of records.
func DecodeExport(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var records []Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return records, nil
}

// LoadExportFile loads the export array for one entity kind from disk.
func LoadExportFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeExport(f)
}

// LoadExportDir loads <dir>/<table>.json. Table names follow the source's
// own naming (e.g. "Commerces", "Clients", "Livreurs", "Commandes").
func LoadExportDir(dir string, table string) ([]Record, error) {
	return LoadExportFile(filepath.Join(dir, table+".json"))
}
