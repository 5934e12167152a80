package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat}
)

func validateOutput(output string) error {
	if len(output) > 0 && !funk.Contains(legalOutputTypes, output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

// printRaw writes a JSON document in the requested format. JSON is indented.
func printRaw(w io.Writer, data json.RawMessage, output string) error {
	switch output {
	case yamlFormat:
		marshalled, err := yaml.JSONToYAML(data)
		if err != nil {
			return fmt.Errorf("marshalling result: %w", err)
		}
		_, err = w.Write(marshalled)
		return err
	default:
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return fmt.Errorf("marshalling result: %w", err)
		}
		buf.WriteByte('\n')
		_, err := buf.WriteTo(w)
		return err
	}
}

// printObject marshals v and writes it in the requested format.
func printObject(w io.Writer, v any, output string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling resource: %w", err)
	}
	return printRaw(w, data, output)
}

func writeRawFile(path string, data json.RawMessage, output string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := printRaw(f, data, output); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
