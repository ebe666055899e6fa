package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// formatBatchResults formats the batch results in the specified format.
func formatBatchResults(items []ItemResult, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(items)
	case "csv":
		return formatCSV(items)
	case "", "text":
		return formatText(items), nil
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

func formatJSON(items []ItemResult) (string, error) {
	doc := struct {
		Files []ItemResult `json:"files"`
	}{Files: items}
	if doc.Files == nil {
		doc.Files = []ItemResult{}
	}
	bts, err := json.MarshalIndent(doc, "", "  ")
	return string(bts), err
}

func formatCSV(items []ItemResult) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write([]string{"file", "found", "format", "text", "error", "duration_ms"}); err != nil {
		return "", err
	}
	for _, it := range items {
		row := []string{
			it.File,
			strconv.FormatBool(it.Found),
			it.Format,
			it.Text,
			it.Error,
			strconv.FormatInt(it.Duration.Milliseconds(), 10),
		}
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

// formatText prints one block per file: a "# path" header followed by the
// decoded text or the reason nothing was decoded.
func formatText(items []ItemResult) string {
	var output strings.Builder
	for i, it := range items {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s\n", it.File)
		if it.Found {
			fmt.Fprintf(&output, "[%s] %s\n", it.Format, it.Text)
			continue
		}
		fmt.Fprintf(&output, "(%s)\n", it.Error)
	}
	return output.String()
}
