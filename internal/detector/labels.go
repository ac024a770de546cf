package detector

import (
	"fmt"
	"os"
	"strings"
)

// SIBIAlphabet returns the default label table: the 26 letters of the SIBI fingerspelling alphabet.
func SIBIAlphabet() []string {
	labels := make([]string, 0, 26)
	for c := 'A'; c <= 'Z'; c++ {
		labels = append(labels, string(c))
	}
	return labels
}

// LoadLabels reads a label table with one label per line.
// Windows line endings and blank lines are tolerated.
func LoadLabels(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}

	var labels []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}

	if len(labels) == 0 {
		return nil, fmt.Errorf("label file %s is empty", path)
	}
	return labels, nil
}

// labelFor returns the display name of classID, or a placeholder if the table has no entry.
func labelFor(labels []string, classID int) string {
	if classID >= 0 && classID < len(labels) {
		return labels[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}
