package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateRunID generates a run ID with a timestamp prefix
func GenerateRunID() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("run-%s-%s", timestamp, short)
}

// ParamName renders a parameter index the way logs and LP names show it.
func ParamName(c, m int) string {
	return fmt.Sprintf("theta_{%d,%d}", c, m)
}
