package blocklist

import (
	"bufio"
	"io"

	logpkg "github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/domain"
)

// ParseList reads a newline-delimited list of sites to block.
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line) and a leading BOM
// - Accepts bare host names or URLs; only the host is kept
// - Skips entries that are not usable host names, logging each one
// - De-duplicates by normalized name while preserving first-seen order
func ParseList(r io.Reader, source string, logger logpkg.Logger) (domain.DomainList, error) {
	scanner := bufio.NewScanner(r)
	names := make([]string, 0, 32)
	logger.Debug(map[string]any{"source": source}, "parse_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		name, skip, err := domain.NormalizeDomain(scanner.Text())
		if skip {
			continue
		}
		if err != nil {
			logger.Warn(map[string]any{"source": source, "line": lineNum, "error": err.Error()}, "skip_invalid_entry")
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_list_scan_error")
		return domain.DomainList{}, err
	}
	list, err := domain.NewDomainList(names)
	if err != nil {
		return domain.DomainList{}, err
	}
	logger.Debug(map[string]any{"source": source, "count": list.Len()}, "parse_list_done")
	return list, nil
}
