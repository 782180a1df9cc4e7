package output

import (
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/hitseq/packages/core/sequencer"
)

func formatTrace(trace []sequencer.State) string {
	parts := make([]string, len(trace))
	for i, s := range trace {
		parts[i] = s.String()
	}
	return strings.Join(parts, " → ")
}

func sortedReasons(reasons map[sequencer.Reason]int64) []sequencer.Reason {
	keys := make([]sequencer.Reason, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
