package feed

import (
	"fmt"
	"sort"
	"strings"
)

// bpfFilter builds a filter matching UDP traffic to any of the handled ports.
func bpfFilter(handlers map[int]Handler) string {
	ports := make([]int, 0, len(handlers))
	for p := range handlers {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	clauses := make([]string, len(ports))
	for i, p := range ports {
		clauses[i] = fmt.Sprintf("udp port %d", p)
	}
	if len(clauses) == 0 {
		return "udp"
	}
	return strings.Join(clauses, " or ")
}
