// Package printer renders readings for the GET client.
package printer

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/weathermesh/weathermesh/pkg/types"
)

// Print writes each station, ordered by id, as a "## WEATHER DATA FOR <id> ##"
// line followed by its attributes as "key: value" lines in key order and a
// blank line. The id attribute is not repeated in the body.
func Print(w io.Writer, readings map[string]types.Reading) error {
	ids := make([]string, 0, len(readings))
	for id := range readings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bw := bufio.NewWriter(w)
	for _, id := range ids {
		r := readings[id]
		if rid := r.ID(); rid != "" {
			id = rid
		}
		fmt.Fprintf(bw, "## WEATHER DATA FOR %s ##\n", id)

		keys := make([]string, 0, len(r))
		for k := range r {
			if k != types.IDKey {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(bw, "%s: %v\n", k, r[k])
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
