package collector

import (
	"encoding/json"
	"sort"
)

// maxChannelsPerRequest caps the channels array on a single subscribe or
// unsubscribe RPC, per the exchange's per-request channel limit.
const maxChannelsPerRequest = 40

// topN selects the top n instrument names from a book-summary snapshot by
// open interest, keeping only entries that carry both a name and a numeric
// open interest. Ties are broken by the snapshot's original order (stable
// sort) since the spec does not define a tie-break.
func topN(summary []bookSummaryItem, n int) []string {
	filtered := make([]bookSummaryItem, 0, len(summary))
	for _, item := range summary {
		if item.InstrumentName != "" && item.OpenInterest != nil {
			filtered = append(filtered, item)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return *filtered[i].OpenInterest > *filtered[j].OpenInterest
	})
	if n >= 0 && len(filtered) > n {
		filtered = filtered[:n]
	}
	names := make([]string, len(filtered))
	for i, item := range filtered {
		names[i] = item.InstrumentName
	}
	return names
}

// diffSubscriptions returns the set difference between the desired top-N set
// and the currently subscribed set: channels to add and channels to remove.
func diffSubscriptions(current map[string]struct{}, desired []string) (toAdd, toRemove []string) {
	desiredSet := make(map[string]struct{}, len(desired))
	for _, name := range desired {
		desiredSet[name] = struct{}{}
		if _, ok := current[name]; !ok {
			toAdd = append(toAdd, name)
		}
	}
	for name := range current {
		if _, ok := desiredSet[name]; !ok {
			toRemove = append(toRemove, name)
		}
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)
	return toAdd, toRemove
}

// chunk splits items into slices of at most maxChannelsPerRequest elements.
func chunk(items []string) [][]string {
	if len(items) == 0 {
		return nil
	}
	var out [][]string
	for len(items) > 0 {
		n := maxChannelsPerRequest
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

func tickerChannel(instrument string) string {
	return "ticker." + instrument + ".100ms"
}

func parseBookSummary(data json.RawMessage) ([]bookSummaryItem, error) {
	var items []bookSummaryItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}
