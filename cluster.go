package kaiku

import "sort"

// Aggregate buckets every non-reply message into its spatial cell at the
// given resolution and builds one cluster per non-empty bucket. Prior to
// any merge pass the member sets partition the input exactly: no message
// lands in two clusters, none is dropped. Clusters come back sorted by
// descending count with CellID as the deterministic tiebreak. Empty input
// yields empty output.
//
// This re-runs on every viewport or zoom change, so it stays O(n) for the
// bucketing plus the sort over the (small) number of distinct cells.
func Aggregate(g *Grid, messages []Message, resolution int) []Cluster {
	buckets := make(map[CellID][]Message)
	for _, m := range messages {
		if m.IsReply() {
			continue
		}
		cell := g.CellFor(m.Location.Lat, m.Location.Lng, resolution)
		buckets[cell] = append(buckets[cell], m)
	}

	clusters := make([]Cluster, 0, len(buckets))
	for cell, members := range buckets {
		lat, lng := g.CenterOf(cell)
		c := Cluster{
			CellID: cell,
			Center: LatLng{Lat: lat, Lng: lng},
			Count:  len(members),
		}
		for _, m := range members {
			c.MemberIDs = append(c.MemberIDs, m.ID)
			if m.CreatedAt.After(c.LatestAt) {
				c.LatestAt = m.CreatedAt
			}
		}
		clusters = append(clusters, c)
	}

	sortClusters(clusters)
	return clusters
}

// MergeHubs combines clusters whose centers lie within thresholdKm into
// hub groups. Clusters are processed in descending count order; each
// unmerged cluster anchors a hub and greedily absorbs every remaining
// unmerged cluster within the threshold of the anchor's center, so the
// largest activity centers anchor their hubs and the result is
// deterministic given identical input ordering. The k² distance pass is
// bounded by the number of distinct cells, which is small.
func MergeHubs(clusters []Cluster, thresholdKm float64) []Cluster {
	if len(clusters) < 2 || thresholdKm <= 0 {
		return clusters
	}

	absorbed := make([]bool, len(clusters))
	hubs := make([]Cluster, 0, len(clusters))

	for i := range clusters {
		if absorbed[i] {
			continue
		}
		hub := clusters[i]
		anchor := hub.Center

		for j := i + 1; j < len(clusters); j++ {
			if absorbed[j] {
				continue
			}
			if HaversineKm(anchor, clusters[j].Center) <= thresholdKm {
				hub.MemberIDs = append(hub.MemberIDs, clusters[j].MemberIDs...)
				hub.Count += clusters[j].Count
				if clusters[j].LatestAt.After(hub.LatestAt) {
					hub.LatestAt = clusters[j].LatestAt
				}
				absorbed[j] = true
			}
		}
		hubs = append(hubs, hub)
	}

	sortClusters(hubs)
	return hubs
}

func sortClusters(clusters []Cluster) {
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Count != clusters[j].Count {
			return clusters[i].Count > clusters[j].Count
		}
		return clusters[i].CellID < clusters[j].CellID
	})
}
