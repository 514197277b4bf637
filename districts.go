package kaiku

import (
	"sort"

	"github.com/pbnjay/clustering"
)

var districtNames = []string{"harbor", "meadow", "lantern", "birch", "granite", "tide", "ember", "fog", "juniper", "aurora", "moss"}
var DistrictEmoji = []string{"⚓", "🌾", "🏮", "🌳", "🪨", "🌊", "🔥", "🌫", "🌲", "🌌", "🍀"}

// LabelDistricts groups hub clusters into named districts using
// complete-linkage clustering over the real-world distance between hub
// centers. Districts exist purely for display; the largest district gets
// the first name, so labels are stable for a given working set.
func LabelDistricts(hubs []Cluster, thresholdKm float64) []Cluster {
	if len(hubs) == 0 {
		return hubs
	}

	distanceMap := prepareDistrictDistanceMap(hubs)
	clusterSet := clustering.NewDistanceMapClusterSet(distanceMap)
	clustering.Cluster(clusterSet, clustering.Threshold(thresholdKm), clustering.CompleteLinkage())

	groups := sortDistrictGroups(clusterSet, hubs)

	byCell := make(map[CellID]int, len(hubs))
	for i, hub := range hubs {
		byCell[hub.CellID] = i
	}

	labeled := make([]Cluster, len(hubs))
	copy(labeled, hubs)
	for groupIndex, group := range groups {
		name := districtNames[groupIndex%len(districtNames)]
		emoji := DistrictEmoji[groupIndex%len(DistrictEmoji)]
		for _, cell := range group {
			if i, ok := byCell[cell]; ok {
				labeled[i].District = name
				labeled[i].DistrictEmoji = emoji
			}
		}
	}
	return labeled
}

func prepareDistrictDistanceMap(hubs []Cluster) clustering.DistanceMap {
	distanceMap := make(clustering.DistanceMap)
	for _, a := range hubs {
		distances := make(map[clustering.ClusterItem]float64)
		for _, b := range hubs {
			if a.CellID == b.CellID {
				continue
			}
			distances[string(b.CellID)] = HaversineKm(a.Center, b.Center)
		}
		distanceMap[string(a.CellID)] = distances
	}
	return distanceMap
}

func sortDistrictGroups(clusterSet clustering.ClusterSet, hubs []Cluster) [][]CellID {
	weight := make(map[CellID]int, len(hubs))
	for _, hub := range hubs {
		weight[hub.CellID] = hub.Count
	}

	groups := make([][]CellID, 0)
	clusterSet.EachCluster(-1, func(clusterIndex int) {
		group := make([]CellID, 0)
		clusterSet.EachItem(clusterIndex, func(item clustering.ClusterItem) {
			group = append(group, CellID(item.(string)))
		})
		sort.Slice(group, func(i, j int) bool { return group[i] < group[j] })
		groups = append(groups, group)
	})

	sort.Slice(groups, func(i, j int) bool {
		wi, wj := 0, 0
		for _, cell := range groups[i] {
			wi += weight[cell]
		}
		for _, cell := range groups[j] {
			wj += weight[cell]
		}
		// tie-break by first cell id when groups carry the same activity
		if wi == wj {
			return groups[i][0] < groups[j][0]
		}
		return wi > wj
	})

	return groups
}
