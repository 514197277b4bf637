package kaiku

import (
	"fmt"
	"testing"
	"time"
)

func testMessage(id string, lat, lng float64, createdAt time.Time) Message {
	return Message{
		ID:        MessageID(id),
		Text:      "hello from " + id,
		AuthorID:  "actor-" + ActorID(id),
		Location:  LatLng{lat, lng},
		CreatedAt: createdAt,
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	g := DefaultGrid()
	clusters := Aggregate(g, nil, 5)
	if len(clusters) != 0 {
		t.Errorf("aggregate of nothing should be nothing, got %d clusters", len(clusters))
	}
}

func TestAggregatePartitionsMessages(t *testing.T) {
	g := DefaultGrid()
	now := time.Now()

	var messages []Message
	for i := 0; i < 40; i++ {
		lat := 60.0 + float64(i%7)*3.0
		lng := 24.0 + float64(i%5)*4.0
		messages = append(messages, testMessage(fmt.Sprintf("m%d", i), lat, lng, now))
	}

	clusters := Aggregate(g, messages, 4)

	seen := make(map[MessageID]int)
	total := 0
	for _, c := range clusters {
		if c.Count != len(c.MemberIDs) {
			t.Errorf("cluster %s count %d != members %d", c.CellID, c.Count, len(c.MemberIDs))
		}
		total += c.Count
		for _, id := range c.MemberIDs {
			seen[id]++
		}
	}

	if total != len(messages) {
		t.Errorf("clusters hold %d messages, want %d", total, len(messages))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("message %s appears in %d clusters", id, n)
		}
	}
}

func TestAggregateSkipsReplies(t *testing.T) {
	g := DefaultGrid()
	now := time.Now()

	parent := testMessage("parent", 60.17, 24.94, now)
	reply := testMessage("reply", 60.17, 24.94, now)
	reply.ParentID = parent.ID

	clusters := Aggregate(g, []Message{parent, reply}, 6)
	if len(clusters) != 1 {
		t.Fatalf("expected one cluster, got %d", len(clusters))
	}
	if clusters[0].Count != 1 {
		t.Errorf("reply leaked into spatial aggregation, count=%d", clusters[0].Count)
	}
}

func TestAggregateOrderingAndLatest(t *testing.T) {
	g := DefaultGrid()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	messages := []Message{
		testMessage("a1", 60.17, 24.94, t0),
		testMessage("a2", 60.17, 24.94, t0.Add(time.Hour)),
		testMessage("a3", 60.17, 24.94, t0.Add(2*time.Hour)),
		testMessage("b1", -33.87, 151.21, t0.Add(3*time.Hour)),
	}

	clusters := Aggregate(g, messages, 6)
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if clusters[0].Count != 3 {
		t.Errorf("largest cluster should come first, got count %d", clusters[0].Count)
	}
	if !clusters[0].LatestAt.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("latest timestamp wrong: %v", clusters[0].LatestAt)
	}
}

func TestAggregateCenterIsCellCenter(t *testing.T) {
	g := DefaultGrid()
	msg := testMessage("solo", 60.1699, 24.9384, time.Now())

	clusters := Aggregate(g, []Message{msg}, 7)
	lat, lng := g.CenterOf(clusters[0].CellID)
	if clusters[0].Center.Lat != lat || clusters[0].Center.Lng != lng {
		t.Errorf("cluster center must be the cell center, never a member coordinate")
	}
	if clusters[0].Center.Lat == msg.Location.Lat && clusters[0].Center.Lng == msg.Location.Lng {
		t.Errorf("cluster center equals the raw member coordinate")
	}
}

// Two clusters 3.1 km apart merge at a 5 km threshold but stay separate
// at 2 km.
func TestMergeHubsDistanceThreshold(t *testing.T) {
	now := time.Now()
	// 3.1 km apart along the equator: 3.1/111.195 degrees of longitude.
	a := Cluster{CellID: "c9:9000:18000", Center: LatLng{0, 0}, Count: 2, MemberIDs: []MessageID{"a1", "a2"}, LatestAt: now}
	b := Cluster{CellID: "c9:9000:18003", Center: LatLng{0, 3.1 / 111.195}, Count: 1, MemberIDs: []MessageID{"b1"}, LatestAt: now}

	if d := HaversineKm(a.Center, b.Center); d < 3.0 || d > 3.2 {
		t.Fatalf("test setup: centers should be ~3.1 km apart, got %f", d)
	}

	merged := MergeHubs([]Cluster{a, b}, 5)
	if len(merged) != 1 {
		t.Fatalf("expected one hub at 5 km threshold, got %d", len(merged))
	}
	if merged[0].Count != 3 {
		t.Errorf("hub should hold both clusters' messages, count=%d", merged[0].Count)
	}

	separate := MergeHubs([]Cluster{a, b}, 2)
	if len(separate) != 2 {
		t.Errorf("expected two clusters at 2 km threshold, got %d", len(separate))
	}
}

func TestMergeHubsAnchoredByLargest(t *testing.T) {
	now := time.Now()
	big := Cluster{CellID: "c9:1:1", Center: LatLng{0, 0}, Count: 10, MemberIDs: manyIDs("big", 10), LatestAt: now}
	small := Cluster{CellID: "c9:1:2", Center: LatLng{0, 0.02}, Count: 2, MemberIDs: manyIDs("small", 2), LatestAt: now.Add(time.Minute)}

	merged := MergeHubs([]Cluster{big, small}, 5)
	if len(merged) != 1 {
		t.Fatalf("expected one hub, got %d", len(merged))
	}
	if merged[0].CellID != big.CellID {
		t.Errorf("largest cluster should anchor the hub, got %s", merged[0].CellID)
	}
	if merged[0].Center != big.Center {
		t.Errorf("hub center should stay at the anchor's cell center")
	}
	if !merged[0].LatestAt.Equal(now.Add(time.Minute)) {
		t.Errorf("hub should carry the newest member timestamp")
	}
}

func TestMergeHubsDeterministic(t *testing.T) {
	now := time.Now()
	input := func() []Cluster {
		return []Cluster{
			{CellID: "c9:1:1", Center: LatLng{0, 0}, Count: 5, MemberIDs: manyIDs("a", 5), LatestAt: now},
			{CellID: "c9:1:2", Center: LatLng{0, 0.02}, Count: 5, MemberIDs: manyIDs("b", 5), LatestAt: now},
			{CellID: "c9:1:9", Center: LatLng{0, 1}, Count: 3, MemberIDs: manyIDs("c", 3), LatestAt: now},
		}
	}

	first := MergeHubs(input(), 5)
	second := MergeHubs(input(), 5)
	if len(first) != len(second) {
		t.Fatalf("merge not deterministic: %d vs %d hubs", len(first), len(second))
	}
	for i := range first {
		if first[i].CellID != second[i].CellID || first[i].Count != second[i].Count {
			t.Errorf("hub %d differs between runs", i)
		}
	}
}

func manyIDs(prefix string, n int) []MessageID {
	ids := make([]MessageID, n)
	for i := range ids {
		ids[i] = MessageID(fmt.Sprintf("%s%d", prefix, i))
	}
	return ids
}
