package knowledge

import "testing"

func TestStaticProviderQuery(t *testing.T) {
	provider := NewStaticProvider([]Hint{
		{AgentID: "billing", Summary: "账单与退款问题", Keywords: []string{"invoice", "refund"}},
		{AgentID: "tech", Summary: "技术故障排查", Keywords: []string{"error", "crash"}, Topics: []string{"debug"}},
		{AgentID: "sales", Summary: "售前咨询", Keywords: []string{"pricing"}},
	}, 2)

	hits := provider.Query("I need a refund for my last invoice")
	if len(hits) != 1 {
		t.Fatalf("期望命中 1 条提示, 实际 %d", len(hits))
	}
	if hits[0].AgentID != "billing" {
		t.Fatalf("期望命中 billing, 实际 %s", hits[0].AgentID)
	}
}

func TestStaticProviderQueryTopics(t *testing.T) {
	provider := NewStaticProvider([]Hint{
		{AgentID: "tech", Keywords: []string{"crash"}, Topics: []string{"debug"}},
	}, 3)

	if hits := provider.Query("help me debug this"); len(hits) != 1 {
		t.Fatalf("期望按主题命中, 实际 %d", len(hits))
	}
}

func TestStaticProviderMaxResults(t *testing.T) {
	provider := NewStaticProvider([]Hint{
		{AgentID: "a", Keywords: []string{"go"}},
		{AgentID: "b", Keywords: []string{"go"}},
		{AgentID: "c", Keywords: []string{"go"}},
	}, 2)

	if hits := provider.Query("learning go"); len(hits) != 2 {
		t.Fatalf("期望限制为 2 条, 实际 %d", len(hits))
	}
}

func TestStaticProviderNoMatch(t *testing.T) {
	provider := NewStaticProvider([]Hint{
		{AgentID: "billing", Keywords: []string{"invoice"}},
	}, 3)

	if hits := provider.Query("hello there"); len(hits) != 0 {
		t.Fatalf("期望无命中, 实际 %d", len(hits))
	}
}
