package ton

import (
	"testing"

	"github.com/google/uuid"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

func TestCampaignMemoRoundTrip(t *testing.T) {
	id := uuid.New()
	got, ok := ParseCampaignMemo(" " + CampaignMemo(id) + "\n")
	if !ok || got != id {
		t.Fatalf("ParseCampaignMemo = %v, %v; want %v", got, ok, id)
	}
}

func TestParseCampaignMemoRejects(t *testing.T) {
	for _, memo := range []string{"", "hello", "campaign:", "campaign:not-a-uuid", "deal:" + uuid.NewString()} {
		if _, ok := ParseCampaignMemo(memo); ok {
			t.Errorf("ParseCampaignMemo(%q) should fail", memo)
		}
	}
}

func TestExtractComment(t *testing.T) {
	text := "campaign:" + uuid.NewString()
	body := cell.BeginCell().MustStoreUInt(0, 32).MustStoreStringSnake(text).EndCell()

	if got := ExtractComment(&tlb.InternalMessage{Body: body}); got != text {
		t.Errorf("ExtractComment = %q, want %q", got, text)
	}

	opBody := cell.BeginCell().MustStoreUInt(0x0f8a7ea5, 32).MustStoreUInt(1, 64).EndCell()
	if got := ExtractComment(&tlb.InternalMessage{Body: opBody}); got != "" {
		t.Errorf("non-comment op should give empty string, got %q", got)
	}

	if got := ExtractComment(&tlb.InternalMessage{}); got != "" {
		t.Errorf("empty body should give empty string, got %q", got)
	}
}
