package ton

import (
	"strings"

	"github.com/google/uuid"
	"github.com/xssnick/tonutils-go/tlb"
)

const CampaignMemoPrefix = "campaign:"

// CampaignMemo is the transfer comment that routes a deposit to a campaign.
func CampaignMemo(id uuid.UUID) string {
	return CampaignMemoPrefix + id.String()
}

func ParseCampaignMemo(comment string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(comment), CampaignMemoPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(rest))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ExtractComment parses a text comment from an internal message body.
// TON text comments have opcode 0x00000000 followed by UTF-8 text.
func ExtractComment(inMsg *tlb.InternalMessage) string {
	body := inMsg.Body
	if body == nil {
		return ""
	}

	slice := body.BeginParse()
	if slice.BitsLeft() < 32 {
		return ""
	}

	op, err := slice.LoadUInt(32)
	if err != nil || op != 0 {
		return ""
	}

	text, err := slice.LoadStringSnake()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
