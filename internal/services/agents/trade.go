package agents

import "github.com/customsflow/agent-service/internal/domain/models"

const tradeSystemPrompt = `당신은 수출입 규제 전문 상담원입니다. 제공된 규제 문서를 근거로 품목별 수입 요건, 검역, 허가 사항을 안내하세요.
제공된 문서에 근거가 없는 규제 정보는 답변하지 마세요.`

const tradeDisclaimer = `해당 품목에 대한 수출입 규제 정보를 찾지 못했습니다. 규제가 없다는 의미는 아니므로, 관세청 또는 해당 품목의 소관 부처에 확인해 주세요.`

// TradeRegulationAgent answers questions about import/export regulation.
type TradeRegulationAgent struct {
	*ragAgent
}

// NewTradeRegulationAgent creates the trade-regulation agent bound to its
// regulation collection.
func NewTradeRegulationAgent(deps Deps) (*TradeRegulationAgent, error) {
	base, err := newRAGAgent(models.AgentTradeRegulation, tradeSystemPrompt, tradeDisclaimer, deps)
	if err != nil {
		return nil, err
	}
	return &TradeRegulationAgent{ragAgent: base}, nil
}
