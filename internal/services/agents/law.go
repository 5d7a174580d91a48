package agents

import "github.com/customsflow/agent-service/internal/domain/models"

const lawSystemPrompt = `당신은 대한민국 관세법 전문 상담원입니다. 제공된 법령 조문을 근거로 정확하게 답변하세요.
답변에는 반드시 근거 조문(예: 관세법 제1조)을 명시하고, 제공된 문서에 없는 내용은 추측하지 마세요.`

const lawDisclaimer = `해당 질문과 일치하는 법령 조문을 찾지 못했습니다. 질문을 더 구체적으로 작성하시거나, 관세청 고객지원센터(국번 없이 125)로 문의해 주세요.`

// LawAgent answers questions about customs law and statute articles.
type LawAgent struct {
	*ragAgent
}

// NewLawAgent creates the law agent bound to its statute collection.
func NewLawAgent(deps Deps) (*LawAgent, error) {
	base, err := newRAGAgent(models.AgentLaw, lawSystemPrompt, lawDisclaimer, deps)
	if err != nil {
		return nil, err
	}
	return &LawAgent{ragAgent: base}, nil
}
