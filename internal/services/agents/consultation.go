package agents

import "github.com/customsflow/agent-service/internal/domain/models"

const consultationSystemPrompt = `당신은 통관 절차 상담원입니다. 제공된 상담 사례를 참고하여 신고 절차, 필요 서류, 작성 방법을 친절하게 안내하세요.
확실하지 않은 내용은 관련 기관 확인을 권유하세요.`

const consultationDisclaimer = `유사한 상담 사례를 찾지 못했습니다. 일반적인 통관 절차는 관세청 전자통관시스템(UNI-PASS) 안내를 참고하시고, 구체적인 사안은 관세사 상담을 권해 드립니다.`

// ConsultationAgent handles general declaration-procedure consultation and is
// the routing fallback when no domain dominates.
type ConsultationAgent struct {
	*ragAgent
}

// NewConsultationAgent creates the consultation agent bound to its case
// collection.
func NewConsultationAgent(deps Deps) (*ConsultationAgent, error) {
	base, err := newRAGAgent(models.AgentConsultation, consultationSystemPrompt, consultationDisclaimer, deps)
	if err != nil {
		return nil, err
	}
	return &ConsultationAgent{ragAgent: base}, nil
}
