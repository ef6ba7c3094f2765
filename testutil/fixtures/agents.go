// =============================================================================
// 📦 测试数据工厂 - Agent 注册记录
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/agentmesh/agent/discovery"
)

// Capability 返回指定名称的能力描述
func Capability(name string) discovery.CapabilityDescriptor {
	return discovery.CapabilityDescriptor{
		Name:                    name,
		Description:             name + " capability",
		Version:                 "1.0.0",
		ConstitutionalCompliant: true,
	}
}

// Agent 返回在线的 Agent 注册记录
func Agent(id, agentType string, quality float64, capabilities ...string) discovery.AgentRegistration {
	caps := make([]discovery.CapabilityDescriptor, len(capabilities))
	for i, name := range capabilities {
		caps[i] = Capability(name)
	}
	return discovery.AgentRegistration{
		AgentID:      id,
		AgentType:    agentType,
		Capabilities: caps,
		Endpoint:     "inproc://" + id,
		Status:       discovery.AgentStatusOnline,
		LoadLevel:    0.1,
		QualityScore: quality,
	}
}

// WithLoad 返回修改了负载的副本
func WithLoad(reg discovery.AgentRegistration, load float64) discovery.AgentRegistration {
	reg.LoadLevel = load
	return reg
}

// Offline 返回离线状态的副本
func Offline(reg discovery.AgentRegistration) discovery.AgentRegistration {
	reg.Status = discovery.AgentStatusOffline
	return reg
}

// CodeAgent 代码分析 Agent（quality 90）
func CodeAgent() discovery.AgentRegistration {
	return Agent("agent-a", "dev", 90, "code_analysis")
}

// DocumentAgent 文档处理 Agent（quality 95）
func DocumentAgent() discovery.AgentRegistration {
	return Agent("agent-b", "office", 95, "document_processing")
}

// Roster 返回一组覆盖默认分类标签的 Agent
func Roster() []discovery.AgentRegistration {
	return []discovery.AgentRegistration{
		CodeAgent(),
		DocumentAgent(),
		Agent("agent-c", "analyst", 85, "data_analysis"),
		Agent("agent-d", "general", 82, "general_assistance", "task_coordination"),
	}
}
