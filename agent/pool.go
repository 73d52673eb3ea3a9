package agent

import "fmt"

// Pool holds the fixed set of extraction agents and routes record batches to
// the agents accepting their data type.
type Pool struct {
	agents   []Agent
	resolver *ResolverAgent
}

// NewPool creates the default agent pool: patent, clinical trial, financial,
// competitive intelligence, and entity resolver agents.
func NewPool() *Pool {
	resolver := NewResolverAgent()
	return &Pool{
		agents: []Agent{
			NewPatentAgent(),
			NewClinicalTrialAgent(),
			NewFinancialAgent(),
			NewCompetitiveAgent(),
			resolver,
		},
		resolver: resolver,
	}
}

// NewPoolWith creates a pool over the given agents plus the default entity
// resolver. It exists so callers can substitute or add agents.
func NewPoolWith(agents ...Agent) *Pool {
	resolver := NewResolverAgent()
	return &Pool{
		agents:   append(append([]Agent{}, agents...), resolver),
		resolver: resolver,
	}
}

// Agents returns all agents in the pool.
func (p *Pool) Agents() []Agent {
	return p.agents
}

// For returns the agents accepting the given data type. The resolver is
// excluded: it contributes nothing per batch and runs in the cross-source
// pass instead.
func (p *Pool) For(dt DataType) []Agent {
	var out []Agent
	for _, a := range p.agents {
		if a == Agent(p.resolver) {
			continue
		}
		if Accepts(a, dt) {
			out = append(out, a)
		}
	}
	return out
}

// Get returns the agent with the given name.
func (p *Pool) Get(name string) (Agent, error) {
	for _, a := range p.agents {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("agent %q not found", name)
}

// Resolver returns the entity resolver used by the cross-source pass.
func (p *Pool) Resolver() *ResolverAgent {
	return p.resolver
}
