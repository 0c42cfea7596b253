package compiler

import (
	"reflect"
	"sync"
)

type Principal struct {
	Service   interface{} `json:"Service,omitempty"`
	AWS       interface{} `json:"AWS,omitempty"`
	Federated interface{} `json:"Federated,omitempty"`
}

type Statement struct {
	Sid       string      `json:"Sid,omitempty"`
	Effect    string      `json:"Effect"`
	Principal *Principal  `json:"Principal,omitempty"`
	Action    interface{} `json:"Action"`
	Resource  interface{} `json:"Resource,omitempty"`
	Condition interface{} `json:"Condition,omitempty"`
}

type PolicyDocument struct {
	Version   string      `json:"Version,omitempty"`
	Statement []Statement `json:"Statement,omitempty"`
}

// ExecutionPolicy is the single shared handle to the default execution
// role's policy document. Every builder appends through it; insertion is
// set-like with membership decided by structural deep equality, matching
// the platform's literal deduplication semantics. When the execution role
// is supplied externally the document is assumed to already carry its own
// permissions and appends become no-ops.
type ExecutionPolicy struct {
	mu      sync.Mutex
	doc     *PolicyDocument
	managed bool
}

func NewExecutionPolicy(doc *PolicyDocument, managed bool) *ExecutionPolicy {
	return &ExecutionPolicy{doc: doc, managed: managed}
}

func (p *ExecutionPolicy) Managed() bool {
	return p.managed
}

func (p *ExecutionPolicy) Document() *PolicyDocument {
	return p.doc
}

// Append inserts a statement unless a deep-equal one is already present.
func (p *ExecutionPolicy) Append(stmt Statement) {
	if !p.managed || p.doc == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.doc.Statement {
		if reflect.DeepEqual(p.doc.Statement[i], stmt) {
			return
		}
	}
	p.doc.Statement = append(p.doc.Statement, stmt)
}
