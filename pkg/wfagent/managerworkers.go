// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wfagent

import "github.com/oracle/wayflow-sub001/pkg/flow"

// ManagerWorkers is the star-topology specialization of Swarm described in
// §4.2: one manager agent holds the user-facing thread and is equipped with
// a send_message tool per worker; workers never see each other and never
// take over the active role, so it is built as a Swarm with HandoffNever
// and the manager fixed as both entry and (since no handoff tool exists to
// move it) permanent active agent.
type ManagerWorkers struct {
	*Swarm
	Manager string
	Workers []string
}

// NewManagerWorkers wires manager -> worker relationships for every name in
// workers and returns the composed component.
func NewManagerWorkers(name string, manager *Agent, workers []*Agent, executor *Executor) (*ManagerWorkers, error) {
	agents := append([]*Agent{manager}, workers...)
	relationships := make([]Relationship, 0, len(workers))
	workerNames := make([]string, 0, len(workers))
	for _, w := range workers {
		relationships = append(relationships, Relationship{Caller: manager.AgentName, Recipient: w.AgentName})
		workerNames = append(workerNames, w.AgentName)
	}
	swarm, err := NewSwarm(name, agents, relationships, HandoffNever, manager.AgentName, executor)
	if err != nil {
		return nil, err
	}
	return &ManagerWorkers{Swarm: swarm, Manager: manager.AgentName, Workers: workerNames}, nil
}

var _ flow.AgentRunner = (*ManagerWorkers)(nil)
