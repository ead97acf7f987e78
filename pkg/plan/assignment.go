package plan

import (
	"net"
	"os"
)

// Initiator identifies the machine that issued an assignment.
type Initiator struct {
	Hostname string `json:"hostname"`
	FQDN     string `json:"fqdn,omitempty"`
	IPAddr   string `json:"ipaddr,omitempty"`
}

// LocalInitiator describes the current machine within the given domain.
func LocalInitiator(domain string) Initiator {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	init := Initiator{Hostname: hostname}
	if domain != "" {
		init.FQDN = hostname + "." + domain
	}

	if addrs, err := net.LookupHost(hostname); err == nil && len(addrs) > 0 {
		init.IPAddr = addrs[0]
	} else if init.FQDN != "" {
		if addrs, err := net.LookupHost(init.FQDN); err == nil && len(addrs) > 0 {
			init.IPAddr = addrs[0]
		}
	}
	return init
}

// UnitAssignment is the JSON body PUT to one unit.
type UnitAssignment struct {
	Initiator Initiator `json:"initiator"`
	Target    Target    `json:"target"`
	Task      Settings  `json:"task"`
	Autofocus bool      `json:"autofocus"`
}

// SpecAssignment is the JSON body PUT to the spectrograph.
type SpecAssignment struct {
	Instrument string         `json:"instrument"`
	Initiator  Initiator      `json:"initiator"`
	Task       Settings       `json:"task"`
	Spec       map[string]any `json:"spec"`
}

// UnitAssignmentFor builds the assignment for one unit's target.
func (r *Record) UnitAssignmentFor(target Target, init Initiator) UnitAssignment {
	return UnitAssignment{
		Initiator: init,
		Target:    target,
		Task:      r.Task,
		Autofocus: r.Task.Autofocus,
	}
}

// SpecAssignmentFor builds the spectrograph assignment, validating the
// instrument selection.
func (r *Record) SpecAssignmentFor(init Initiator) (*SpecAssignment, error) {
	instrument, err := r.Instrument()
	if err != nil {
		return nil, err
	}
	return &SpecAssignment{
		Instrument: instrument,
		Initiator:  init,
		Task:       r.Task,
		Spec:       r.Spec,
	}, nil
}
