package engine

import (
	"fmt"
	"strings"

	"github.com/specfleet/specfleet/pkg/config"
	"github.com/specfleet/specfleet/pkg/plan"
	"github.com/specfleet/specfleet/pkg/remote"
)

// FleetUnit pairs one resolved unit with its endpoint and the
// assignment it will receive.
type FleetUnit struct {
	Ref        config.UnitRef
	Endpoint   *remote.Endpoint
	Assignment plan.UnitAssignment
}

// Fleet is the set of peers one plan execution talks to: the resolved
// units plus the shared spectrograph.
type Fleet struct {
	Units          []*FleetUnit
	Spec           *remote.Endpoint
	SpecAssignment *plan.SpecAssignment
}

// Endpoints returns the unit endpoints in fleet order.
func (f *Fleet) Endpoints() []*remote.Endpoint {
	eps := make([]*remote.Endpoint, len(f.Units))
	for i, u := range f.Units {
		eps[i] = u.Endpoint
	}
	return eps
}

// ResolveFleet resolves a plan's unit specifiers against the site
// inventory and builds the endpoints and assignment payloads. All
// specifier failures are collected into one permanent error.
func (e *Engine) ResolveFleet(rec *plan.Record) (*Fleet, error) {
	local, err := e.cfg.LocalSite()
	if err != nil {
		return nil, NewPermanentError("no local site", err)
	}
	init := plan.LocalInitiator(local.Domain)

	fleet := &Fleet{}
	var errs []string

	for specifier, target := range rec.Units {
		if err := target.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("unit %q: %v", specifier, err))
			continue
		}

		refs, parseErrs := e.cfg.ParseUnits([]string{specifier})
		if len(parseErrs) > 0 {
			errs = append(errs, parseErrs...)
			continue
		}

		for _, ref := range refs {
			site, err := e.cfg.SiteByName(ref.Site)
			if err != nil {
				errs = append(errs, err.Error())
				continue
			}

			ep, err := remote.NewEndpoint(e.cfg.UnitEndpoint(site, ref.Unit), e.logger)
			if err != nil {
				errs = append(errs, fmt.Sprintf("unit %s: %v", ref, err))
				continue
			}

			fleet.Units = append(fleet.Units, &FleetUnit{
				Ref:        ref,
				Endpoint:   ep,
				Assignment: rec.UnitAssignmentFor(target, init),
			})
		}
	}

	if len(errs) > 0 {
		return nil, NewPermanentError(
			fmt.Sprintf("cannot resolve plan units: %s", strings.Join(errs, "; ")), nil)
	}
	if len(fleet.Units) == 0 {
		return nil, NewPermanentError("plan resolves to no units", nil)
	}

	specCfg, err := e.cfg.SpecEndpoint(local)
	if err != nil {
		return nil, NewPermanentError("no spectrograph endpoint", err)
	}
	if fleet.Spec, err = remote.NewEndpoint(specCfg, e.logger); err != nil {
		return nil, NewPermanentError("bad spectrograph endpoint", err)
	}

	if fleet.SpecAssignment, err = rec.SpecAssignmentFor(init); err != nil {
		return nil, NewPermanentError("bad spec section", err)
	}

	return fleet, nil
}
