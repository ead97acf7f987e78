package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// UnitRef is a fully resolved unit reference.
type UnitRef struct {
	Site string
	Unit string
}

func (r UnitRef) String() string {
	return r.Site + ":" + r.Unit
}

// normalizeUnits expands a unit specifier list into canonical unit ids.
// Entries may be bare numbers ("3"), ranges ("1-5"), comma lists
// ("1,3,7") or full ids ("mast03"). Numbers are prefixed with the
// site's project name, zero-padded to two digits.
func (s *Site) normalizeUnits(spec StrList) (StrList, error) {
	var out StrList
	for _, entry := range spec {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		var parts []string
		switch {
		case strings.Contains(entry, ","):
			parts = strings.Split(entry, ",")
		case strings.Contains(entry, "-"):
			low, high, ok := splitRange(entry)
			if !ok {
				return nil, fmt.Errorf("invalid unit range: %q", entry)
			}
			for i := low; i <= high; i++ {
				parts = append(parts, strconv.Itoa(i))
			}
		default:
			parts = []string{entry}
		}

		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			out = append(out, s.canonicalUnit(p))
		}
	}
	return out, nil
}

// canonicalUnit maps a single specifier element onto a unit id.
func (s *Site) canonicalUnit(p string) string {
	if strings.HasPrefix(p, s.Project) {
		return p
	}
	if n, err := strconv.Atoi(p); err == nil {
		return fmt.Sprintf("%s%02d", s.Project, n)
	}
	return s.Project + p
}

func splitRange(entry string) (low, high int, ok bool) {
	bounds := strings.SplitN(entry, "-", 2)
	if len(bounds) != 2 {
		return 0, 0, false
	}
	l, err1 := strconv.Atoi(strings.TrimSpace(bounds[0]))
	h, err2 := strconv.Atoi(strings.TrimSpace(bounds[1]))
	if err1 != nil || err2 != nil || l > h {
		return 0, 0, false
	}
	return l, h, true
}

// specifierRe matches 'units', 'site:units' and 'site:building:units'
// forms, where units may be a comma list of ids or numbers.
var specifierRe = regexp.MustCompile(`^(?:(\w+):)?(?:(\w+):)?([,a-zA-Z0-9_-]+)$`)

// doubleColonRe matches the 'site::units' form, an empty building slot.
var doubleColonRe = regexp.MustCompile(`^(?:(\w+):{1,2})?(\w+)$`)

// ParseUnits parses and validates unit specifiers against the site
// inventory. Valid specifiers include 'w8', 'wis::w8', 'ns:north:9'
// and 'ns:17'. All failures are collected; the returned refs are only
// meaningful when the error list is empty.
func (c *Config) ParseUnits(specifiers []string) ([]UnitRef, []string) {
	var refs []UnitRef
	var errs []string

	for _, specifier := range specifiers {
		var siteName, buildingName, unitsSpec string
		if m := specifierRe.FindStringSubmatch(specifier); m != nil {
			siteName, buildingName, unitsSpec = m[1], m[2], m[3]
		} else if m := doubleColonRe.FindStringSubmatch(specifier); m != nil {
			siteName, unitsSpec = m[1], m[2]
		} else {
			errs = append(errs, fmt.Sprintf("invalid units spec: %q", specifier))
			continue
		}

		var site *Site
		var err error
		if siteName != "" {
			site, err = c.SiteByName(siteName)
		} else {
			site, err = c.LocalSite()
		}
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}

		var building *Building
		if buildingName != "" {
			building = site.findBuilding(buildingName)
			if building == nil {
				errs = append(errs, fmt.Sprintf("invalid building %q at site %q", buildingName, site.Name))
				continue
			}
		}

		for _, part := range strings.Split(unitsSpec, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			unit := site.canonicalUnit(part)

			if building != nil && !contains(building.units, unit) {
				errs = append(errs, fmt.Sprintf("invalid unit %q in building %q", part, buildingName))
				continue
			}
			if !site.HasUnit(unit) {
				errs = append(errs, fmt.Sprintf("invalid unit %q (specifier %q)", part, specifier))
				continue
			}
			refs = append(refs, UnitRef{Site: site.Name, Unit: unit})
		}
	}

	return refs, errs
}

// findBuilding resolves a building by name or by zero-based index.
func (s *Site) findBuilding(name string) *Building {
	if idx, err := strconv.Atoi(name); err == nil {
		if idx >= 0 && idx < len(s.Buildings) {
			return &s.Buildings[idx]
		}
		return nil
	}
	for i := range s.Buildings {
		if contains(s.Buildings[i].Names, name) {
			return &s.Buildings[i]
		}
	}
	return nil
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
