// Package config loads the INI-style configuration file: a [phyints]
// section naming the interfaces to turn into VIFs, and one [mroute_<name>]
// section per configured route (static or dynamic template). Parsing is
// two-stage, matching the original implementation: syntactic INI parsing
// first, then validation against the live interface inventory.
package config

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/mvo5/goconfigparser"

	"mrouted/internal/ifaceinv"
	"mrouted/internal/merrors"
	"mrouted/internal/mfc"
)

const mroutePrefix = "mroute_"

// Config is the fully validated, ready-to-install configuration.
type Config struct {
	Phyint []ifaceinv.Interface
	MRoute []mfc.MRoute
}

// Load reads and validates path against the interfaces currently visible on
// the host.
func Load(path string) (Config, error) {
	ifaces, err := ifaceinv.List()
	if err != nil {
		return Config{}, err
	}
	return load(path, ifaces)
}

func load(path string, ifaces []ifaceinv.Interface) (Config, error) {
	p := goconfigparser.New()
	if err := p.ReadFile(path); err != nil {
		return Config{}, merrors.Wrap(merrors.Malformed, err, "reading config file "+path)
	}
	return fromParser(p, ifaces)
}

func fromParser(p *goconfigparser.ConfigParser, ifaces []ifaceinv.Interface) (Config, error) {
	phyints, err := parsePhyints(p, ifaces)
	if err != nil {
		return Config{}, err
	}
	phyNames := make(map[string]bool, len(phyints))
	for _, p := range phyints {
		phyNames[p.Name] = true
	}

	mroutes, err := parseMRoutes(p, phyNames)
	if err != nil {
		return Config{}, err
	}

	return Config{Phyint: phyints, MRoute: mroutes}, nil
}

func parsePhyints(p *goconfigparser.ConfigParser, ifaces []ifaceinv.Interface) ([]ifaceinv.Interface, error) {
	raw, _ := p.Get("phyints", "names")
	names := splitList(raw)
	out := make([]ifaceinv.Interface, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		iface, err := ifaceinv.Validate(ifaces, name)
		if err != nil {
			return nil, err
		}
		out = append(out, iface)
	}
	return out, nil
}

func parseMRoutes(p *goconfigparser.ConfigParser, phyNames map[string]bool) ([]mfc.MRoute, error) {
	var routes []mfc.MRoute
	for _, section := range p.Sections() {
		if !strings.HasPrefix(section, mroutePrefix) {
			continue
		}

		from, err := p.Get(section, "from")
		if err != nil {
			return nil, merrors.New(merrors.Malformed, section+": missing 'from'")
		}
		if !phyNames[from] {
			return nil, merrors.New(merrors.InvariantViolation, section+": 'from' interface "+from+" is not a configured phyint")
		}

		rawGroup, err := p.Get(section, "group")
		if err != nil {
			return nil, merrors.New(merrors.Malformed, section+": missing 'group'")
		}
		group, err := parseGroupAddress(rawGroup)
		if err != nil {
			return nil, err
		}

		source := netip.IPv4Unspecified()
		if rawSource, err := p.Get(section, "source"); err == nil && rawSource != "" {
			addr, err := netip.ParseAddr(rawSource)
			if err != nil {
				return nil, merrors.Wrap(merrors.Malformed, err, section+": invalid 'source'")
			}
			source = addr
		}

		rawTo, err := p.Get(section, "to")
		if err != nil {
			return nil, merrors.New(merrors.Malformed, section+": missing 'to'")
		}
		to, err := parseOutgoingMap(rawTo)
		if err != nil {
			return nil, err
		}
		for name := range to {
			if !phyNames[name] {
				return nil, merrors.New(merrors.InvariantViolation, section+": 'to' interface "+name+" is not a configured phyint")
			}
		}

		routes = append(routes, mfc.MRoute{
			From:   from,
			Group:  group,
			Source: source,
			To:     to,
		})
	}
	return routes, nil
}

func parseGroupAddress(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, merrors.Wrap(merrors.Malformed, err, "invalid group address "+s)
	}
	if !addr.Is4() || !addr.IsMulticast() {
		return netip.Addr{}, merrors.New(merrors.Malformed, "invalid group address "+s)
	}
	return addr, nil
}

func parseOutgoingMap(s string) (map[string]uint8, error) {
	out := make(map[string]uint8)
	for _, entry := range splitList(s) {
		if entry == "" {
			continue
		}
		name, ttl, err := splitKeyValue(entry)
		if err != nil {
			return nil, err
		}
		out[name] = ttl
	}
	return out, nil
}

func splitKeyValue(pair string) (string, uint8, error) {
	parts := strings.SplitN(pair, "=", 2)
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return "", 0, merrors.New(merrors.Malformed, "invalid key: "+pair)
	}
	ttl := uint64(1)
	if len(parts) > 1 {
		v := strings.TrimSpace(parts[1])
		if v != "" {
			parsed, err := strconv.ParseUint(v, 10, 8)
			if err != nil {
				return "", 0, merrors.Wrap(merrors.Malformed, err, "invalid ttl in "+pair)
			}
			ttl = parsed
		}
	}
	return name, uint8(ttl), nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
