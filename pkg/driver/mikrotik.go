package driver

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// export header and section patterns
var (
	reRouterOSVersion = regexp.MustCompile(`(?i)by\s+RouterOS\s+([\d.]+)`)
	reModel           = regexp.MustCompile(`(?i)#\s*model\s*=\s*(\S+)`)
	reIdentity        = regexp.MustCompile(`(?m)/system identity\s*\nset name=("[^"]+"|[^\s#]+)`)
)

// MikroTik audits RouterOS devices over SSH.
type MikroTik struct {
	session *sshSession
	host    string

	// ExportCommand is overridable for offline fixtures.
	ExportCommand string
}

// NewMikroTik builds a RouterOS driver from a credential.
func NewMikroTik(cred schema.Credential, opts Options) *MikroTik {
	return &MikroTik{
		session:       newSSHSession(cred, opts),
		host:          cred.Host,
		ExportCommand: "/export verbose",
	}
}

// Open establishes the SSH session.
func (m *MikroTik) Open(ctx context.Context) error {
	return m.session.open(ctx)
}

// Close tears the session down. Idempotent.
func (m *MikroTik) Close() error {
	return m.session.close()
}

// Snapshot runs the export and parses it into a DeviceConfig.
func (m *MikroTik) Snapshot(ctx context.Context) (*schema.DeviceConfig, error) {
	raw, err := m.session.run(ctx, m.ExportCommand)
	if err != nil {
		return nil, err
	}
	return m.ParseExport(raw)
}

// ParseExport parses a raw /export verbose capture. Exposed so offline
// fixtures can exercise the full parse path without a session.
func (m *MikroTik) ParseExport(raw string) (*schema.DeviceConfig, error) {
	hostname, osVersion, model := m.parseHeader(raw)

	cfg := schema.DeviceConfig{
		Hostname:      hostname,
		Vendor:        "mikrotik",
		Model:         model,
		OSVersion:     osVersion,
		Interfaces:    m.parseInterfaces(raw),
		Routes:        m.parseRoutes(raw),
		FirewallRules: m.parseFirewall(raw),
		CollectedAt:   time.Now().UTC(),
	}
	validated, err := schema.NewDeviceConfig(cfg)
	if err != nil {
		return nil, util.NewDriverError(m.host, "snapshot", util.ErrParse, err.Error())
	}
	util.WithDevice(m.host).Infof("snapshot collected: %d interfaces, %d routes, %d firewall rules",
		len(validated.Interfaces), len(validated.Routes), len(validated.FirewallRules))
	return &validated, nil
}

func (m *MikroTik) parseHeader(raw string) (hostname, osVersion, model string) {
	if match := reRouterOSVersion.FindStringSubmatch(raw); match != nil {
		osVersion = match[1]
	}
	if match := reModel.FindStringSubmatch(raw); match != nil {
		model = match[1]
	}
	if match := reIdentity.FindStringSubmatch(raw); match != nil {
		hostname = util.Unquote(match[1])
	} else {
		// export without an identity section; fall back to the address
		hostname = m.host
	}
	return hostname, osVersion, model
}

// extractSection returns the body of one export section, without its
// header line. A section runs from its "/..." header to the next
// header or end of output. Empty string when absent.
func extractSection(raw, header string) string {
	lines := strings.Split(raw, "\n")
	var body []string
	inSection := false
	for _, line := range lines {
		if strings.HasPrefix(line, "/") {
			if inSection {
				break
			}
			inSection = strings.TrimSpace(strings.TrimRight(line, "\r")) == header
			continue
		}
		if inSection {
			body = append(body, line)
		}
	}
	if !inSection && len(body) == 0 {
		return ""
	}
	return strings.Join(body, "\n")
}

// sectionItems splits a section into its "add ..."/"set ..." items,
// folding RouterOS line continuations, and parses each into key=value
// fields.
func sectionItems(section string) []map[string]string {
	joined := strings.ReplaceAll(section, "\\\r\n", " ")
	joined = strings.ReplaceAll(joined, "\\\n", " ")

	var items []map[string]string
	for _, line := range strings.Split(joined, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "add ") && !strings.HasPrefix(line, "set ") {
			continue
		}
		fields := parseAssignments(line)
		if len(fields) > 0 {
			items = append(items, fields)
		}
	}
	return items
}

// parseAssignments tokenizes key=value pairs, honoring double-quoted
// values that may contain spaces.
func parseAssignments(line string) map[string]string {
	fields := map[string]string{}
	i := 0
	for i < len(line) {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		start := i
		eq := -1
		for i < len(line) && line[i] != ' ' {
			if line[i] == '=' && eq == -1 {
				eq = i
			}
			if line[i] == '"' {
				// skip to the closing quote so spaces stay inside
				i++
				for i < len(line) && line[i] != '"' {
					i++
				}
			}
			i++
		}
		if i > len(line) {
			// unterminated quote in truncated output; the rest of the
			// line is the value
			i = len(line)
		}
		if eq == -1 || eq == start {
			continue
		}
		key := line[start:eq]
		value := util.Unquote(line[eq+1 : i])
		fields[key] = value
	}
	return fields
}

func (m *MikroTik) parseFirewall(raw string) []schema.FirewallRule {
	section := extractSection(raw, "/ip firewall filter")
	if strings.TrimSpace(section) == "" {
		return nil
	}
	var rules []schema.FirewallRule
	for _, item := range sectionItems(section) {
		rule, err := schema.NewFirewallRule(schema.FirewallRule{
			Chain:      item["chain"],
			Action:     item["action"],
			SrcAddress: item["src-address"],
			DstAddress: item["dst-address"],
			Protocol:   item["protocol"],
			SrcPort:    item["src-port"],
			DstPort:    item["dst-port"],
			Comment:    item["comment"],
			Disabled:   item["disabled"] == "yes",
		})
		if err != nil {
			util.WithDevice(m.host).Warnf("dropping invalid firewall rule %v: %v", item, err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

func (m *MikroTik) parseRoutes(raw string) []schema.Route {
	section := extractSection(raw, "/ip route")
	if strings.TrimSpace(section) == "" {
		return nil
	}
	var routes []schema.Route
	for _, item := range sectionItems(section) {
		distance := 1
		if d, err := strconv.Atoi(item["distance"]); err == nil {
			distance = d
		}
		route, err := schema.NewRoute(schema.Route{
			Destination: item["dst-address"],
			Gateway:     item["gateway"],
			Interface:   item["interface"],
			Distance:    distance,
			RouteType:   "static",
		})
		if err != nil {
			util.WithDevice(m.host).Warnf("dropping invalid route %v: %v", item, err)
			continue
		}
		routes = append(routes, route)
	}
	return routes
}

// interface type by RouterOS name prefix
func interfaceType(name string) string {
	switch {
	case strings.HasPrefix(name, "ether"), strings.HasPrefix(name, "sfp"):
		return schema.InterfaceEther
	case strings.HasPrefix(name, "wlan"):
		return schema.InterfaceWLAN
	case strings.HasPrefix(name, "bridge"):
		return schema.InterfaceBridge
	case strings.HasPrefix(name, "vlan"):
		return schema.InterfaceVLAN
	case strings.HasPrefix(name, "bond"):
		return schema.InterfaceBonding
	case strings.HasPrefix(name, "lo"):
		return schema.InterfaceLoopback
	case strings.HasPrefix(name, "gre"), strings.HasPrefix(name, "eoip"),
		strings.HasPrefix(name, "ipip"), strings.HasPrefix(name, "wg"):
		return schema.InterfaceTunnel
	default:
		return schema.InterfaceOther
	}
}

func (m *MikroTik) parseInterfaces(raw string) []schema.Interface {
	section := extractSection(raw, "/interface")
	if strings.TrimSpace(section) == "" {
		return nil
	}

	// /ip address carries the per-interface addressing
	addrs := map[string][]string{}
	for _, item := range sectionItems(extractSection(raw, "/ip address")) {
		if item["address"] != "" && item["interface"] != "" {
			addrs[item["interface"]] = append(addrs[item["interface"]], item["address"])
		}
	}

	var ifaces []schema.Interface
	for _, item := range sectionItems(section) {
		name := item["name"]
		if name == "" {
			name = item["default-name"]
		}
		in := schema.Interface{
			Name:        name,
			Type:        interfaceType(name),
			Enabled:     item["disabled"] != "yes",
			MACAddress:  item["mac-address"],
			IPAddresses: addrs[name],
			Comment:     item["comment"],
		}
		if mtu, err := strconv.Atoi(item["mtu"]); err == nil {
			in.MTU = &mtu
		}
		if vid, err := strconv.Atoi(item["vlan-id"]); err == nil {
			in.VLANID = &vid
			in.Type = schema.InterfaceVLAN
		}
		iface, err := schema.NewInterface(in)
		if err != nil {
			util.WithDevice(m.host).Warnf("dropping invalid interface %v: %v", item, err)
			continue
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces
}

// ARPTable collects /ip arp in terse form.
func (m *MikroTik) ARPTable(ctx context.Context) ([]schema.ARPEntry, error) {
	raw, err := m.session.run(ctx, "/ip arp print terse")
	if err != nil {
		return nil, err
	}
	return m.ParseARP(raw), nil
}

// ParseARP parses terse ARP output.
func (m *MikroTik) ParseARP(raw string) []schema.ARPEntry {
	var entries []schema.ARPEntry
	for _, line := range strings.Split(raw, "\n") {
		item := parseAssignments(line)
		if item["address"] == "" || item["mac-address"] == "" {
			continue
		}
		entry, err := schema.NewARPEntry(schema.ARPEntry{
			IPAddress:  item["address"],
			MACAddress: item["mac-address"],
			Interface:  item["interface"],
		})
		if err != nil {
			util.WithDevice(m.host).Warnf("dropping invalid ARP entry %v: %v", item, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// MACTable collects the bridge host table in terse form.
func (m *MikroTik) MACTable(ctx context.Context) ([]schema.MACEntry, error) {
	raw, err := m.session.run(ctx, "/interface bridge host print terse")
	if err != nil {
		return nil, err
	}
	return m.ParseBridgeHosts(raw), nil
}

// ParseBridgeHosts parses terse bridge host output. The on-interface
// field is the physical port the MAC was learned on.
func (m *MikroTik) ParseBridgeHosts(raw string) []schema.MACEntry {
	var entries []schema.MACEntry
	for _, line := range strings.Split(raw, "\n") {
		item := parseAssignments(line)
		if item["mac-address"] == "" {
			continue
		}
		in := schema.MACEntry{
			MACAddress: item["mac-address"],
			SwitchPort: item["on-interface"],
		}
		if in.SwitchPort == "" {
			in.SwitchPort = item["interface"]
		}
		if vid, err := strconv.Atoi(item["vid"]); err == nil {
			in.VLANID = &vid
		}
		entry, err := schema.NewMACEntry(in)
		if err != nil {
			util.WithDevice(m.host).Warnf("dropping invalid MAC entry %v: %v", item, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// LLDPNeighbors collects /ip neighbor output. RouterOS reports its own
// MNDP peers alongside LLDP and CDP ones.
func (m *MikroTik) LLDPNeighbors(ctx context.Context) ([]schema.LLDPNeighbor, error) {
	raw, err := m.session.run(ctx, "/ip neighbor print detail")
	if err != nil {
		return nil, err
	}
	return m.ParseNeighbors(raw), nil
}

// ParseNeighbors parses neighbor print detail output. Entries may span
// multiple indented lines; a new entry starts at a leading index.
func (m *MikroTik) ParseNeighbors(raw string) []schema.LLDPNeighbor {
	var blocks []string
	var current strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if startsNewEntry(trimmed) && current.Len() > 0 {
			blocks = append(blocks, current.String())
			current.Reset()
		}
		current.WriteString(trimmed)
		current.WriteByte(' ')
	}
	if current.Len() > 0 {
		blocks = append(blocks, current.String())
	}

	var neighbors []schema.LLDPNeighbor
	for _, block := range blocks {
		item := parseAssignments(block)
		if len(item) == 0 {
			continue
		}
		desc := strings.TrimSpace(strings.Join(nonEmpty(item["platform"], item["board"], item["version"]), " "))
		neighbor, err := schema.NewLLDPNeighbor(schema.LLDPNeighbor{
			LocalInterface:    item["interface"],
			RemoteDevice:      item["identity"],
			RemotePort:        item["interface-name"],
			RemoteMAC:         item["mac-address"],
			RemoteDescription: desc,
		})
		if err != nil {
			util.WithDevice(m.host).Warnf("dropping invalid neighbor %v: %v", item, err)
			continue
		}
		neighbors = append(neighbors, neighbor)
	}
	return neighbors
}

// startsNewEntry reports whether a print-detail line opens a new item
// (leading row index like " 0 " or "12 ").
func startsNewEntry(line string) bool {
	trimmed := strings.TrimLeft(line, " ")
	if trimmed == "" {
		return false
	}
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	return i > 0 && i < len(trimmed) && trimmed[i] == ' '
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
