package templates

import (
	"fmt"

	"github.com/netgrip/netgrip/devicefsm"
)

// Vendor names a supported device family.
type Vendor string

const (
	Cisco     Vendor = "cisco"
	Huawei    Vendor = "huawei"
	H3C       Vendor = "h3c"
	Hillstone Vendor = "hillstone"
	Juniper   Vendor = "juniper"
	Array     Vendor = "array"
)

// Options parameterizes a vendor template.
type Options struct {
	// EnablePassword answers the privileged-mode password prompt on
	// vendors that have one (cisco, array). Empty disables the input.
	EnablePassword string
}

// Vendors lists the built-in device families.
func Vendors() []Vendor {
	return []Vendor{Cisco, Huawei, H3C, Hillstone, Juniper, Array}
}

// Build returns the state machine configuration for a vendor.
func Build(v Vendor, opts Options) (devicefsm.Config, error) {
	switch v {
	case Cisco:
		return CiscoConfig(opts), nil
	case Huawei:
		return HuaweiConfig(), nil
	case H3C:
		return H3CConfig(), nil
	case Hillstone:
		return HillstoneConfig(), nil
	case Juniper:
		return JuniperConfig(), nil
	case Array:
		return ArrayConfig(opts), nil
	default:
		return devicefsm.Config{}, fmt.Errorf("unknown vendor %q", v)
	}
}

func enableInputs(trigger, password string) []devicefsm.DynamicInput {
	if password == "" {
		return nil
	}
	return []devicefsm.DynamicInput{{Trigger: trigger, Response: password, Sensitive: true}}
}

// CiscoConfig targets IOS/IOS-XE style devices. The config prompt is declared
// first: the broader enable pattern would otherwise shadow it.
func CiscoConfig(opts Options) devicefsm.Config {
	return devicefsm.Config{
		States: []devicefsm.StateConfig{
			{Name: "Config", Prompts: []string{`^\S+\(\S+\)#\s*$`}},
			{Name: "Enable", Prompts: []string{`^[^\s#]+#\s*$`}},
			{Name: "Login", Prompts: []string{`^[^\s<]+>\s*$`}},
		},
		Edges: []devicefsm.EdgeConfig{
			{From: "Login", To: "Enable", Command: "enable",
				Inputs: enableInputs(`(Enable )?[Pp]assword:`, opts.EnablePassword)},
			{From: "Enable", To: "Config", Command: "configure terminal"},
			{From: "Config", To: "Enable", Command: "exit", Exit: true},
			{From: "Enable", To: "Login", Command: "exit", Exit: true},
		},
		ErrorPatterns: []string{
			`% Invalid command at '\^' marker\.`,
			`% Invalid parameter detected at '\^' marker\.`,
			`^%.+`,
			`^Command authorization failed.*`,
			`^Command rejected:.*`,
			`ERROR:.+`,
			`Invalid password`,
			`Access denied.`,
			`\^$`,
		},
		IgnoreErrorPatterns: []string{
			`ERROR: object \(.+\) does not exist.`,
		},
		GlobalInputs: []devicefsm.DynamicInput{
			{Trigger: `\s*<--- More --->\s*`, Response: " "},
			{Trigger: `\s*--More--\s*`, Response: " "},
		},
	}
}

// HuaweiConfig targets VRP devices, including HRP/RBM cluster prompt
// prefixes.
func HuaweiConfig() devicefsm.Config {
	return devicefsm.Config{
		States: []devicefsm.StateConfig{
			{Name: "Config", Prompts: []string{`^(HRP_M|HRP_S)?\[.+\]\s*$`}},
			{Name: "Enable", Prompts: []string{`^(RBM_P|RBM_S)?<.+>\s*$`}},
		},
		Edges: []devicefsm.EdgeConfig{
			{From: "Enable", To: "Config", Command: "system-view"},
			{From: "Config", To: "Enable", Command: "quit", Exit: true},
		},
		ErrorPatterns: []string{
			`Error: .+$`,
			`\^$`,
		},
		IgnoreErrorPatterns: []string{
			`Error: The delete configuration does not exist.`,
			`Error: The address item does not exist!`,
			`Error: The service item does not exist!`,
			`Error: The specified rule does not exist yet.`,
			`This condition has already been configured`,
		},
		GlobalInputs: []devicefsm.DynamicInput{
			{Trigger: `Are you sure to continue\?\[Y\/N\]: `, Response: "y"},
			{Trigger: `Warning: The current configuration will be written to the device. Continue\? \[Y\/N\]: `, Response: "y"},
			{Trigger: `\s*---- More ----\s*`, Response: " "},
		},
	}
}

// H3CConfig targets Comware devices.
func H3CConfig() devicefsm.Config {
	return devicefsm.Config{
		States: []devicefsm.StateConfig{
			{Name: "Config", Prompts: []string{`^(RBM_P|RBM_S)?\[.+\]\s*$`}},
			{Name: "Enable", Prompts: []string{`^(RBM_P|RBM_S)?<.+>\s*$`}},
		},
		Edges: []devicefsm.EdgeConfig{
			{From: "Enable", To: "Config", Command: "system-view"},
			{From: "Config", To: "Enable", Command: "quit", Exit: true},
		},
		ErrorPatterns: []string{
			`.+\^.+`,
			`.+%.+`,
			`.+doesn't exist.+`,
			`.+does not exist.+`,
			`Object group with given name exists with different type.`,
		},
		GlobalInputs: []devicefsm.DynamicInput{
			{Trigger: `\s*---- More ----\s*`, Response: " "},
		},
	}
}

// HillstoneConfig targets StoneOS firewalls.
func HillstoneConfig() devicefsm.Config {
	return devicefsm.Config{
		States: []devicefsm.StateConfig{
			{Name: "Config", Prompts: []string{`^.+\(config.*\)\s*#\s?\r?$`}},
			{Name: "Enable", Prompts: []string{`^.+#\s?\r?$`}},
		},
		Edges: []devicefsm.EdgeConfig{
			{From: "Enable", To: "Config", Command: "configure"},
			{From: "Config", To: "Enable", Command: "exit", Exit: true},
		},
		ErrorPatterns: []string{
			`.+\^.+`,
			`.+%.+`,
			`.+doesn't exist.+`,
			`.+does not exist.+`,
		},
		IgnoreErrorPatterns: []string{
			`Error: Rule (\d+) is not found$`,
			`Error: This service already exists`,
			`Error: This entity is already added`,
			`Error: Deleting a service not configured`,
		},
		GlobalInputs: []devicefsm.DynamicInput{
			{Trigger: `Save configuration, are you sure\? \[y\]\/n: `, Response: "y"},
			{Trigger: `Backup start configuration file, are you sure\? y\/\[n\]: `, Response: "y"},
			{Trigger: `\s*--More--\s*`, Response: " "},
		},
	}
}

// JuniperConfig targets JunOS devices.
func JuniperConfig() devicefsm.Config {
	return devicefsm.Config{
		States: []devicefsm.StateConfig{
			{Name: "Config", Prompts: []string{`^\S+@\S+#\s*$`}},
			{Name: "Enable", Prompts: []string{`^\S+@\S+>\s*$`}},
		},
		Edges: []devicefsm.EdgeConfig{
			{From: "Enable", To: "Config", Command: "configure"},
			{From: "Config", To: "Enable", Command: "exit", Exit: true,
				Inputs: []devicefsm.DynamicInput{
					{Trigger: `Exit with uncommitted changes\? \[yes,no\] \(yes\) `, Response: "yes"},
				}},
		},
		ErrorPatterns: []string{
			`.*unknown command.*`,
			`syntax error.*`,
			`error:.+`,
			`invalid value .+`,
			`invalid ip address .+`,
			`\s+\^$`,
		},
		IgnoreErrorPatterns: []string{
			`warning: statement not found`,
			`warning: element \S+ not found`,
		},
		GlobalInputs: []devicefsm.DynamicInput{
			{Trigger: `---\(more.*\)---`, Response: " "},
		},
	}
}

// ArrayConfig targets Array Networks devices, including per-virtual-site
// states entered with a sys context ("switch {}" renders the site name).
func ArrayConfig(opts Options) devicefsm.Config {
	return devicefsm.Config{
		States: []devicefsm.StateConfig{
			{Name: "Config", Prompts: []string{`^\S+\(\S+\)#\s*$`}},
			{Name: "VSiteConfig", Prompts: []string{`^\S+\(\S+\)\$\s*$`}, SysScoped: true},
			{Name: "Enable", Prompts: []string{`^[^\s#]+#\s*$`}},
			{Name: "VSiteEnable", Prompts: []string{`^\S+\$\s*$`}, SysScoped: true},
			{Name: "Login", Prompts: []string{`^[^\s<]+>\s*$`}},
		},
		Edges: []devicefsm.EdgeConfig{
			{From: "Login", To: "Enable", Command: "enable",
				Inputs: enableInputs(`Enable password:`, opts.EnablePassword)},
			{From: "Enable", To: "Config", Command: "configure terminal"},
			{From: "Config", To: "Enable", Command: "exit", Exit: true},
			{From: "Enable", To: "Login", Command: "exit", Exit: true},
			{From: "Enable", To: "VSiteEnable", Command: "switch {}"},
			{From: "VSiteEnable", To: "VSiteConfig", Command: "configure terminal"},
			{From: "VSiteConfig", To: "VSiteEnable", Command: "exit", Exit: true},
			{From: "VSiteEnable", To: "Enable", Command: "exit", Exit: true},
		},
		ErrorPatterns: []string{
			`Virtual site .+ is not configured`,
			`Access denied!`,
			`Netpool .+ does not exist`,
			`Resource group .+ does not exist`,
			`\^$`,
		},
		GlobalInputs: []devicefsm.DynamicInput{
			{Trigger: `\s*--More--\s*`, Response: " "},
		},
	}
}
