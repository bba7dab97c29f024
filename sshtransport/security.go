package sshtransport

// HostKeyPolicy selects how server host keys are verified.
type HostKeyPolicy string

const (
	// StrictKnownHosts requires the host key to be present in the known
	// hosts file.
	StrictKnownHosts HostKeyPolicy = "strict_known_hosts"
	// AcceptNew accepts keys of hosts not yet in the known hosts file but
	// rejects mismatches for known hosts.
	AcceptNew HostKeyPolicy = "accept_new"
	// Permissive skips host key verification entirely.
	Permissive HostKeyPolicy = "permissive"
)

// SecurityProfile bundles the host-key policy and the algorithm families
// offered during SSH negotiation.
type SecurityProfile struct {
	Name          string
	HostKeyPolicy HostKeyPolicy
	// KnownHostsPath overrides the known hosts file location. Empty means
	// ~/.ssh/known_hosts.
	KnownHostsPath string

	KexAlgorithms []string
	Ciphers       []string
	MACs          []string
}

// Modern algorithm families shared by every profile.
var (
	secureKex = []string{
		"curve25519-sha256",
		"curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256",
		"ecdh-sha2-nistp384",
		"ecdh-sha2-nistp521",
	}
	secureCiphers = []string{
		"aes128-gcm@openssh.com",
		"aes256-gcm@openssh.com",
		"chacha20-poly1305@openssh.com",
	}
	secureMACs = []string{
		"hmac-sha2-256-etm@openssh.com",
		"hmac-sha2-512-etm@openssh.com",
	}
)

// SecureDefault is the recommended profile: known-hosts verification and
// modern algorithms only.
func SecureDefault() SecurityProfile {
	return SecurityProfile{
		Name:          "secure_default",
		HostKeyPolicy: StrictKnownHosts,
		KexAlgorithms: append([]string(nil), secureKex...),
		Ciphers:       append([]string(nil), secureCiphers...),
		MACs:          append([]string(nil), secureMACs...),
	}
}

// Balanced relaxes the host-key policy to accept-new and adds widely deployed
// non-AEAD algorithms.
func Balanced() SecurityProfile {
	p := SecureDefault()
	p.Name = "balanced"
	p.HostKeyPolicy = AcceptNew
	p.KexAlgorithms = append(p.KexAlgorithms,
		"diffie-hellman-group14-sha256",
		"diffie-hellman-group16-sha512",
	)
	p.Ciphers = append(p.Ciphers,
		"aes128-ctr",
		"aes192-ctr",
		"aes256-ctr",
	)
	p.MACs = append(p.MACs,
		"hmac-sha2-256",
		"hmac-sha2-512",
	)
	return p
}

// LegacyCompatible is permissive about host keys and offers the full legacy
// algorithm set for old network gear. Use only where nothing better works.
func LegacyCompatible() SecurityProfile {
	p := Balanced()
	p.Name = "legacy_compatible"
	p.HostKeyPolicy = Permissive
	p.KexAlgorithms = append(p.KexAlgorithms,
		"diffie-hellman-group14-sha1",
		"diffie-hellman-group1-sha1",
	)
	p.Ciphers = append(p.Ciphers,
		"aes128-cbc",
		"aes192-cbc",
		"aes256-cbc",
		"3des-cbc",
	)
	p.MACs = append(p.MACs,
		"hmac-sha1",
	)
	return p
}
