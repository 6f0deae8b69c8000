// Package smack implements the SMACK label/rule collaborator: it
// installs and revokes the mandatory-access-control rules that bind
// application labels to each other and to the framework.
package smack

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Label is a SMACK security label, typically an application name.
type Label string

// Access is a SMACK access string, some non-empty subset of "rwxat".
type Access string

// Rule is one subject-may-access-object-this-way binding.
type Rule struct {
	Subject Label
	Object  Label
	Access  Access
}

func (r Rule) line() string {
	return fmt.Sprintf("%s %s %s", r.Subject, r.Object, r.Access)
}

// LabelSystem is the collaborator contract.
type LabelSystem interface {
	// SetLabel assigns label to an object already on disk (e.g. an app's
	// install path), the SMACK64 xattr used for filesystem access checks.
	SetLabel(path string, label Label) error
	// SetRule installs or replaces an explicit access rule.
	SetRule(rule Rule) error
	// RevokeSubject removes every rule naming subject, used when an
	// application is fully torn down.
	RevokeSubject(subject Label) error
}

// KernelLabelSystem drives the in-kernel SMACK LSM via its smackfs
// control files, keeping its own bookkeeping of installed rules
// alongside the kernel state it is ultimately enforcing.
type KernelLabelSystem struct {
	// SmackfsRoot is normally "/sys/fs/smackfs" on an embedded target;
	// overridable in tests so nothing here touches the real kernel ABI.
	SmackfsRoot string

	installed map[string]Rule // subject+object -> rule, for RevokeSubject bookkeeping
}

// New returns a KernelLabelSystem rooted at the standard smackfs mount.
func New() *KernelLabelSystem {
	return &KernelLabelSystem{SmackfsRoot: "/sys/fs/smackfs", installed: make(map[string]Rule)}
}

func (s *KernelLabelSystem) SetLabel(path string, label Label) error {
	if err := setXattr(path, "security.SMACK64", string(label)); err != nil {
		return fmt.Errorf("smack: set label on %s: %w", path, err)
	}
	return nil
}

func (s *KernelLabelSystem) SetRule(rule Rule) error {
	load2 := s.SmackfsRoot + "/load2"
	if err := os.WriteFile(load2, []byte(rule.line()+"\n"), 0o644); err != nil {
		return fmt.Errorf("smack: load rule %q: %w", rule.line(), err)
	}
	s.installed[ruleKey(rule.Subject, rule.Object)] = rule
	return nil
}

func (s *KernelLabelSystem) RevokeSubject(subject Label) error {
	revoke := s.SmackfsRoot + "/revoke-subject"
	if err := os.WriteFile(revoke, []byte(string(subject)+"\n"), 0o644); err != nil {
		return fmt.Errorf("smack: revoke subject %q: %w", subject, err)
	}
	for k, r := range s.installed {
		if r.Subject == subject {
			delete(s.installed, k)
		}
	}
	return nil
}

func ruleKey(subject, object Label) string {
	return strings.Join([]string{string(subject), string(object)}, "\x00")
}

// setXattr shells out to setfattr the way identity.OSUserDB shells out to
// groupadd: the xattr syscalls live in golang.org/x/sys/unix, which this
// module does not otherwise depend on, and a single privileged attribute
// write per sandbox setup is not worth a new dependency for.
func setXattr(path, name, value string) error {
	bin, err := exec.LookPath("setfattr")
	if err != nil {
		return fmt.Errorf("setfattr unavailable: %w", err)
	}
	out, err := exec.Command(bin, "-n", name, "-v", value, path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w (%s)", err, out)
	}
	return nil
}
